// Package rlerr centralizes the error taxonomy used across the
// training core: each kind maps to one row of the failure-handling
// policy table (config/encoding/transient-worker/numerical/IO/
// user-requested). Components return these typed errors; only
// internal/pipeline decides what policy (skip, retry-once, abort
// cycle, abort run) applies to a given kind.
package rlerr

import (
	"errors"
	"fmt"
)

// Kind identifies which row of the failure-handling table an error
// belongs to.
type Kind string

const (
	KindConfig               Kind = "config"
	KindEncoding             Kind = "encoding"
	KindIllegalAction        Kind = "illegal_action"
	KindWorker               Kind = "worker"
	KindNumerical            Kind = "numerical"
	KindIO                   Kind = "io"
	KindInvalidBatch         Kind = "invalid_batch"
	KindArchitectureMismatch Kind = "architecture_mismatch"
)

// Error is the common shape for every typed failure in the training
// core: an operation name, a Kind, and the wrapped cause.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind,
// so callers can write errors.Is(err, rlerr.KindNumerical) style
// comparisons via KindError helpers below.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs a typed Error.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindError is a zero-cause sentinel usable with errors.Is to test a
// kind without caring about Op/Err: errors.Is(err, rlerr.KindError(rlerr.KindNumerical)).
func KindError(k Kind) error {
	return &Error{Kind: k}
}

// IllegalActionError reports that an action was attempted against a
// board position where it is not legal. This must never be silently
// corrected — it always propagates as a fatal programming-bug signal
// to the caller.
type IllegalActionError struct {
	Action int
	FEN    string
}

func (e *IllegalActionError) Error() string {
	return fmt.Sprintf("illegal action %d for position %q", e.Action, e.FEN)
}

// EncodingError reports a state/mask-length mismatch or similar
// invariant violation in the encode/decode path. It is fatal and
// aborts the run.
type EncodingError struct {
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding invariant violated: %s", e.Reason)
}

// InvalidBatchError reports that a training batch contains a
// transition violating the masked-target invariant (next_mask all
// zero with done=0). This is a programming error: the batch is
// rejected and parameters are left unchanged.
type InvalidBatchError struct {
	Index int
}

func (e *InvalidBatchError) Error() string {
	return fmt.Sprintf("invalid batch: transition %d has done=false and an all-zero next_mask", e.Index)
}

// ArchitectureMismatchError reports that a checkpoint being loaded was
// produced by a network of different shape than the one configured
// for the current run.
type ArchitectureMismatchError struct {
	Field    string
	Want     int
	Have     int
}

func (e *ArchitectureMismatchError) Error() string {
	return fmt.Sprintf("architecture mismatch on %s: want %d, have %d", e.Field, e.Want, e.Have)
}
