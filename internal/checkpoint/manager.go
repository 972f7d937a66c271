// Package checkpoint implements durable persistence for a training
// run: atomic cycle/best snapshots, a pointer file recording the
// current best, retention cleanup, and architecture-checked resume.
package checkpoint

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/learner"
	"github.com/evanburke/chessrl/internal/qnet"
	"github.com/evanburke/chessrl/internal/rlenv"
	"github.com/evanburke/chessrl/internal/rlerr"
	"github.com/evanburke/chessrl/internal/runctx"
)

// Meta is the on-disk meta.json shape: enough of the network's
// architecture to validate a resume, plus the run bookkeeping the
// pipeline needs to pick up where it left off.
type Meta struct {
	Cycle        int     `json:"cycle"`
	OutcomeScore float64 `json:"outcome_score"`
	Features     int     `json:"features"`
	Outputs      int     `json:"outputs"`
	HiddenLayers []int   `json:"hidden_layers"`
	TrainSteps   int     `json:"train_steps"`
	RunSeed      int64   `json:"run_seed"`
}

// optState is everything of the optimizer that can actually be
// serialized. Gorgonia's Solver interface does not expose Adam's
// internal moment vectors, so a resumed run's Adam state always
// restarts from zero moments; trainSteps is persisted so the target-
// sync cadence stays consistent across a resume regardless.
type optState struct {
	TrainSteps int
}

// Pointer is the <dir>/pointer.json shape.
type Pointer struct {
	BestCycle        int     `json:"best_cycle"`
	BestOutcomeScore float64 `json:"best_outcome_score"`
	LastCycle        int     `json:"last_cycle"`
}

// Manager owns the on-disk checkpoint layout rooted at rc.Dir.Root.
type Manager struct {
	rc *runctx.Context
}

func New(rc *runctx.Context) *Manager { return &Manager{rc: rc} }

// SaveCycle atomically writes cycle-<cycle>'s params.bin/opt.bin/meta.json.
func (m *Manager) SaveCycle(cycle int, l *learner.Learner, outcomeScore float64) error {
	return m.writeSnapshot(m.rc.Dir.Cycle(cycle), l, Meta{
		Cycle:        cycle,
		OutcomeScore: outcomeScore,
		Features:     l.Network().Features(),
		Outputs:      l.Network().Outputs(),
		HiddenLayers: m.rc.Config.HiddenLayers,
		TrainSteps:   l.TrainSteps(),
		RunSeed:      m.rc.Seed,
	})
}

// PromoteToBest atomically overwrites best/ with l's current weights,
// a canonical copy rather than a symlink or reference to a cycle dir,
// so best/ survives that cycle's own later retention cleanup.
func (m *Manager) PromoteToBest(cycle int, l *learner.Learner, outcomeScore float64) error {
	return m.writeSnapshot(m.rc.Dir.Best(), l, Meta{
		Cycle:        cycle,
		OutcomeScore: outcomeScore,
		Features:     l.Network().Features(),
		Outputs:      l.Network().Outputs(),
		HiddenLayers: m.rc.Config.HiddenLayers,
		TrainSteps:   l.TrainSteps(),
		RunSeed:      m.rc.Seed,
	})
}

// SaveLast atomically writes the last/ snapshot: the run's recovery
// point on a graceful stop or a forced abort, distinct from best/ (the
// head-to-head winner) and from any single cycle-<k> directory (which
// retention may prune).
func (m *Manager) SaveLast(cycle int, l *learner.Learner, outcomeScore float64) error {
	return m.writeSnapshot(m.rc.Dir.Last(), l, Meta{
		Cycle:        cycle,
		OutcomeScore: outcomeScore,
		Features:     l.Network().Features(),
		Outputs:      l.Network().Outputs(),
		HiddenLayers: m.rc.Config.HiddenLayers,
		TrainSteps:   l.TrainSteps(),
		RunSeed:      m.rc.Seed,
	})
}

// writeSnapshot implements the atomic write protocol: everything is
// written under a sibling temp directory, fsynced, and the temp
// directory is renamed into place in one atomic filesystem operation.
// An existing targetDir is removed just before that rename: a crash
// before the removal leaves targetDir untouched, a crash between the
// removal and the rename leaves no snapshot at targetDir (the fully
// written temp directory stays beside it), and a crash after leaves it
// fully written. targetDir is never half-written.
func (m *Manager) writeSnapshot(targetDir string, l *learner.Learner, meta Meta) error {
	parent := filepath.Dir(targetDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("checkpoint: create %s: %w", parent, err)
	}

	tmp, err := os.MkdirTemp(parent, ".tmp-*")
	if err != nil {
		return fmt.Errorf("checkpoint: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp) // no-op once the rename below succeeds

	if err := writeGobFile(filepath.Join(tmp, "params.bin"), l.Network()); err != nil {
		return err
	}
	if err := writeGobFile(filepath.Join(tmp, "opt.bin"), optState{TrainSteps: l.TrainSteps()}); err != nil {
		return err
	}
	if err := writeJSONFile(filepath.Join(tmp, "meta.json"), meta); err != nil {
		return err
	}
	if err := fsyncDir(tmp); err != nil {
		return err
	}

	if err := os.RemoveAll(targetDir); err != nil {
		return fmt.Errorf("checkpoint: clear previous %s: %w", targetDir, err)
	}
	if err := os.Rename(tmp, targetDir); err != nil {
		return fmt.Errorf("checkpoint: rename into place: %w", err)
	}
	return fsyncDir(parent)
}

// UpdatePointer atomically rewrites pointer.json, last, per the
// write-protocol contract (checkpoint files before pointer.json).
func (m *Manager) UpdatePointer(p Pointer) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal pointer: %w", err)
	}
	return writeFileAtomic(m.rc.Dir.Pointer(), data)
}

// ReadPointer reads pointer.json, or a zero-value Pointer if this run
// has never checkpointed.
func (m *Manager) ReadPointer() (Pointer, error) {
	raw, err := os.ReadFile(m.rc.Dir.Pointer())
	if os.IsNotExist(err) {
		return Pointer{}, nil
	}
	if err != nil {
		return Pointer{}, fmt.Errorf("checkpoint: read pointer: %w", err)
	}
	var p Pointer
	if err := json.Unmarshal(raw, &p); err != nil {
		return Pointer{}, fmt.Errorf("checkpoint: parse pointer: %w", err)
	}
	return p, nil
}

// Load restores a Learner from dir, built fresh via learner.New(cfg,
// seed) and then populated with the checkpoint's weights. Architecture
// is validated against cfg before any state is touched: a mismatch
// returns *rlerr.ArchitectureMismatchError and the caller's existing
// learner (if any) is never modified, since Load only ever returns a
// brand new Learner or an error.
func Load(dir string, cfg config.Config, seed int64) (*learner.Learner, Meta, error) {
	meta, err := readMeta(dir)
	if err != nil {
		return nil, Meta{}, err
	}

	if meta.Features != rlenv.StateLen {
		return nil, meta, rlerr.New("checkpoint.Load", rlerr.KindArchitectureMismatch,
			&rlerr.ArchitectureMismatchError{Field: "features", Want: rlenv.StateLen, Have: meta.Features})
	}
	if meta.Outputs != rlenv.ActionSpace {
		return nil, meta, rlerr.New("checkpoint.Load", rlerr.KindArchitectureMismatch,
			&rlerr.ArchitectureMismatchError{Field: "outputs", Want: rlenv.ActionSpace, Have: meta.Outputs})
	}
	if !intSliceEqual(meta.HiddenLayers, cfg.HiddenLayers) {
		return nil, meta, rlerr.New("checkpoint.Load", rlerr.KindArchitectureMismatch,
			&rlerr.ArchitectureMismatchError{Field: "hidden_layers", Want: len(cfg.HiddenLayers), Have: len(meta.HiddenLayers)})
	}

	l, err := learner.New(cfg, seed)
	if err != nil {
		return nil, meta, fmt.Errorf("checkpoint: build learner: %w", err)
	}

	paramsBytes, err := os.ReadFile(filepath.Join(dir, "params.bin"))
	if err != nil {
		return nil, meta, fmt.Errorf("checkpoint: read params.bin: %w", err)
	}
	decoded := &qnet.Network{}
	if err := decoded.GobDecode(paramsBytes); err != nil {
		return nil, meta, fmt.Errorf("checkpoint: decode params.bin: %w", err)
	}
	if err := l.Network().Set(decoded); err != nil {
		return nil, meta, fmt.Errorf("checkpoint: apply decoded weights: %w", err)
	}
	if err := l.SyncTarget(); err != nil {
		return nil, meta, fmt.Errorf("checkpoint: sync target after load: %w", err)
	}

	optBytes, err := os.ReadFile(filepath.Join(dir, "opt.bin"))
	if err == nil {
		var opt optState
		if decErr := gob.NewDecoder(bytes.NewReader(optBytes)).Decode(&opt); decErr == nil {
			l.SetTrainSteps(opt.TrainSteps)
		}
	}

	return l, meta, nil
}

func readMeta(dir string) (Meta, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return Meta{}, fmt.Errorf("checkpoint: read meta.json: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Meta{}, fmt.Errorf("checkpoint: parse meta.json: %w", err)
	}
	return meta, nil
}

// Retain keeps best/ untouched, the last KeepLastK cycle directories,
// and every KeepEveryNth cycle directory, deleting the rest. Intended
// to run after promotion, per the retention contract.
func (m *Manager) Retain(currentCycle int) error {
	cfg := m.rc.Config
	keep := make(map[int]bool)
	for k := currentCycle; k > currentCycle-cfg.KeepLastK && k >= 0; k-- {
		keep[k] = true
	}
	if cfg.KeepEveryNth > 0 {
		for k := 0; k <= currentCycle; k += cfg.KeepEveryNth {
			keep[k] = true
		}
	}

	entries, err := os.ReadDir(m.rc.Dir.Root)
	if err != nil {
		return fmt.Errorf("checkpoint: list %s: %w", m.rc.Dir.Root, err)
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "cycle-") {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "cycle-"))
		if err != nil || keep[idx] {
			continue
		}
		path := filepath.Join(m.rc.Dir.Root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			m.rc.Log.Warn().Err(err).Str("path", path).Msg("checkpoint retention: failed to remove stale cycle dir")
		}
	}
	return nil
}

func intSliceEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func writeGobFile(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("checkpoint: create %s: %w", path, err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		return fmt.Errorf("checkpoint: encode %s: %w", path, err)
	}
	return f.Sync()
}

func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("checkpoint: create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", path, err)
	}
	return f.Sync()
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("checkpoint: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("checkpoint: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("checkpoint: rename into place: %w", err)
	}
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("checkpoint: open %s for fsync: %w", dir, err)
	}
	defer f.Close()
	return f.Sync()
}
