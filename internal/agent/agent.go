// Package agent implements the epsilon-greedy policy over legal
// actions that drives both self-play and evaluation: the same Agent
// type is used for the learner's live policy and for frozen
// opponents, distinguished only by whether further training happens
// to the underlying network.
package agent

import (
	"fmt"
	"math/rand"

	G "gorgonia.org/gorgonia"

	"github.com/evanburke/chessrl/internal/qnet"
)

// Agent selects actions from a qnet.Network restricted to a caller-
// supplied legal-action mask. It owns its own tape machine, so a
// single Agent must not be used concurrently from multiple goroutines
// — callers needing concurrent opponents should Snapshot a fresh Agent
// per worker instead.
type Agent struct {
	net     *qnet.Network
	epsilon float64
	rng     *rand.Rand
	vm      G.VM
}

// New builds an Agent around a batch-size-1 network. Networks with a
// larger batch size are for training, not action selection.
func New(net *qnet.Network, epsilon float64, seed int64) (*Agent, error) {
	if net.BatchSize() != 1 {
		return nil, fmt.Errorf("agent: network batch size must be 1 for action selection, got %d", net.BatchSize())
	}
	return &Agent{
		net:     net,
		epsilon: epsilon,
		rng:     rand.New(rand.NewSource(seed)),
		vm:      G.NewTapeMachine(net.Graph()),
	}, nil
}

func (a *Agent) Epsilon() float64     { return a.epsilon }
func (a *Agent) SetEpsilon(eps float64) { a.epsilon = eps }
func (a *Agent) Network() *qnet.Network { return a.net }

// QValues runs a forward pass over state and returns one value per
// action, in action-index order.
func (a *Agent) QValues(state []float32) ([]float64, error) {
	data := make([]float64, len(state))
	for i, v := range state {
		data[i] = float64(v)
	}
	if err := a.net.SetInput(data); err != nil {
		return nil, fmt.Errorf("agent: set input: %w", err)
	}
	if err := a.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("agent: forward pass: %w", err)
	}
	raw, ok := a.net.Value().Data().([]float64)
	if !ok {
		a.vm.Reset()
		return nil, fmt.Errorf("agent: unexpected output value type %T", a.net.Value().Data())
	}
	out := append([]float64(nil), raw...)
	a.vm.Reset()
	return out, nil
}

// legalIndices returns the indices of mask set to 1, in ascending
// order (mask is already index-ordered, so no sort is needed).
func legalIndices(mask []byte) []int {
	out := make([]int, 0, 32)
	for i, v := range mask {
		if v != 0 {
			out = append(out, i)
		}
	}
	return out
}

// SelectAction implements epsilon-greedy selection restricted to the
// legal set L={i|mask[i]=1}. With probability epsilon it picks
// uniformly from L using the agent's seeded RNG; otherwise it returns
// argmax_{i in L} q[i], breaking ties by lowest index.
//
// An empty L means the environment handed the agent a position it
// should already have reported as terminal, which is a programming
// bug, not a recoverable condition — SelectAction panics rather than
// guessing an action.
func (a *Agent) SelectAction(state []float32, mask []byte) (int, error) {
	legal := legalIndices(mask)
	if len(legal) == 0 {
		panic("agent: SelectAction called with no legal actions in mask")
	}

	q, err := a.QValues(state)
	if err != nil {
		return 0, err
	}

	if a.rng.Float64() < a.epsilon {
		return legal[a.rng.Intn(len(legal))], nil
	}

	best := legal[0]
	bestQ := q[best]
	for _, i := range legal[1:] {
		if q[i] > bestQ {
			bestQ = q[i]
			best = i
		}
	}
	return best, nil
}

// Snapshot returns a read-only Agent sharing no mutable state with a:
// the network's weights are copied onto a fresh batch-1 graph and the
// epsilon is fixed at the given value. Frozen agents are safe to use
// from a single goroutine each; callers needing N concurrent frozen
// opponents should call Snapshot N times.
func (a *Agent) Snapshot(epsilon float64, seed int64) (*Agent, error) {
	clone, err := a.net.CloneWithBatch(1)
	if err != nil {
		return nil, fmt.Errorf("agent: snapshot clone: %w", err)
	}
	if err := clone.Set(a.net); err != nil {
		return nil, fmt.Errorf("agent: snapshot copy weights: %w", err)
	}
	return New(clone, epsilon, seed)
}
