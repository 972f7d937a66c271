// Package replay implements the bounded, deterministically-sampled
// transition store the learner trains from: a preallocated ring buffer
// with FIFO eviction, uniform or prioritized sampling, seeded from the
// run seed so that sampling order is reproducible given fixed buffer
// content.
package replay

import (
	"math"
	"math/rand"

	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/rlenv"
)

// Batch is what Sample returns: batchSize transitions, the sampled
// indices (for UpdatePriorities) and, in prioritized mode only,
// importance-sampling weights.
type Batch struct {
	Transitions []rlenv.Transition
	Indices     []int
	Weights     []float64
}

// Empty reports whether the batch carries no transitions (buffer below
// batch_size, per the boundary-behavior contract).
func (b Batch) Empty() bool { return len(b.Transitions) == 0 }

// Buffer is a fixed-capacity ring of transitions. Insertion is FIFO
// eviction once full; sampling never inspects Done or Quality, which
// are the experience manager's concerns.
type Buffer struct {
	slots    []rlenv.Transition
	priority []float64 // parallel to slots, only meaningful in prioritized mode
	capacity int
	size     int
	next     int // write cursor
	total    int // monotonically increasing count of all pushes ever made

	rng *rand.Rand

	kind    config.ReplayKind
	alpha   float64
	beta    float64
	epsilon float64
}

// New builds a Buffer with room for capacity transitions. seed should
// be derived as run_seed XOR a buffer-specific salt so sampling stays
// reproducible without colliding with other seeded RNGs in the system.
func New(capacity int, seed int64, kind config.ReplayKind, alpha, beta, epsilon float64) *Buffer {
	return &Buffer{
		slots:    make([]rlenv.Transition, capacity),
		priority: make([]float64, capacity),
		capacity: capacity,
		rng:      rand.New(rand.NewSource(seed)),
		kind:     kind,
		alpha:    alpha,
		beta:     beta,
		epsilon:  epsilon,
	}
}

func (b *Buffer) Len() int      { return b.size }
func (b *Buffer) Capacity() int { return b.capacity }

// Total returns the number of pushes ever made, including evicted
// ones; the pipeline logs this as the ingestion-order fingerprint.
func (b *Buffer) Total() int { return b.total }

// Push adds a transition, evicting the oldest one if the buffer is
// full. New transitions start at maximum known priority so they are
// likely to be sampled at least once before their TD error is known.
func (b *Buffer) Push(t rlenv.Transition) {
	maxPriority := 1.0
	for i := 0; i < b.size; i++ {
		if b.priority[i] > maxPriority {
			maxPriority = b.priority[i]
		}
	}

	b.slots[b.next] = t
	b.priority[b.next] = maxPriority
	b.next = (b.next + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
	b.total++
}

// Sample draws batchSize transitions: without replacement in uniform
// mode, and as independent priority-weighted draws (so an index can
// repeat) in prioritized mode. Below
// batchSize transitions in the buffer, it returns an empty Batch
// rather than padding with garbage.
func (b *Buffer) Sample(batchSize int) Batch {
	if b.size < batchSize || batchSize <= 0 {
		return Batch{}
	}

	if b.kind == config.ReplayPrioritized {
		return b.samplePrioritized(batchSize)
	}
	return b.sampleUniform(batchSize)
}

func (b *Buffer) sampleUniform(batchSize int) Batch {
	indices := b.rng.Perm(b.size)[:batchSize]
	out := Batch{
		Transitions: make([]rlenv.Transition, batchSize),
		Indices:     indices,
		Weights:     nil,
	}
	for i, idx := range indices {
		out.Transitions[i] = b.slots[idx]
	}
	return out
}

// samplePrioritized draws indices with probability proportional to
// priority^alpha+epsilon (priorities already store p=|td|^alpha+eps,
// see UpdatePriorities) and returns normalized importance weights
// w_i = (1/(N*P(i)))^beta / max_w.
func (b *Buffer) samplePrioritized(batchSize int) Batch {
	sum := 0.0
	for i := 0; i < b.size; i++ {
		sum += b.priority[i]
	}
	if sum <= 0 {
		return b.sampleUniform(batchSize)
	}

	indices := make([]int, batchSize)
	probs := make([]float64, batchSize)
	for i := 0; i < batchSize; i++ {
		target := b.rng.Float64() * sum
		cum := 0.0
		chosen := b.size - 1
		for j := 0; j < b.size; j++ {
			cum += b.priority[j]
			if cum >= target {
				chosen = j
				break
			}
		}
		indices[i] = chosen
		probs[i] = b.priority[chosen] / sum
	}

	weights := make([]float64, batchSize)
	maxWeight := 0.0
	n := float64(b.size)
	for i, p := range probs {
		w := pow(1.0/(n*p), b.beta)
		weights[i] = w
		if w > maxWeight {
			maxWeight = w
		}
	}
	if maxWeight > 0 {
		for i := range weights {
			weights[i] /= maxWeight
		}
	}

	transitions := make([]rlenv.Transition, batchSize)
	for i, idx := range indices {
		transitions[i] = b.slots[idx]
	}

	return Batch{Transitions: transitions, Indices: indices, Weights: weights}
}

// UpdatePriorities is the only way priorities change in prioritized
// mode; it is called with fresh |td_error| values after a train step.
// Concurrent calls are not supported — the control plane is
// single-threaded, so no locking is needed here.
func (b *Buffer) UpdatePriorities(indices []int, tdErrors []float64) {
	for i, idx := range indices {
		if idx < 0 || idx >= b.size {
			continue
		}
		b.priority[idx] = pow(absF(tdErrors[i]), b.alpha) + b.epsilon
	}
}

func pow(x, y float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Pow(x, y)
}

func absF(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
