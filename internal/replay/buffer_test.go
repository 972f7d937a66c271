package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/rlenv"
)

func fixtureTransition(action int, done bool) rlenv.Transition {
	mask := make([]byte, rlenv.ActionSpace)
	if !done {
		mask[0] = 1
	}
	return rlenv.Transition{
		State:     make([]float32, rlenv.StateLen),
		Action:    action,
		Reward:    0,
		NextState: make([]float32, rlenv.StateLen),
		NextMask:  mask,
		Done:      done,
	}
}

func TestSampleBelowBatchSizeReturnsEmpty(t *testing.T) {
	b := New(100, 1, config.ReplayUniform, 0, 0, 0)
	b.Push(fixtureTransition(0, false))

	batch := b.Sample(32)
	assert.True(t, batch.Empty())
}

func TestPushEvictsOldestWhenFull(t *testing.T) {
	b := New(3, 1, config.ReplayUniform, 0, 0, 0)
	for i := 0; i < 5; i++ {
		b.Push(fixtureTransition(i, false))
	}
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 5, b.Total())

	// Actions 0 and 1 were the two oldest pushes and must be gone.
	var actions []int
	for _, tr := range b.slots[:b.Len()] {
		actions = append(actions, tr.Action)
	}
	assert.ElementsMatch(t, []int{2, 3, 4}, actions)
}

func TestSampleIsDeterministicForFixedSeedAndContent(t *testing.T) {
	build := func() *Buffer {
		b := New(50, 42, config.ReplayUniform, 0, 0, 0)
		for i := 0; i < 50; i++ {
			b.Push(fixtureTransition(i, false))
		}
		return b
	}

	b1 := build()
	b2 := build()

	batch1 := b1.Sample(16)
	batch2 := b2.Sample(16)

	assert.Equal(t, batch1.Indices, batch2.Indices, "same seed and content must sample identical indices")
}

func TestSampledBatchNeverViolatesMaskInvariant(t *testing.T) {
	b := New(10, 7, config.ReplayUniform, 0, 0, 0)
	for i := 0; i < 10; i++ {
		done := i%3 == 0
		b.Push(fixtureTransition(i, done))
	}

	batch := b.Sample(8)
	for _, tr := range batch.Transitions {
		if tr.Done {
			continue
		}
		sum := 0
		for _, m := range tr.NextMask {
			sum += int(m)
		}
		assert.GreaterOrEqual(t, sum, 1, "non-terminal transition must carry a non-empty next_mask")
	}
}

func TestPrioritizedSampleReturnsWeights(t *testing.T) {
	b := New(20, 3, config.ReplayPrioritized, 0.6, 0.4, 1e-3)
	for i := 0; i < 20; i++ {
		b.Push(fixtureTransition(i, false))
	}
	b.UpdatePriorities([]int{0, 1, 2}, []float64{5.0, 0.1, 2.0})

	batch := b.Sample(8)
	assert.Len(t, batch.Weights, 8)
	for _, w := range batch.Weights {
		assert.GreaterOrEqual(t, w, 0.0)
		assert.LessOrEqual(t, w, 1.0)
	}
}
