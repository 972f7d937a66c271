package learner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/replay"
	"github.com/evanburke/chessrl/internal/rlenv"
	"github.com/evanburke/chessrl/internal/rlerr"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.HiddenLayers = []int{16}
	cfg.BatchSize = 4
	cfg.TargetUpdateFrequency = 2
	return cfg
}

func fixtureBatch(n int, actionOn bool) replay.Batch {
	transitions := make([]rlenv.Transition, n)
	for i := range transitions {
		mask := make([]byte, rlenv.ActionSpace)
		mask[0] = 1
		mask[1] = 1
		done := i%4 == 3
		if done {
			mask = nil
		}
		action := 0
		if actionOn && i%2 == 0 {
			action = 1
		}
		transitions[i] = rlenv.Transition{
			State:     make([]float32, rlenv.StateLen),
			Action:    action,
			Reward:    float32(i%3) - 1,
			NextState: make([]float32, rlenv.StateLen),
			NextMask:  mask,
			Done:      done,
		}
	}
	return replay.Batch{Transitions: transitions, Indices: seqIndices(n)}
}

func seqIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestTrainBatchEmptyIsNoOp(t *testing.T) {
	l, err := New(testConfig(), 1)
	require.NoError(t, err)

	result, err := l.TrainBatch(replay.Batch{})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Zero(t, result.Loss)
}

func TestTrainBatchRejectsAllZeroNextMaskWithoutDone(t *testing.T) {
	l, err := New(testConfig(), 1)
	require.NoError(t, err)

	batch := fixtureBatch(4, true)
	batch.Transitions[1].Done = false
	batch.Transitions[1].NextMask = make([]byte, rlenv.ActionSpace)

	_, err = l.TrainBatch(batch)
	require.Error(t, err)

	var invalid *rlerr.InvalidBatchError
	assert.ErrorAs(t, err, &invalid)
}

func TestTrainBatchProducesFiniteMetricsAndUpdatesPriorities(t *testing.T) {
	l, err := New(testConfig(), 1)
	require.NoError(t, err)

	batch := fixtureBatch(4, true)
	result, err := l.TrainBatch(batch)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Len(t, result.UpdatedPriorities, 4)
	assert.GreaterOrEqual(t, result.GradNorm, 0.0)
}

func TestTargetSyncsAfterConfiguredFrequency(t *testing.T) {
	cfg := testConfig()
	cfg.TargetUpdateFrequency = 2
	l, err := New(cfg, 1)
	require.NoError(t, err)

	batch := fixtureBatch(4, true)
	for i := 0; i < 2; i++ {
		_, err := l.TrainBatch(batch)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, l.trainSteps)

	// The second step hit the sync cadence, so θ̂ now equals θ.
	train := l.trainNet.Learnables()
	for i, w := range l.targetNet.Learnables() {
		assert.Equal(t, train[i].Value().Data(), w.Value().Data(), "learnable %d not synced", i)
	}
}

func TestLegacyNextActionProviderFillsMissingMask(t *testing.T) {
	l, err := New(testConfig(), 1)
	require.NoError(t, err)

	called := false
	l.SetNextActionProvider(func(state []float32) []byte {
		called = true
		mask := make([]byte, rlenv.ActionSpace)
		mask[0] = 1
		return mask
	})

	batch := fixtureBatch(4, true)
	batch.Transitions[0].Done = false
	batch.Transitions[0].NextMask = nil

	_, err = l.TrainBatch(batch)
	require.NoError(t, err)
	assert.True(t, called)
}
