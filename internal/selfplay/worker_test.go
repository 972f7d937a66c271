package selfplay

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"

	"github.com/evanburke/chessrl/internal/agent"
	"github.com/evanburke/chessrl/internal/boardgame"
	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/qnet"
	"github.com/evanburke/chessrl/internal/rlenv"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.HiddenLayers = []int{16}
	cfg.MaxStepsPerGame = 40
	return cfg
}

func saveTestSnapshot(t *testing.T) string {
	t.Helper()
	g := G.NewGraph()
	net, err := qnet.New(g, rlenv.StateLen, 1, rlenv.ActionSpace, []int{16}, []*qnet.Activation{qnet.ReLU()}, qnet.GlorotUniform.Build(1.0))
	require.NoError(t, err)
	a, err := agent.New(net, 0.2, 7)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "snapshot.gob")
	require.NoError(t, a.Save(path))
	return path
}

func TestPlayGameProducesOnlyLearnerSideTransitions(t *testing.T) {
	cfg := testConfig()
	snapshot := saveTestSnapshot(t)

	gc := GameConfig{
		SnapshotPath:    snapshot,
		LearnerSeed:     1,
		OpponentSeed:    2,
		LearnerColor:    boardgame.White,
		LearnerEpsilon:  1.0,
		OpponentEpsilon: 1.0,
	}

	outcome, err := PlayGame(cfg, gc)
	require.NoError(t, err)
	require.NotEmpty(t, outcome.Transitions)

	for i, tr := range outcome.Transitions {
		if i < len(outcome.Transitions)-1 {
			assert.False(t, tr.Done)
		}
		// White moves on odd plies, so every stored transition is White's.
		assert.Equal(t, 1, tr.Ply%2, "transition %d is not a learner (White) move", i)
	}
	assert.True(t, outcome.Transitions[len(outcome.Transitions)-1].Done)
	assert.LessOrEqual(t, outcome.Plies, cfg.MaxStepsPerGame+1)
}

func TestPlayGameStepLimitTruncatesAndFlagsOutcome(t *testing.T) {
	cfg := testConfig()
	cfg.MaxStepsPerGame = 2
	snapshot := saveTestSnapshot(t)

	gc := GameConfig{
		SnapshotPath:    snapshot,
		LearnerSeed:     3,
		OpponentSeed:    4,
		LearnerColor:    boardgame.Black,
		LearnerEpsilon:  1.0,
		OpponentEpsilon: 1.0,
	}

	outcome, err := PlayGame(cfg, gc)
	require.NoError(t, err)
	require.True(t, outcome.StepLimited, "no game can end naturally within 2 plies")
	assert.LessOrEqual(t, outcome.Plies, cfg.MaxStepsPerGame+1)
}

func TestLearnerPerspectiveRewardMirrorsColor(t *testing.T) {
	cfg := testConfig()

	white := learnerPerspectiveReward(cfg, boardgame.White, rlenv.StepInfo{Result: boardgame.WhiteWins})
	assert.Equal(t, float32(cfg.WinReward), white)

	black := learnerPerspectiveReward(cfg, boardgame.Black, rlenv.StepInfo{Result: boardgame.WhiteWins})
	assert.Equal(t, float32(cfg.LossReward), black)

	draw := learnerPerspectiveReward(cfg, boardgame.White, rlenv.StepInfo{Result: boardgame.Draw})
	assert.Equal(t, float32(cfg.DrawReward), draw)

	limited := learnerPerspectiveReward(cfg, boardgame.White, rlenv.StepInfo{StepLimit: true})
	assert.Equal(t, float32(cfg.StepLimitPenalty), limited)
}
