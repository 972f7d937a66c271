package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"

	"github.com/evanburke/chessrl/internal/agent"
	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/qnet"
	"github.com/evanburke/chessrl/internal/rlenv"
)

func evalTestConfig() config.Config {
	cfg := config.Default()
	cfg.HiddenLayers = []int{8}
	cfg.MaxStepsPerGame = 20
	return cfg
}

func saveEvalSnapshot(t *testing.T, seed int64) string {
	t.Helper()
	g := G.NewGraph()
	net, err := qnet.New(g, rlenv.StateLen, 1, rlenv.ActionSpace, []int{8}, []*qnet.Activation{qnet.ReLU()}, qnet.GlorotUniform.Build(1.0))
	require.NoError(t, err)
	a, err := agent.New(net, 1.0, seed)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "snapshot.gob")
	require.NoError(t, a.Save(path))
	return path
}

func TestEvaluatePlaysRequestedGameCountAndAlternatesColors(t *testing.T) {
	cfg := evalTestConfig()
	challenger := saveEvalSnapshot(t, 1)
	incumbent := saveEvalSnapshot(t, 2)

	res, err := Evaluate(cfg, challenger, incumbent, 4, 42)
	require.NoError(t, err)
	require.Equal(t, 4, res.Games)
	require.Equal(t, res.Wins+res.Draws+res.Losses, res.Games)
}

func TestEvalResultTiePromotes(t *testing.T) {
	res := EvalResult{Wins: 1, Draws: 2, Losses: 1, Games: 4}
	require.InDelta(t, 0.5, res.Score(), 1e-9)
	require.True(t, res.Promotes())
}

func TestEvalResultLosingRecordDoesNotPromote(t *testing.T) {
	res := EvalResult{Wins: 1, Draws: 0, Losses: 3, Games: 4}
	require.False(t, res.Promotes())
}

func TestEvalResultZeroGamesDoesNotPromote(t *testing.T) {
	var res EvalResult
	require.False(t, res.Promotes())
}
