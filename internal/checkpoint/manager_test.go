package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/learner"
	"github.com/evanburke/chessrl/internal/rlerr"
	"github.com/evanburke/chessrl/internal/runctx"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.HiddenLayers = []int{8}
	cfg.BatchSize = 4
	cfg.KeepLastK = 2
	cfg.KeepEveryNth = 5
	return cfg
}

func testManager(t *testing.T) (*Manager, *runctx.Context) {
	t.Helper()
	cfg := testConfig()
	rc := runctx.New(1, cfg, t.TempDir(), zerolog.Nop())
	return New(rc), rc
}

func TestSaveCycleWritesReadableFiles(t *testing.T) {
	m, rc := testManager(t)
	l, err := learner.New(rc.Config, 1)
	require.NoError(t, err)

	require.NoError(t, m.SaveCycle(3, l, 0.6))

	dir := rc.Dir.Cycle(3)
	for _, name := range []string{"params.bin", "opt.bin", "meta.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "expected %s to exist", name)
	}
}

func TestLoadRestoresArchitectureMatchingCheckpoint(t *testing.T) {
	m, rc := testManager(t)
	l, err := learner.New(rc.Config, 1)
	require.NoError(t, err)
	l.SetTrainSteps(7)
	require.NoError(t, m.SaveCycle(0, l, 0.5))

	restored, meta, err := Load(rc.Dir.Cycle(0), rc.Config, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, meta.Cycle)
	assert.Equal(t, 0.5, meta.OutcomeScore)
	assert.Equal(t, l.Network().Features(), restored.Network().Features())
	assert.Equal(t, l.Network().Outputs(), restored.Network().Outputs())
	assert.Equal(t, 7, restored.TrainSteps())
}

func TestLoadRejectsArchitectureMismatch(t *testing.T) {
	m, rc := testManager(t)
	l, err := learner.New(rc.Config, 1)
	require.NoError(t, err)
	require.NoError(t, m.SaveCycle(0, l, 0.5))

	mismatched := rc.Config
	mismatched.HiddenLayers = []int{8, 8}

	_, _, err = Load(rc.Dir.Cycle(0), mismatched, 1)
	require.Error(t, err)

	var archErr *rlerr.ArchitectureMismatchError
	require.ErrorAs(t, err, &archErr)
	assert.Equal(t, "hidden_layers", archErr.Field)
}

func TestPromoteToBestAndPointerRoundTrip(t *testing.T) {
	m, rc := testManager(t)
	l, err := learner.New(rc.Config, 1)
	require.NoError(t, err)

	require.NoError(t, m.PromoteToBest(2, l, 0.75))
	require.NoError(t, m.UpdatePointer(Pointer{BestCycle: 2, BestOutcomeScore: 0.75, LastCycle: 2}))

	p, err := m.ReadPointer()
	require.NoError(t, err)
	assert.Equal(t, 2, p.BestCycle)
	assert.Equal(t, 0.75, p.BestOutcomeScore)

	_, meta, err := Load(rc.Dir.Best(), rc.Config, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.75, meta.OutcomeScore)
}

func TestReadPointerOnFreshRunReturnsZeroValue(t *testing.T) {
	m, _ := testManager(t)
	p, err := m.ReadPointer()
	require.NoError(t, err)
	assert.Equal(t, Pointer{}, p)
}

func TestRetainKeepsLastKAndEveryNth(t *testing.T) {
	m, rc := testManager(t)
	l, err := learner.New(rc.Config, 1)
	require.NoError(t, err)

	for i := 0; i <= 12; i++ {
		require.NoError(t, m.SaveCycle(i, l, 0.1))
	}
	require.NoError(t, m.Retain(12))

	// KeepLastK=2 keeps {11,12}; KeepEveryNth=5 keeps {0,5,10}.
	for _, keep := range []int{0, 5, 10, 11, 12} {
		_, err := os.Stat(rc.Dir.Cycle(keep))
		assert.NoError(t, err, "cycle %d should survive retention", keep)
	}
	for _, dropped := range []int{1, 2, 3, 4, 6, 7, 8, 9} {
		_, err := os.Stat(rc.Dir.Cycle(dropped))
		assert.True(t, os.IsNotExist(err), "cycle %d should have been pruned", dropped)
	}
}

func TestWriteSnapshotLeavesNoTempDirs(t *testing.T) {
	m, rc := testManager(t)
	l, err := learner.New(rc.Config, 1)
	require.NoError(t, err)
	require.NoError(t, m.SaveCycle(0, l, 0.1))

	entries, err := os.ReadDir(rc.Dir.Root)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, filepathHasTempPrefix(e.Name()), "no leftover temp dirs after a successful save")
	}
}

func filepathHasTempPrefix(name string) bool {
	return len(name) >= 5 && name[:5] == ".tmp-"
}
