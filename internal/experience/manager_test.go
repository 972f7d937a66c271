package experience

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/rlenv"
)

func fixtureGame(n int, finalReward float32) []rlenv.Transition {
	out := make([]rlenv.Transition, n)
	for i := 0; i < n; i++ {
		out[i] = rlenv.Transition{
			State:     make([]float32, rlenv.StateLen),
			NextState: make([]float32, rlenv.StateLen),
			NextMask:  make([]byte, rlenv.ActionSpace),
			Ply:       i + 1,
			Done:      i == n-1,
		}
	}
	out[n-1].Reward = finalReward
	return out
}

func testCfg() config.Config {
	c := config.Default()
	c.MaxExperienceBuffer = 100
	c.HighQualitySize = 20
	c.RecentSize = 20
	return c
}

func TestIngestRoutesIntoPrimaryAndRecent(t *testing.T) {
	m := New(testCfg(), 1)
	m.Ingest(fixtureGame(5, float32(testCfg().WinReward)))

	assert.Equal(t, 5, m.PrimaryLen())
	assert.Equal(t, 5, m.RecentLen())
	assert.Equal(t, 5, m.TotalIngested())
}

func TestDecisiveWinGameReachesHighQualityTail(t *testing.T) {
	cfg := testCfg()
	m := New(cfg, 1)
	// The last transition is near-terminal (proximity 1.0) and the
	// game is a decisive win, so it should clear the high-quality
	// threshold regardless of rarity at start-up (rarity is 1.0 when
	// nothing has been ingested yet).
	m.Ingest(fixtureGame(3, float32(cfg.WinReward)))

	assert.Greater(t, m.HighQualityLen(), 0)
}

func TestStepLimitGameScoresLowerThanDecisiveWin(t *testing.T) {
	cfg := testCfg()

	winM := New(cfg, 1)
	winM.Ingest(fixtureGame(4, float32(cfg.WinReward)))

	limitM := New(cfg, 1)
	limitGame := fixtureGame(4, float32(cfg.StepLimitPenalty))
	limitM.Ingest(limitGame)

	winDecisive := winM.gameDecisiveness(fixtureGame(4, float32(cfg.WinReward))[3])
	limitDecisive := limitM.gameDecisiveness(limitGame[3])
	assert.Greater(t, winDecisive, limitDecisive)
}

func TestSampleUniformDrawsFromPrimaryOnly(t *testing.T) {
	cfg := testCfg()
	cfg.SamplingStrategy = config.SamplingUniform
	m := New(cfg, 1)
	m.Ingest(fixtureGame(10, float32(cfg.WinReward)))

	batch := m.Sample(4)
	require.False(t, batch.Empty())
	for _, idx := range batch.Indices {
		assert.Less(t, idx, offsetRecent)
	}
}

func TestSampleMixedBlendsPrimaryAndRecent(t *testing.T) {
	cfg := testCfg()
	cfg.SamplingStrategy = config.SamplingMixed
	cfg.MixedAlpha = 0.5
	m := New(cfg, 1)
	m.Ingest(fixtureGame(20, float32(cfg.WinReward)))

	batch := m.Sample(10)
	require.False(t, batch.Empty())

	var fromRecent int
	for _, idx := range batch.Indices {
		if idx >= offsetRecent {
			fromRecent++
		}
	}
	assert.Greater(t, fromRecent, 0, "mixed sampling should draw at least one recent-tail transition")
	assert.Less(t, fromRecent, len(batch.Indices), "mixed sampling should draw at least one primary transition")
}

func TestUpdatePrioritiesRoutesByOffsetTag(t *testing.T) {
	cfg := testCfg()
	cfg.ReplayType = config.ReplayPrioritized
	cfg.SamplingStrategy = config.SamplingMixed
	m := New(cfg, 1)
	m.Ingest(fixtureGame(20, float32(cfg.WinReward)))

	batch := m.Sample(10)
	require.False(t, batch.Empty())

	tdErrors := make([]float64, len(batch.Indices))
	for i := range tdErrors {
		tdErrors[i] = 0.5
	}

	assert.NotPanics(t, func() {
		m.UpdatePriorities(batch.Indices, tdErrors)
	})
}

func TestZeroSizedHighQualityAndRecentBuffersAreNilSafe(t *testing.T) {
	cfg := testCfg()
	cfg.HighQualitySize = 0
	cfg.RecentSize = 0
	m := New(cfg, 1)

	m.Ingest(fixtureGame(3, float32(cfg.WinReward)))
	assert.Equal(t, 0, m.HighQualityLen())
	assert.Equal(t, 0, m.RecentLen())

	batch := m.Sample(3)
	assert.False(t, batch.Empty())
}
