package selfplay

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/rs/zerolog"

	"github.com/evanburke/chessrl/internal/runctx"
)

func TestRunCycleSequentialFallbackPlaysAllGames(t *testing.T) {
	cfg := testConfig()
	cfg.GamesPerCycle = 3
	cfg.MaxConcurrentGames = 2
	rc := runctx.New(42, cfg, t.TempDir(), zerolog.Nop())

	o := NewOrchestrator(rc, quartz.NewReal(), "") // no workerBinary: forces sequential fallback
	snapshot := saveTestSnapshot(t)

	res, err := o.RunCycle(context.Background(), snapshot, 0)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, 3, res.GamesPlanned)
	assert.Equal(t, 3, res.GamesPlayed)
	assert.NotEmpty(t, res.Transitions)
}

func TestAssignPairingsAreColorBalanced(t *testing.T) {
	cfg := testConfig()
	cfg.GamesPerCycle = 10
	rc := runctx.New(7, cfg, t.TempDir(), zerolog.Nop())
	o := NewOrchestrator(rc, quartz.NewReal(), "")

	pairings := o.assignPairings(0, 10)
	require.Len(t, pairings, 10)

	var whites int
	for _, p := range pairings {
		if p.learnerColor == 0 { // boardgame.White is the zero value
			whites++
		}
	}
	assert.Equal(t, 5, whites)
}

func TestDistributeSpreadsRemainderAcrossWorkers(t *testing.T) {
	shares := distribute(10, 3)
	total := 0
	for _, s := range shares {
		total += s
	}
	assert.Equal(t, 10, total)
	assert.Len(t, shares, 3)
}

func TestPlayWithDeadlineTimesOutOnMockClock(t *testing.T) {
	cfg := testConfig()
	rc := runctx.New(1, cfg, t.TempDir(), zerolog.Nop())
	clock := quartz.NewMock(t)
	o := NewOrchestrator(rc, clock, "")

	snapshot := saveTestSnapshot(t)
	gc := GameConfig{
		SnapshotPath:    snapshot,
		LearnerSeed:     1,
		OpponentSeed:    2,
		LearnerEpsilon:  1.0,
		OpponentEpsilon: 1.0,
	}

	resultCh := make(chan error, 1)
	go func() {
		_, err := o.playWithDeadline(cfg, gc, time.Millisecond)
		resultCh <- err
	}()

	clock.Advance(time.Millisecond).MustWait(context.Background())

	select {
	case err := <-resultCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("playWithDeadline did not honor the mock clock timeout")
	}
}
