package selfplay

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/evanburke/chessrl/internal/boardgame"
	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/rlenv"
	"github.com/evanburke/chessrl/internal/runctx"
)

// pairing is one game's color assignment, decided by the orchestrator's
// own seeded RNG up front so that the worker subprocesses never decide
// fairness themselves.
type pairing struct {
	learnerColor boardgame.Color
}

// Orchestrator runs one self-play cycle: it spawns up to
// MaxConcurrentGames worker subprocesses, each playing a share of
// GamesPerCycle games against a frozen snapshot, collects their
// transitions in completion order, and isolates per-game failures so a
// single crashed or slow worker never aborts the whole cycle.
type Orchestrator struct {
	rc    *runctx.Context
	clock quartz.Clock

	// workerBinary, when set, is re-executed as the worker subprocess
	// with --worker appended to its argv. Tests substitute a stub
	// binary; cmd/chessrl passes os.Executable().
	workerBinary string
}

// NewOrchestrator builds an Orchestrator. clock defaults to the real
// wall clock when nil, mirroring the sdk's quartz.NewReal() usage for
// any caller that does not need deterministic timeouts.
func NewOrchestrator(rc *runctx.Context, clock quartz.Clock, workerBinary string) *Orchestrator {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Orchestrator{rc: rc, clock: clock, workerBinary: workerBinary}
}

// CycleResult is what one self-play cycle produces: every learner-side
// transition across all completed games, plus the per-game outcomes
// for metrics (win/loss/draw counts, average game length, truncation
// rate).
type CycleResult struct {
	Transitions  []rlenv.Transition
	Outcomes     []GameOutcome
	GamesPlanned int
	GamesPlayed  int
	Fallback     bool // true if the cycle ran sequentially in-process
}

// RunCycle plays GamesPerCycle games against snapshotPath and returns
// the learner's collected transitions. Per-game failures (timeout,
// nonzero exit, unparsable output) are dropped; the cycle itself only
// fails if fewer than half the planned games produced a usable
// outcome, per the self-play failure-isolation contract.
func (o *Orchestrator) RunCycle(ctx context.Context, snapshotPath string, cycleIdx int) (CycleResult, error) {
	cfg := o.rc.Config
	total := cfg.GamesPerCycle
	if total <= 0 {
		return CycleResult{}, fmt.Errorf("selfplay: games_per_cycle must be > 0")
	}

	pairings := o.assignPairings(cycleIdx, total)

	workers := cfg.MaxConcurrentGames
	if workers > total {
		workers = total
	}
	if workers < 1 {
		workers = 1
	}

	shares := distribute(total, workers)

	if !o.canSpawn() {
		outcomes, err := o.runSequential(ctx, cfg, snapshotPath, pairings)
		if err != nil {
			return o.collect(outcomes, total, true), err
		}
		return o.collect(outcomes, total, true), o.checkMinimumCompletion(outcomes, total)
	}

	outChan := make(chan []GameOutcome, workers)
	g, gctx := errgroup.WithContext(ctx)

	idx := 0
	for w := 0; w < workers; w++ {
		w := w
		n := shares[w]
		if n == 0 {
			continue
		}
		myPairings := pairings[idx : idx+n]
		idx += n

		g.Go(func() error {
			outcomes, err := o.runWorkerProcess(gctx, w, snapshotPath, myPairings)
			if err != nil {
				o.rc.Log.Warn().Err(err).Int("worker", w).Msg("self-play worker failed, its games are dropped")
				outChan <- nil
				return nil
			}
			outChan <- outcomes
			return nil
		})
	}

	go func() {
		g.Wait()
		close(outChan)
	}()

	var all []GameOutcome
	for outcomes := range outChan {
		all = append(all, outcomes...)
	}

	if len(all) == 0 {
		// No worker produced anything usable (e.g. the binary exists
		// but every invocation failed) -- fall back to running the
		// whole cycle in-process rather than reporting a zero-game
		// cycle.
		outcomes, err := o.runSequential(ctx, cfg, snapshotPath, pairings)
		if err != nil {
			return o.collect(outcomes, total, true), err
		}
		return o.collect(outcomes, total, true), o.checkMinimumCompletion(outcomes, total)
	}

	return o.collect(all, total, false), o.checkMinimumCompletion(all, total)
}

func (o *Orchestrator) collect(outcomes []GameOutcome, planned int, fallback bool) CycleResult {
	res := CycleResult{Outcomes: outcomes, GamesPlanned: planned, GamesPlayed: len(outcomes), Fallback: fallback}
	for _, oc := range outcomes {
		res.Transitions = append(res.Transitions, oc.Transitions...)
	}
	return res
}

// checkMinimumCompletion enforces the failure-isolation floor: a cycle
// only aborts outright when fewer than half its planned games produced
// a usable outcome. Individual dropped games never fail the cycle on
// their own.
func (o *Orchestrator) checkMinimumCompletion(outcomes []GameOutcome, planned int) error {
	if len(outcomes) < (planned+1)/2 {
		return fmt.Errorf("selfplay: only %d/%d games completed, aborting cycle", len(outcomes), planned)
	}
	return nil
}

// assignPairings builds a color-fair, shuffled assignment of
// GamesPerCycle games. Games alternate learner color in equal halves
// (or as close to equal as an odd count allows), then the order is
// shuffled by a seed derived from the run seed and cycle index so
// repeated cycles do not always play white-then-black in the same
// block order, while remaining fully reproducible.
func (o *Orchestrator) assignPairings(cycleIdx, total int) []pairing {
	pairings := make([]pairing, total)
	for i := 0; i < total; i++ {
		if i%2 == 0 {
			pairings[i] = pairing{learnerColor: boardgame.White}
		} else {
			pairings[i] = pairing{learnerColor: boardgame.Black}
		}
	}
	rng := rand.New(rand.NewSource(o.rc.Derive(int64(cycleIdx)<<1 ^ 0x5352)))
	rng.Shuffle(total, func(i, j int) { pairings[i], pairings[j] = pairings[j], pairings[i] })
	return pairings
}

func distribute(total, workers int) []int {
	shares := make([]int, workers)
	base := total / workers
	rem := total % workers
	for w := 0; w < workers; w++ {
		shares[w] = base
		if w < rem {
			shares[w]++
		}
	}
	return shares
}

// canSpawn reports whether this Orchestrator has a worker binary to
// re-exec. Tests that only exercise the sequential fallback leave
// workerBinary empty.
func (o *Orchestrator) canSpawn() bool {
	return o.workerBinary != ""
}

// runWorkerProcess spawns one self-play worker subprocess covering the
// given pairings, waits for it (bounded by PerGameTimeoutSecs per
// game), and reads back its transition batch files. A process-start
// failure (missing binary, permission denied) is reported as an error
// so the caller can fall back to sequential execution; a nonzero exit
// after a successful start only drops that worker's games.
func (o *Orchestrator) runWorkerProcess(ctx context.Context, workerIdx int, snapshotPath string, pairings []pairing) ([]GameOutcome, error) {
	cfg := o.rc.Config
	outDir := o.rc.Dir.WorkerOut(workerIdx)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("selfplay: create worker output dir: %w", err)
	}

	budget := time.Duration(float64(len(pairings)) * cfg.PerGameTimeoutSecs * float64(time.Second))
	wctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	colorArg := make([]byte, len(pairings))
	for i, p := range pairings {
		if p.learnerColor == boardgame.White {
			colorArg[i] = 'w'
		} else {
			colorArg[i] = 'b'
		}
	}

	cfgBytes, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("selfplay: marshal worker config: %w", err)
	}

	cmd := exec.CommandContext(wctx, o.workerBinary, "--worker")
	cmd.Env = append(os.Environ(),
		EnvSnapshot+"="+snapshotPath,
		EnvSeed+"="+strconv.FormatInt(o.rc.Derive(int64(workerIdx)), 10),
		EnvOut+"="+outDir,
		EnvGames+"="+strconv.Itoa(len(pairings)),
		EnvWorkerID+"="+strconv.Itoa(workerIdx),
		EnvLearnerColor+"="+string(colorArg),
		EnvConfig+"="+string(cfgBytes),
	)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("selfplay: start worker %d: %w", workerIdx, err)
	}

	waitErr := cmd.Wait()
	outcomes := o.readBackWorkerGames(outDir, len(pairings))
	if waitErr != nil && len(outcomes) == 0 {
		return nil, fmt.Errorf("selfplay: worker %d exited with no usable games: %w", workerIdx, waitErr)
	}
	return outcomes, nil
}

func (o *Orchestrator) readBackWorkerGames(outDir string, n int) []GameOutcome {
	var outcomes []GameOutcome
	for i := 0; i < n; i++ {
		path := filepath.Join(outDir, "game-"+strconv.Itoa(i)+".bin")
		transitions, err := ReadTransitionBatch(path)
		if err != nil {
			continue // this game's file is missing or unreadable; drop only this game
		}
		outcomes = append(outcomes, GameOutcome{Transitions: transitions})
	}
	return outcomes
}

// runSequential plays every pairing in-process via PlayGame, used both
// when no worker binary is configured and as the last-resort fallback
// when every spawned worker fails outright. Each game is still bounded
// by PerGameTimeoutSecs, enforced with the Orchestrator's clock so the
// bound is deterministically testable.
func (o *Orchestrator) runSequential(ctx context.Context, cfg config.Config, snapshotPath string, pairings []pairing) ([]GameOutcome, error) {
	var outcomes []GameOutcome
	budget := time.Duration(cfg.PerGameTimeoutSecs * float64(time.Second))

	for i, p := range pairings {
		select {
		case <-ctx.Done():
			return outcomes, ctx.Err()
		default:
		}

		gc := GameConfig{
			SnapshotPath:    snapshotPath,
			LearnerSeed:     o.rc.Derive(int64(i)<<1 + 1),
			OpponentSeed:    o.rc.Derive(int64(i) << 1),
			LearnerColor:    p.learnerColor,
			LearnerEpsilon:  cfg.ExplorationRate,
			OpponentEpsilon: 0,
		}

		outcome, err := o.playWithDeadline(cfg, gc, budget)
		if err != nil {
			o.rc.Log.Warn().Err(err).Int("game", i).Msg("self-play game failed in-process, dropped")
			continue
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// playWithDeadline runs PlayGame on its own goroutine and races it
// against the clock's timer, so a runaway game cannot stall a whole
// cycle. On timeout the goroutine is abandoned (PlayGame has no
// cancellation point); this trades a leaked goroutine for a bounded
// cycle, acceptable since timeouts are expected to be rare.
func (o *Orchestrator) playWithDeadline(cfg config.Config, gc GameConfig, budget time.Duration) (GameOutcome, error) {
	type result struct {
		outcome GameOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := PlayGame(cfg, gc)
		done <- result{outcome, err}
	}()

	timer := o.clock.NewTimer(budget)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.outcome, r.err
	case <-timer.C:
		return GameOutcome{}, fmt.Errorf("selfplay: game exceeded %s timeout", budget)
	}
}
