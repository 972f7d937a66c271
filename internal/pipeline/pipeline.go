// Package pipeline drives the outer training cycle: snapshot the
// online network, run self-play against it, route the resulting
// transitions into the experience manager, train on sampled batches,
// evaluate the trained network head-to-head against the current best,
// checkpoint, and emit one metrics.ndjson record per cycle. It owns
// the run's top-level INIT/RUNNING/PAUSED/STOPPED state machine and is
// the single place that converts a component's typed error into
// cycle-level policy (skip, retry-once, abort-cycle, abort-run).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/evanburke/chessrl/internal/agent"
	"github.com/evanburke/chessrl/internal/checkpoint"
	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/experience"
	"github.com/evanburke/chessrl/internal/learner"
	"github.com/evanburke/chessrl/internal/progressbar"
	"github.com/evanburke/chessrl/internal/rlerr"
	"github.com/evanburke/chessrl/internal/runctx"
	"github.com/evanburke/chessrl/internal/selfplay"
)

// Seed salts for the components the pipeline itself constructs,
// following the run-seed XOR-salt convention used throughout (see
// internal/experience's saltPrimary/saltHighQuality/saltRecent and
// internal/selfplay's Derive call sites).
const (
	saltLearner    = 0x6c656172 // "lear"
	saltExperience = 0x6578706d // "expm"
	saltEval       = 0x6576616c // "eval"
)

// State is one of the top-level run states.
type State int32

const (
	StateInit State = iota
	StateRunning
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// abortKind distinguishes the two cycle-abort policies: keep the
// in-memory learner as-is (transient worker, I/O) versus roll back to
// the last good checkpoint (three consecutive numerical failures).
type abortKind int

const (
	abortKeepState abortKind = iota
	abortRestore
)

// cycleAbortError signals that runOneCycle stopped partway through a
// cycle: no metrics are emitted for the attempt and Run decides
// whether to restore a checkpoint before moving on.
type cycleAbortError struct {
	kind abortKind
	err  error
}

func (e *cycleAbortError) Error() string { return e.err.Error() }
func (e *cycleAbortError) Unwrap() error  { return e.err }

// Pipeline owns the learner, experience manager, self-play
// orchestrator and checkpoint manager for one run, plus the run-level
// state machine and convergence bookkeeping.
type Pipeline struct {
	rc           *runctx.Context
	learner      *learner.Learner
	experience   *experience.Manager
	orchestrator *selfplay.Orchestrator
	checkpoints  *checkpoint.Manager
	progressOut  io.Writer

	state State
	cycle int

	pauseRequested atomic.Bool
	stopRequested  atomic.Bool

	outcomeHistory []float64
	lastEntropy    float64
}

// New validates cfg, allocates the learner's network and the
// experience buffers, and returns a Pipeline in state INIT.
// Configuration errors are returned as *rlerr.Error{Kind: KindConfig}
// before anything else is allocated, per the configuration-error
// policy row.
func New(rc *runctx.Context, workerBinary string, progressOut io.Writer) (*Pipeline, error) {
	if err := rc.Config.Validate(); err != nil {
		return nil, rlerr.New("pipeline.New", rlerr.KindConfig, err)
	}

	l, err := learner.New(rc.Config, rc.Derive(saltLearner))
	if err != nil {
		return nil, rlerr.New("pipeline.New", rlerr.KindConfig, fmt.Errorf("build learner: %w", err))
	}

	if progressOut == nil {
		progressOut = io.Discard
	}

	return &Pipeline{
		rc:           rc,
		learner:      l,
		experience:   experience.New(rc.Config, rc.Derive(saltExperience)),
		orchestrator: selfplay.NewOrchestrator(rc, nil, workerBinary),
		checkpoints:  checkpoint.New(rc),
		progressOut:  progressOut,
		state:        StateInit,
	}, nil
}

func (p *Pipeline) State() State        { return State(atomic.LoadInt32((*int32)(&p.state))) }
func (p *Pipeline) setState(s State)    { atomic.StoreInt32((*int32)(&p.state), int32(s)) }
func (p *Pipeline) Cycle() int          { return p.cycle }
func (p *Pipeline) Learner() *learner.Learner { return p.learner }

// RequestPause asks the run to pause at the next cycle boundary. Safe
// to call from a different goroutine than the one running Run.
func (p *Pipeline) RequestPause() { p.pauseRequested.Store(true) }

// RequestStop asks the run to stop at the next cycle boundary. Safe to
// call from a different goroutine than the one running Run.
func (p *Pipeline) RequestStop() { p.stopRequested.Store(true) }

// ResumeRunning clears a pending pause and transitions back to
// RUNNING, for a caller that paused the run and now wants to continue
// it via another Run call.
func (p *Pipeline) ResumeRunning() {
	p.pauseRequested.Store(false)
	p.setState(StateRunning)
}

// Resume restores the learner from a checkpoint directory (typically
// rc.Dir.Last() or rc.Dir.Best()) and sets the cycle counter so Run
// continues numbering cycles from where the checkpoint left off.
func (p *Pipeline) Resume(dir string) error {
	l, meta, err := checkpoint.Load(dir, p.rc.Config, p.rc.Derive(saltLearner))
	if err != nil {
		return fmt.Errorf("pipeline: resume from %s: %w", dir, err)
	}
	p.learner = l
	p.cycle = meta.Cycle
	return nil
}

// Run drives cycles until a stop condition is reached: maxCycles,
// convergence, an external stop request, or an external pause
// request (in which case Run returns nil in state PAUSED and a later
// ResumeRunning + Run call continues). A cycle-ending fatal invariant
// violation (InvalidBatchError escaping the learner) panics at this,
// the point of detection; it is recovered only at the cmd/chessrl
// boundary.
func (p *Pipeline) Run(ctx context.Context) error {
	p.setState(StateRunning)
	cfg := p.rc.Config

	for {
		if p.stopRequested.Load() {
			return p.finish(StateStopped, "stop requested")
		}
		if p.pauseRequested.Load() {
			return p.finish(StatePaused, "pause requested")
		}
		if cfg.MaxCycles > 0 && p.cycle >= cfg.MaxCycles {
			return p.finish(StateStopped, "max cycles reached")
		}
		if p.converged() {
			return p.finish(StateStopped, "converged")
		}

		select {
		case <-ctx.Done():
			return p.finish(StateStopped, "context cancelled")
		default:
		}

		p.cycle++
		start := time.Now()
		metrics, err := p.runOneCycle(ctx, p.cycle)
		if err != nil {
			var invalid *rlerr.InvalidBatchError
			if errors.As(err, &invalid) {
				panic(err)
			}

			var abort *cycleAbortError
			if errors.As(err, &abort) {
				p.rc.Log.Warn().Err(abort.err).Int("cycle", p.cycle).Msg("cycle aborted")
				if abort.kind == abortRestore {
					if restoreErr := p.restoreLastGoodCheckpoint(); restoreErr != nil {
						return fmt.Errorf("pipeline: cycle %d aborted with no checkpoint to restore: %w", p.cycle, restoreErr)
					}
				}
				continue
			}

			return fmt.Errorf("pipeline: cycle %d: %w", p.cycle, err)
		}
		metrics.WallSeconds = time.Since(start).Seconds()

		if err := p.appendMetrics(metrics); err != nil {
			p.rc.Log.Warn().Err(err).Int("cycle", p.cycle).Msg("metrics write failed")
		}
		p.outcomeHistory = append(p.outcomeHistory, metrics.OutcomeScore)
		p.lastEntropy = metrics.EntropyMean
	}
}

// finish transitions to terminal, writes a last/ checkpoint (the
// user-requested and forced-abort policy rows both require this), and
// returns nil -- a paused or cleanly stopped run is not itself an
// error.
func (p *Pipeline) finish(terminal State, reason string) error {
	p.setState(terminal)
	p.rc.Log.Info().Str("state", terminal.String()).Str("reason", reason).Int("cycle", p.cycle).Msg("pipeline stopping")

	score := 0.0
	if n := len(p.outcomeHistory); n > 0 {
		score = p.outcomeHistory[n-1]
	}
	if err := p.checkpoints.SaveLast(p.cycle, p.learner, score); err != nil {
		return fmt.Errorf("pipeline: write last checkpoint on %s: %w", reason, err)
	}
	return nil
}

// converged reports whether the rolling outcome-score window is
// stable within ConvergenceDelta over the last StallWindow cycles and
// entropy remains above EntropyFloor, per the state-machine contract.
func (p *Pipeline) converged() bool {
	cfg := p.rc.Config
	if cfg.StallWindow <= 0 || len(p.outcomeHistory) < cfg.StallWindow {
		return false
	}
	window := p.outcomeHistory[len(p.outcomeHistory)-cfg.StallWindow:]
	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(len(window))
	for _, v := range window {
		if math.Abs(v-mean) > cfg.ConvergenceDelta {
			return false
		}
	}
	return p.lastEntropy > cfg.EntropyFloor
}

// restoreLastGoodCheckpoint reloads the learner from the most recent
// checkpoint available (the prior cycle, falling back to best),
// implementing the numerical-failure policy row's "restore last
// checkpoint" step.
func (p *Pipeline) restoreLastGoodCheckpoint() error {
	var candidates []string
	if p.cycle > 1 {
		candidates = append(candidates, p.rc.Dir.Cycle(p.cycle-1))
	}
	candidates = append(candidates, p.rc.Dir.Best())

	var lastErr error
	for _, dir := range candidates {
		l, meta, err := checkpoint.Load(dir, p.rc.Config, p.rc.Derive(saltLearner))
		if err != nil {
			lastErr = err
			continue
		}
		p.learner = l
		p.cycle = meta.Cycle
		return nil
	}
	return fmt.Errorf("no checkpoint available: %w", lastErr)
}

// retryIO implements the I/O policy row: retry once, and only report
// failure if the retry also fails.
func retryIO(fn func() error) error {
	if err := fn(); err != nil {
		if err2 := fn(); err2 != nil {
			return err2
		}
	}
	return nil
}

// snapshotTo freezes the learner's current weights onto a batch-1
// network and saves it as an agent.Agent at path, the form workers and
// head-to-head evaluation read back via agent.Load.
func (p *Pipeline) snapshotTo(path string, seed int64) error {
	clone, err := p.learner.Network().CloneWithBatch(1)
	if err != nil {
		return fmt.Errorf("clone network: %w", err)
	}
	if err := clone.Set(p.learner.Network()); err != nil {
		return fmt.Errorf("copy weights: %w", err)
	}
	ag, err := agent.New(clone, 0, seed)
	if err != nil {
		return fmt.Errorf("wrap snapshot agent: %w", err)
	}
	return ag.Save(path)
}

// runOneCycle executes one full snapshot -> self-play -> ingest ->
// train -> evaluate -> checkpoint cycle and returns its metrics record.
// Any returned error is either a *cycleAbortError (the cycle was
// abandoned per the error-policy table, no metrics are emitted) or an
// *rlerr.InvalidBatchError (a fatal invariant violation the caller
// must panic on).
func (p *Pipeline) runOneCycle(ctx context.Context, cycleIdx int) (CycleMetrics, error) {
	cfg := p.rc.Config

	// 1. Snapshot.
	if err := retryIO(func() error {
		return p.snapshotTo(p.rc.Dir.Snapshot(), p.rc.Derive(int64(cycleIdx)^saltLearner))
	}); err != nil {
		return CycleMetrics{}, &cycleAbortError{kind: abortKeepState, err: fmt.Errorf("snapshot: %w", err)}
	}

	// 2. Self-play.
	selfPlayBar := progressbar.New(50, cfg.GamesPerCycle, "self-play", p.progressOut)
	result, err := p.orchestrator.RunCycle(ctx, p.rc.Dir.Snapshot(), cycleIdx)
	if err != nil {
		return CycleMetrics{}, &cycleAbortError{kind: abortKeepState, err: fmt.Errorf("self-play: %w", err)}
	}
	for range result.Outcomes {
		selfPlayBar.Increment()
	}
	selfPlayBar.Close()

	// 3. Ingest, per game so quality scoring sees one game's ordered
	// transitions at a time.
	ingested := 0
	for _, oc := range result.Outcomes {
		p.experience.Ingest(oc.Transitions)
		ingested += len(oc.Transitions)
	}

	// 4. Train.
	trainMetrics, trainErr := p.train(cfg, ingested)
	if trainErr != nil {
		return CycleMetrics{}, trainErr
	}

	// 5. Evaluate head-to-head vs best (vacuous promotion if there is
	// no best yet).
	challengerPath := p.rc.Dir.Snapshot()
	if err := retryIO(func() error {
		return p.snapshotTo(challengerPath, p.rc.Derive(int64(cycleIdx)^saltEval))
	}); err != nil {
		return CycleMetrics{}, &cycleAbortError{kind: abortKeepState, err: fmt.Errorf("evaluation snapshot: %w", err)}
	}

	_, promoted, outcomeScore, err := p.evaluate(cfg, challengerPath, cycleIdx)
	if err != nil {
		return CycleMetrics{}, &cycleAbortError{kind: abortKeepState, err: fmt.Errorf("evaluate: %w", err)}
	}

	// 6. Checkpoint + possible promotion, in that order: promoting
	// before running retention avoids deleting the new best between
	// rename and pointer update.
	if err := retryIO(func() error { return p.checkpoints.SaveCycle(cycleIdx, p.learner, outcomeScore) }); err != nil {
		return CycleMetrics{}, &cycleAbortError{kind: abortKeepState, err: fmt.Errorf("checkpoint: %w", err)}
	}
	if promoted {
		if err := retryIO(func() error { return p.checkpoints.PromoteToBest(cycleIdx, p.learner, outcomeScore) }); err != nil {
			return CycleMetrics{}, &cycleAbortError{kind: abortKeepState, err: fmt.Errorf("promote: %w", err)}
		}
	}

	pointer, _ := p.checkpoints.ReadPointer()
	pointer.LastCycle = cycleIdx
	if promoted {
		pointer.BestCycle = cycleIdx
		pointer.BestOutcomeScore = outcomeScore
	}
	if err := p.checkpoints.UpdatePointer(pointer); err != nil {
		return CycleMetrics{}, &cycleAbortError{kind: abortKeepState, err: fmt.Errorf("update pointer: %w", err)}
	}
	if err := p.checkpoints.Retain(cycleIdx); err != nil {
		p.rc.Log.Warn().Err(err).Int("cycle", cycleIdx).Msg("retention pass failed")
	}

	// 7. Metrics.
	games, wins, draws, losses, stepLimited, avgLength := gameTallies(cfg, result.Outcomes)
	return CycleMetrics{
		Cycle:        cycleIdx,
		LossMean:     trainMetrics.lossMean,
		TDMean:       trainMetrics.tdMean,
		GradNormMean: trainMetrics.gradNormMean,
		EntropyMean:  trainMetrics.entropyMean,
		Games:        games,
		Wins:         wins,
		Draws:        draws,
		Losses:       losses,
		StepLimit:    stepLimited,
		AvgLength:    avgLength,
		OutcomeScore: outcomeScore,
		Promoted:     promoted,
	}, nil
}

// trainAccum holds the running sums behind a cycle's training metrics.
type trainAccum struct {
	lossMean, tdMean, gradNormMean, entropyMean float64
}

// train samples and trains on up to min(MaxBatchesPerCycle,
// ingested/TrainRatio) batches, routing each batch's updated
// priorities back into the experience manager and aborting the cycle
// (with a checkpoint restore) on three consecutive non-finite updates.
func (p *Pipeline) train(cfg config.Config, ingested int) (trainAccum, error) {
	batches := cfg.MaxBatchesPerCycle
	if cfg.TrainRatio > 0 {
		if byRatio := int(float64(ingested) / cfg.TrainRatio); byRatio < batches {
			batches = byRatio
		}
	}
	if batches < 0 {
		batches = 0
	}

	bar := progressbar.New(50, batches, "train", p.progressOut)
	defer bar.Close()

	var accum trainAccum
	trained := 0
	for b := 0; b < batches; b++ {
		batch := p.experience.Sample(cfg.BatchSize)
		if batch.Empty() {
			break
		}

		result, err := p.learner.TrainBatch(batch)
		if err != nil {
			var invalid *rlerr.InvalidBatchError
			if errors.As(err, &invalid) {
				return accum, invalid
			}
			if errors.Is(err, rlerr.KindError(rlerr.KindNumerical)) {
				bar.Increment()
				bar.Display()
				if p.learner.ConsecutiveNumericalFailures() >= 3 {
					return accum, &cycleAbortError{kind: abortRestore, err: err}
				}
				continue
			}
			return accum, &cycleAbortError{kind: abortKeepState, err: err}
		}

		if !result.Skipped {
			p.experience.UpdatePriorities(batch.Indices, result.UpdatedPriorities)
			accum.lossMean += result.Loss
			accum.tdMean += result.TDAbsMean
			accum.gradNormMean += result.GradNorm
			accum.entropyMean += result.MeanEntropy
			trained++
		}

		bar.Increment()
		bar.Display()
	}

	if trained > 0 {
		accum.lossMean /= float64(trained)
		accum.tdMean /= float64(trained)
		accum.gradNormMean /= float64(trained)
		accum.entropyMean /= float64(trained)
	}
	return accum, nil
}

// evaluate runs head-to-head evaluation against best, or promotes
// vacuously (per S1) when no best exists yet.
func (p *Pipeline) evaluate(cfg config.Config, challengerPath string, cycleIdx int) (checkpoint.EvalResult, bool, float64, error) {
	incumbent := p.rc.Dir.Best()
	if !checkpointExists(incumbent) {
		return checkpoint.EvalResult{}, true, 1.0, nil
	}

	res, err := checkpoint.Evaluate(cfg, challengerPath, incumbent, cfg.EvaluationGames, p.rc.Derive(int64(cycleIdx)^saltEval))
	if err != nil {
		return checkpoint.EvalResult{}, false, 0, err
	}
	return res, res.Promotes(), res.Score(), nil
}

// checkpointExists reports whether dir holds a saved snapshot, used to
// detect the "no best yet" vacuous-promotion case on cycle 1 without
// going through the architecture-validating Load path.
func checkpointExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "meta.json"))
	return err == nil
}
