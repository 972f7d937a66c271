package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/selfplay"
)

// CycleMetrics is one line of <dir>/metrics.ndjson, field names fixed
// by the external interface contract.
type CycleMetrics struct {
	Cycle        int     `json:"cycle"`
	LossMean     float64 `json:"loss_mean"`
	TDMean       float64 `json:"td_mean"`
	GradNormMean float64 `json:"grad_norm_mean"`
	EntropyMean  float64 `json:"entropy_mean"`
	Games        int     `json:"games"`
	Wins         int     `json:"wins"`
	Draws        int     `json:"draws"`
	Losses       int     `json:"losses"`
	StepLimit    int     `json:"step_limit"`
	AvgLength    float64 `json:"avg_length"`
	OutcomeScore float64 `json:"outcome_score"`
	Promoted     bool    `json:"promoted"`
	WallSeconds  float64 `json:"wall_seconds"`
}

// appendMetrics appends one ndjson line to the run's metrics file,
// creating it on the first cycle.
func (p *Pipeline) appendMetrics(m CycleMetrics) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("pipeline: marshal metrics: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(p.rc.Dir.Metrics(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("pipeline: open metrics.ndjson: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("pipeline: write metrics.ndjson: %w", err)
	}
	return f.Sync()
}

// gameTallies classifies every game outcome in a cycle into win/draw/
// loss counts, step-limit truncation count, and average game length.
func gameTallies(cfg config.Config, outcomes []selfplay.GameOutcome) (games, wins, draws, losses, stepLimited int, avgLength float64) {
	games = len(outcomes)
	totalPlies := 0
	for _, oc := range outcomes {
		if oc.StepLimited {
			stepLimited++
		}
		switch classify(cfg, oc) {
		case outcomeWin:
			wins++
		case outcomeLoss:
			losses++
		default:
			draws++
		}
		totalPlies += oc.Plies
	}
	if games > 0 {
		avgLength = float64(totalPlies) / float64(games)
	}
	return
}

type outcomeKind int

const (
	outcomeDraw outcomeKind = iota
	outcomeWin
	outcomeLoss
)

// classify derives a game's outcome from the learner's own last
// transition, nearest-matching its reward against the configured
// win/loss/draw/step-limit values -- the same pattern
// internal/experience's gameDecisiveness uses, needed here because
// selfplay.GameOutcome does not record which color the learner played.
func classify(cfg config.Config, oc selfplay.GameOutcome) outcomeKind {
	if len(oc.Transitions) == 0 {
		return outcomeDraw
	}
	r := float64(oc.Transitions[len(oc.Transitions)-1].Reward)

	dist := func(x float64) float64 { return math.Abs(r - x) }
	best := outcomeWin
	bestDist := dist(cfg.WinReward)
	if d := dist(cfg.LossReward); d < bestDist {
		best, bestDist = outcomeLoss, d
	}
	if d := dist(cfg.DrawReward); d < bestDist {
		best, bestDist = outcomeDraw, d
	}
	if d := dist(cfg.StepLimitPenalty); d < bestDist {
		best, bestDist = outcomeDraw, d
	}
	return best
}
