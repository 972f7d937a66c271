package selfplay

import (
	"fmt"

	"github.com/evanburke/chessrl/internal/agent"
	"github.com/evanburke/chessrl/internal/boardgame"
	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/rlenv"
)

// GameConfig describes one game's worker-local inputs: which snapshot
// to load, the seeds for each side's epsilon-branch RNG, which color
// the learner plays, and each side's exploration rate.
type GameConfig struct {
	SnapshotPath    string
	LearnerSeed     int64
	OpponentSeed    int64
	LearnerColor    boardgame.Color
	LearnerEpsilon  float64
	OpponentEpsilon float64
}

// GameOutcome is what one played game yields: the learner's own
// transitions only (the opponent's moves are never used for
// learning), plus enough metadata for the pipeline's per-cycle
// metrics.
type GameOutcome struct {
	Transitions []rlenv.Transition
	Result      boardgame.Result
	Reason      boardgame.TerminationReason
	Plies       int
	StepLimited bool
}

// PlayGame drives one game to completion (or step-limit truncation)
// and returns the learner's transitions. Both sides are built from the
// same snapshot, distinguished only by epsilon and seed, per the
// self-play fairness contract: colors alternate across games at the
// caller's discretion via GameConfig.LearnerColor.
func PlayGame(cfg config.Config, gc GameConfig) (GameOutcome, error) {
	learner, err := agent.Load(gc.SnapshotPath, gc.LearnerSeed)
	if err != nil {
		return GameOutcome{}, fmt.Errorf("selfplay: load learner snapshot: %w", err)
	}
	learner.SetEpsilon(gc.LearnerEpsilon)

	opponent, err := learner.Snapshot(gc.OpponentEpsilon, gc.OpponentSeed)
	if err != nil {
		return GameOutcome{}, fmt.Errorf("selfplay: build opponent: %w", err)
	}

	env := rlenv.New(cfg)
	state, mask := env.Reset()

	var transitions []rlenv.Transition
	lastIdx := -1
	ply := 0

	for {
		mover := env.Board().SideToMove()

		var (
			a   int
			err error
		)
		if mover == gc.LearnerColor {
			a, err = learner.SelectAction(state, mask)
		} else {
			a, err = opponent.SelectAction(state, mask)
		}
		if err != nil {
			return GameOutcome{}, fmt.Errorf("selfplay: select action: %w", err)
		}

		nextState, reward, envDone, info := env.Step(a)
		nextMask := env.LegalMask()
		terminal := envDone || info.StepLimit
		ply++

		if mover == gc.LearnerColor {
			transitions = append(transitions, rlenv.Transition{
				State:     state,
				Action:    a,
				Reward:    reward,
				NextState: nextState,
				NextMask:  nextMask,
				Done:      terminal,
				EpisodeID: env.EpisodeID(),
				Ply:       ply,
			})
			lastIdx = len(transitions) - 1
		} else if terminal && lastIdx >= 0 && !transitions[lastIdx].Done {
			// The opponent's move ended the game; Step() only rewards
			// the side that just moved, so the learner's last stored
			// transition is patched with the outcome from its own
			// perspective before it is ever sampled.
			transitions[lastIdx].Reward = learnerPerspectiveReward(cfg, gc.LearnerColor, info)
			transitions[lastIdx].Done = true
			transitions[lastIdx].NextState = nextState
			transitions[lastIdx].NextMask = nextMask
		}

		if terminal {
			return GameOutcome{
				Transitions: transitions,
				Result:      info.Result,
				Reason:      info.Reason,
				Plies:       ply,
				StepLimited: info.StepLimit,
			}, nil
		}
		state, mask = nextState, nextMask
	}
}

// learnerPerspectiveReward re-derives the terminal or step-limit
// reward from the learner's color, independent of which side actually
// made the game-ending move.
func learnerPerspectiveReward(cfg config.Config, learnerColor boardgame.Color, info rlenv.StepInfo) float32 {
	if info.StepLimit {
		return float32(cfg.StepLimitPenalty)
	}
	switch info.Result {
	case boardgame.WhiteWins:
		if learnerColor == boardgame.White {
			return float32(cfg.WinReward)
		}
		return float32(cfg.LossReward)
	case boardgame.BlackWins:
		if learnerColor == boardgame.Black {
			return float32(cfg.WinReward)
		}
		return float32(cfg.LossReward)
	default:
		return float32(cfg.DrawReward)
	}
}
