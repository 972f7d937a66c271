package main

import (
	"fmt"

	"github.com/evanburke/chessrl/internal/agent"
	"github.com/evanburke/chessrl/internal/boardgame"
	"github.com/evanburke/chessrl/internal/checkpoint"
	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/rlenv"
	"github.com/evanburke/chessrl/internal/rlerr"
)

// EvaluateCmd measures a saved model's strength, either head-to-head
// against a second saved model (--compare, reusing the same promotion
// evaluator the training pipeline uses internally) or against a
// fixed, non-learned baseline opponent (--baseline).
type EvaluateCmd struct {
	Compare bool `help:"Evaluate two saved models head-to-head." xor:"mode"`
	Baseline bool `help:"Evaluate one saved model against a fixed baseline opponent." xor:"mode"`

	Model   string `help:"Model snapshot to evaluate (--baseline mode)."`
	ModelA  string `help:"First model snapshot (--compare mode)."`
	ModelB  string `help:"Second model snapshot (--compare mode)."`

	Opponent string `help:"Baseline opponent kind." enum:"heuristic,minimax" default:"heuristic"`
	Depth    int    `help:"Search depth for the minimax baseline opponent." default:"2"`

	Games int    `help:"Number of games to play." default:"20"`
	Seed  int64  `help:"Seed for game-by-game determinism." default:"1"`

	Profile     string `help:"Named profile supplying environment parameters." default:"eval-only"`
	ProfileFile string `help:"HCL profile bundle file." default:"profiles/eval-only.hcl"`
}

func (c *EvaluateCmd) Run() error {
	if !c.Compare && !c.Baseline {
		return rlerr.New("evaluate", rlerr.KindConfig, fmt.Errorf("one of --compare or --baseline is required"))
	}

	cfg, err := config.LoadProfile(c.ProfileFile, c.Profile)
	if err != nil {
		return rlerr.New("evaluate", rlerr.KindConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return rlerr.New("evaluate", rlerr.KindConfig, err)
	}

	if c.Compare {
		return c.runCompare(cfg)
	}
	return c.runBaseline(cfg)
}

func (c *EvaluateCmd) runCompare(cfg config.Config) error {
	if c.ModelA == "" || c.ModelB == "" {
		return rlerr.New("evaluate", rlerr.KindConfig, fmt.Errorf("--compare requires --model-a and --model-b"))
	}

	res, err := checkpoint.Evaluate(cfg, c.ModelA, c.ModelB, c.Games, c.Seed)
	if err != nil {
		return rlerr.New("evaluate", rlerr.KindIO, err)
	}

	fmt.Printf("model A (%s) vs model B (%s): %d games\n", c.ModelA, c.ModelB, res.Games)
	fmt.Printf("  A wins=%d draws=%d losses=%d score=%.3f promotes=%v\n",
		res.Wins, res.Draws, res.Losses, res.Score(), res.Promotes())
	return nil
}

func (c *EvaluateCmd) runBaseline(cfg config.Config) error {
	if c.Model == "" {
		return rlerr.New("evaluate", rlerr.KindConfig, fmt.Errorf("--baseline requires --model"))
	}

	opponent, err := newBaselineOpponent(c.Opponent, c.Depth, c.Seed)
	if err != nil {
		return rlerr.New("evaluate", rlerr.KindConfig, err)
	}

	res, err := playVsBaseline(cfg, c.Model, opponent, c.Games, c.Seed)
	if err != nil {
		return rlerr.New("evaluate", rlerr.KindIO, err)
	}

	fmt.Printf("%s vs %s: %d games\n", c.Model, opponent, res.Games)
	fmt.Printf("  wins=%d draws=%d losses=%d score=%.3f\n", res.Wins, res.Draws, res.Losses, res.Score())
	return nil
}

// playVsBaseline plays the agent at modelPath against opponent,
// alternating colors, and tallies the result from the agent's
// perspective. It mirrors checkpoint.Evaluate's game-loop shape, with
// the incumbent side driven by a baselineOpponent instead of a second
// Agent.
func playVsBaseline(cfg config.Config, modelPath string, opponent baselineOpponent, games int, seed int64) (checkpoint.EvalResult, error) {
	var res checkpoint.EvalResult

	for i := 0; i < games; i++ {
		agentColor := boardgame.White
		if i%2 == 1 {
			agentColor = boardgame.Black
		}

		ag, err := agent.Load(modelPath, seed^(int64(i)<<1))
		if err != nil {
			return res, fmt.Errorf("evaluate: load model: %w", err)
		}
		ag.SetEpsilon(0)

		env := rlenv.New(cfg)
		state, mask := env.Reset()

		for {
			mover := env.Board().SideToMove()

			var a int
			if mover == agentColor {
				a, err = ag.SelectAction(state, mask)
				if err != nil {
					return res, fmt.Errorf("evaluate: select action: %w", err)
				}
			} else {
				legal := env.Board().LegalMoves()
				a = rlenv.EncodeAction(opponent.SelectMove(env.Board(), legal))
			}

			nextState, _, envDone, info := env.Step(a)
			nextMask := env.LegalMask()

			if envDone || info.StepLimit {
				recordBaselineOutcome(&res, agentColor, info)
				break
			}
			state, mask = nextState, nextMask
		}
		res.Games++
	}

	return res, nil
}

func recordBaselineOutcome(res *checkpoint.EvalResult, agentColor boardgame.Color, info rlenv.StepInfo) {
	if info.StepLimit {
		res.Draws++
		return
	}
	switch info.Result {
	case boardgame.WhiteWins:
		if agentColor == boardgame.White {
			res.Wins++
		} else {
			res.Losses++
		}
	case boardgame.BlackWins:
		if agentColor == boardgame.Black {
			res.Wins++
		} else {
			res.Losses++
		}
	default:
		res.Draws++
	}
}
