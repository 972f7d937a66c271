package checkpoint

import (
	"fmt"

	"github.com/evanburke/chessrl/internal/agent"
	"github.com/evanburke/chessrl/internal/boardgame"
	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/rlenv"
)

// EvalResult tallies a head-to-head match between a challenger
// snapshot and the current incumbent (best) snapshot.
type EvalResult struct {
	Wins, Draws, Losses int
	Games               int
}

// Score is the challenger's fractional score, counting a draw as half
// a win, per the promotion contract.
func (r EvalResult) Score() float64 {
	if r.Games == 0 {
		return 0
	}
	return (float64(r.Wins) + 0.5*float64(r.Draws)) / float64(r.Games)
}

// Promotes reports whether the challenger's score clears the
// promotion bar. Ties promote: a score of exactly 0.5 still replaces
// the incumbent, since a challenger that is merely as good as the
// current best is still worth keeping as the newer, more-trained copy.
func (r EvalResult) Promotes() bool {
	return r.Games > 0 && r.Score() >= 0.5
}

// Evaluate plays games deterministic head-to-head games between the
// challenger and incumbent snapshots, alternating colors, with both
// sides at zero exploration (epsilon 0) so the match measures policy
// strength rather than exploration noise.
func Evaluate(cfg config.Config, challengerPath, incumbentPath string, games int, seed int64) (EvalResult, error) {
	var res EvalResult

	for i := 0; i < games; i++ {
		challengerColor := boardgame.White
		if i%2 == 1 {
			challengerColor = boardgame.Black
		}

		challenger, err := agent.Load(challengerPath, seed^(int64(i)<<1))
		if err != nil {
			return res, fmt.Errorf("checkpoint: load challenger: %w", err)
		}
		challenger.SetEpsilon(0)

		incumbent, err := agent.Load(incumbentPath, seed^(int64(i)<<1)^1)
		if err != nil {
			return res, fmt.Errorf("checkpoint: load incumbent: %w", err)
		}
		incumbent.SetEpsilon(0)

		env := rlenv.New(cfg)
		state, mask := env.Reset()

		for {
			mover := env.Board().SideToMove()

			var (
				a   int
				err error
			)
			if mover == challengerColor {
				a, err = challenger.SelectAction(state, mask)
			} else {
				a, err = incumbent.SelectAction(state, mask)
			}
			if err != nil {
				return res, fmt.Errorf("checkpoint: select action: %w", err)
			}

			nextState, _, envDone, info := env.Step(a)
			nextMask := env.LegalMask()

			if envDone || info.StepLimit {
				recordOutcome(&res, challengerColor, info)
				break
			}
			state, mask = nextState, nextMask
		}
		res.Games++
	}

	return res, nil
}

func recordOutcome(res *EvalResult, challengerColor boardgame.Color, info rlenv.StepInfo) {
	if info.StepLimit {
		res.Draws++
		return
	}
	switch info.Result {
	case boardgame.WhiteWins:
		if challengerColor == boardgame.White {
			res.Wins++
		} else {
			res.Losses++
		}
	case boardgame.BlackWins:
		if challengerColor == boardgame.Black {
			res.Wins++
		} else {
			res.Losses++
		}
	default:
		res.Draws++
	}
}
