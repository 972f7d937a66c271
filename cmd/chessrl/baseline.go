package main

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/evanburke/chessrl/internal/boardgame"
)

// baselineOpponent selects a move for the side to move on b, without
// any learned network, for use as a fixed yardstick in `chessrl
// evaluate --baseline`.
type baselineOpponent interface {
	SelectMove(b *boardgame.Board, legal []boardgame.Move) boardgame.Move
	String() string
}

// newBaselineOpponent builds the opponent named by kind ("heuristic" or
// "minimax"), seeded from seed for any tie-break randomness.
func newBaselineOpponent(kind string, depth int, seed int64) (baselineOpponent, error) {
	rng := rand.New(rand.NewSource(seed))
	switch kind {
	case "heuristic":
		return &heuristicOpponent{rng: rng}, nil
	case "minimax":
		if depth <= 0 {
			depth = 2
		}
		return &minimaxOpponent{depth: depth, rng: rng}, nil
	default:
		return nil, fmt.Errorf("unknown baseline opponent %q", kind)
	}
}

// heuristicOpponent greedily maximizes its own material one ply ahead,
// breaking ties uniformly at random.
type heuristicOpponent struct {
	rng *rand.Rand
}

func (o *heuristicOpponent) String() string { return "heuristic" }

func (o *heuristicOpponent) SelectMove(b *boardgame.Board, legal []boardgame.Move) boardgame.Move {
	mover := b.SideToMove()
	best := legal[0]
	bestScore := math.Inf(-1)
	var ties []boardgame.Move

	for _, m := range legal {
		next := b.Clone()
		next.ApplyMove(m)
		score := boardgame.Material(next, mover)
		switch {
		case score > bestScore:
			bestScore = score
			best = m
			ties = ties[:0]
			ties = append(ties, m)
		case score == bestScore:
			ties = append(ties, m)
		}
	}
	if len(ties) > 1 {
		return ties[o.rng.Intn(len(ties))]
	}
	return best
}

// minimaxOpponent runs depth-limited negamax search with
// boardgame.Material as the leaf evaluation, breaking ties uniformly
// at random among equally-scored root moves.
type minimaxOpponent struct {
	depth int
	rng   *rand.Rand
}

func (o *minimaxOpponent) String() string { return fmt.Sprintf("minimax(depth=%d)", o.depth) }

func (o *minimaxOpponent) SelectMove(b *boardgame.Board, legal []boardgame.Move) boardgame.Move {
	mover := b.SideToMove()
	best := legal[0]
	bestScore := math.Inf(-1)
	var ties []boardgame.Move

	for _, m := range legal {
		next := b.Clone()
		next.ApplyMove(m)
		score := -negamax(next, o.depth-1, mover.Other())
		switch {
		case score > bestScore:
			bestScore = score
			best = m
			ties = ties[:0]
			ties = append(ties, m)
		case score == bestScore:
			ties = append(ties, m)
		}
	}
	if len(ties) > 1 {
		return ties[o.rng.Intn(len(ties))]
	}
	return best
}

// negamax returns the position's score from toMove's perspective,
// searching depth further plies. It has no alpha-beta pruning and no
// transposition table: the baseline is meant to be a simple, cheap
// yardstick, not a strong engine.
func negamax(b *boardgame.Board, depth int, toMove boardgame.Color) float64 {
	legal := b.LegalMoves()
	if result, _ := b.Terminal(legal); result != boardgame.Ongoing {
		return terminalScore(result, toMove)
	}
	if depth <= 0 {
		return boardgame.Material(b, toMove)
	}

	best := math.Inf(-1)
	for _, m := range legal {
		next := b.Clone()
		next.ApplyMove(m)
		score := -negamax(next, depth-1, toMove.Other())
		if score > best {
			best = score
		}
	}
	return best
}

// terminalScore scores a terminal position from toMove's perspective:
// a large magnitude for a decisive result, zero for a draw.
func terminalScore(result boardgame.Result, toMove boardgame.Color) float64 {
	const mateScore = 1000.0
	switch result {
	case boardgame.WhiteWins:
		if toMove == boardgame.White {
			return mateScore
		}
		return -mateScore
	case boardgame.BlackWins:
		if toMove == boardgame.Black {
			return mateScore
		}
		return -mateScore
	default:
		return 0
	}
}
