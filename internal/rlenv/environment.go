package rlenv

import (
	"github.com/google/uuid"

	"github.com/evanburke/chessrl/internal/boardgame"
	"github.com/evanburke/chessrl/internal/config"
	"github.com/evanburke/chessrl/internal/rlerr"
)

// Transition is one (s,a,r,s',next_mask,done) tuple plus the bookkeeping
// fields the experience manager and debugging tools use. quality is
// filled in later, by internal/experience; it is never set by the
// environment itself.
type Transition struct {
	State      []float32
	Action     int
	Reward     float32
	NextState  []float32
	NextMask   []byte
	Done       bool
	Quality    float32
	EpisodeID  string
	Ply        int
}

// StepInfo carries out-of-band detail about a step that callers may
// want to log but that is not itself part of the learning signal.
type StepInfo struct {
	StepLimit bool
	Reason    boardgame.TerminationReason
	Result    boardgame.Result
}

// Environment wraps a boardgame.Board with the fixed-shape
// encode/step/mask view of C1. One Environment drives exactly one
// game; callers construct a fresh one per episode.
type Environment struct {
	board      *boardgame.Board
	cfg        config.Config
	episodeID  string
	ply        int
	maxPlies   int
}

// New starts a fresh game from the standard starting position.
func New(cfg config.Config) *Environment {
	return &Environment{
		board:     boardgame.NewBoard(),
		cfg:       cfg,
		episodeID: uuid.NewString(),
		maxPlies:  cfg.MaxStepsPerGame,
	}
}

func (e *Environment) EpisodeID() string { return e.episodeID }
func (e *Environment) Board() *boardgame.Board { return e.board }

// Reset reinitializes the environment to the starting position and
// returns the initial state and legal-action mask.
func (e *Environment) Reset() ([]float32, []byte) {
	e.board = boardgame.NewBoard()
	e.ply = 0
	return Encode(e.board), LegalMask(e.board.LegalMoves())
}

// LegalMask reports the legal-action mask for the current position,
// computed from the board only (never from the encoded state vector).
func (e *Environment) LegalMask() []byte {
	return LegalMask(e.board.LegalMoves())
}

// Step applies action to the current position. It panics with
// *rlerr.IllegalActionError if action is not legal, matching the "fail
// fast, never silently correct" policy for invariant violations.
func (e *Environment) Step(action int) (nextState []float32, reward float32, done bool, info StepInfo) {
	legal := e.board.LegalMoves()
	mover := e.board.SideToMove()

	m, ok := DecodeAction(action, legal)
	if !ok {
		panic(&rlerr.IllegalActionError{Action: action, FEN: e.board.FEN()})
	}

	e.board.ApplyMove(m)
	e.ply++

	afterLegal := e.board.LegalMoves()
	result, reason := e.board.Terminal(afterLegal)

	nextState = Encode(e.board)

	if result != boardgame.Ongoing {
		reward = e.terminalReward(mover, result)
		return nextState, reward, true, StepInfo{Reason: reason, Result: result}
	}

	if e.ply >= e.maxPlies {
		reward = e.stepLimitReward(mover)
		return nextState, reward, false, StepInfo{StepLimit: true, Reason: boardgame.ReasonStepLimit}
	}

	return nextState, 0, false, StepInfo{}
}

// terminalReward attributes the natural-outcome reward to mover: the
// side that just moved into checkmate/stalemate/draw.
func (e *Environment) terminalReward(mover boardgame.Color, result boardgame.Result) float32 {
	switch result {
	case boardgame.WhiteWins:
		if mover == boardgame.White {
			return float32(e.cfg.WinReward)
		}
		return float32(e.cfg.LossReward)
	case boardgame.BlackWins:
		if mover == boardgame.Black {
			return float32(e.cfg.WinReward)
		}
		return float32(e.cfg.LossReward)
	default: // Draw
		return float32(e.cfg.DrawReward)
	}
}

// stepLimitReward applies the step-limit penalty to mover, the side
// whose action reached the ply cutoff. This is Step's single-agent
// view of the penalty; a self-play driver tracking both colors'
// transitions is responsible for any additional attribution to the
// opposing side.
func (e *Environment) stepLimitReward(mover boardgame.Color) float32 {
	_ = mover
	return float32(e.cfg.StepLimitPenalty)
}

func (e *Environment) Ply() int { return e.ply }
