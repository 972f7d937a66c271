package rlenv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanburke/chessrl/internal/boardgame"
	"github.com/evanburke/chessrl/internal/config"
)

func mustSquare(t *testing.T, s string) boardgame.Square {
	t.Helper()
	sq, err := boardgame.ParseSquare(s)
	require.NoError(t, err)
	return sq
}

func TestResetMatchesLegalMaskAtStart(t *testing.T) {
	env := New(config.Default())
	state, mask := env.Reset()

	assert.Len(t, state, StateLen)
	assert.Len(t, mask, ActionSpace)

	legalCount := 0
	for _, v := range mask {
		if v == 1 {
			legalCount++
		}
	}
	assert.Equal(t, 20, legalCount)

	// legal_mask(state_after_reset) must equal the mask derived
	// straight from the engine at the same position.
	assert.Equal(t, LegalMask(env.Board().LegalMoves()), mask)
}

func TestStepAppliesLegalActionAndAdvancesPly(t *testing.T) {
	env := New(config.Default())
	env.Reset()

	legal := env.Board().LegalMoves()
	action := EncodeAction(legal[0])

	_, reward, done, info := env.Step(action)
	assert.False(t, done)
	assert.Equal(t, float32(0), reward)
	assert.False(t, info.StepLimit)
	assert.Equal(t, 1, env.Ply())
}

func TestStepPanicsOnIllegalAction(t *testing.T) {
	env := New(config.Default())
	env.Reset()

	// a1a4 is illegal in the starting position: the a2 pawn blocks the
	// rook's path.
	illegal := EncodeAction(boardgame.Move{
		From: mustSquare(t, "a1"),
		To:   mustSquare(t, "a4"),
	})

	assert.Panics(t, func() {
		env.Step(illegal)
	})
}

func TestStepLimitTruncation(t *testing.T) {
	cfg := config.Default()
	cfg.MaxStepsPerGame = 1
	env := New(cfg)
	env.Reset()

	legal := env.Board().LegalMoves()
	_, reward, done, info := env.Step(EncodeAction(legal[0]))

	assert.False(t, done)
	assert.True(t, info.StepLimit)
	assert.Equal(t, float32(cfg.StepLimitPenalty), reward)
}

func TestTerminalAtForcedMateHonorsSideToMove(t *testing.T) {
	cfg := config.Default()
	env := New(cfg)
	b, err := boardgame.ParseFEN("6k1/8/6K1/8/8/8/8/R7 w - - 0 1")
	require.NoError(t, err)
	env.board = b

	action := EncodeAction(boardgame.Move{From: mustSquare(t, "a1"), To: mustSquare(t, "a8")})
	_, reward, done, info := env.Step(action)

	assert.True(t, done)
	assert.Equal(t, boardgame.WhiteWins, info.Result)
	assert.Equal(t, float32(cfg.WinReward), reward, "mover delivering mate gets winReward, not stepLimitPenalty")
}
