package boardgame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBoardStartingPosition(t *testing.T) {
	b := NewBoard()
	assert.Equal(t, White, b.SideToMove())
	assert.Equal(t, CastlingRights{true, true, true, true}, b.Castling())
	assert.Equal(t, Square(-1), b.EnPassant())
	assert.Equal(t, 1, b.FullmoveNumber())
	assert.Len(t, b.LegalMoves(), 20)
}

func TestFENRoundTrip(t *testing.T) {
	b := NewBoard()
	fen := b.FEN()
	assert.Equal(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", fen)

	b2, err := ParseFEN(fen)
	require.NoError(t, err)
	assert.Equal(t, fen, b2.FEN())
	assert.Equal(t, b.Key(), b2.Key())
}

func TestCloneIsIndependent(t *testing.T) {
	b := NewBoard()
	clone := b.Clone()
	move := Move{From: MustSquare("e2"), To: MustSquare("e4")}
	clone.ApplyMove(move)

	assert.Equal(t, White, b.SideToMove(), "original board must not be mutated by cloning")
	assert.Equal(t, Black, clone.SideToMove())
	assert.True(t, b.At(MustSquare("e2")).Type == Pawn)
	assert.True(t, clone.At(MustSquare("e2")).IsEmpty())
}

func TestThreefoldRepetition(t *testing.T) {
	b := NewBoard()
	knightShuffle := []Move{
		{From: MustSquare("g1"), To: MustSquare("f3")},
		{From: MustSquare("g8"), To: MustSquare("f6")},
		{From: MustSquare("f3"), To: MustSquare("g1")},
		{From: MustSquare("f6"), To: MustSquare("g8")},
	}
	for i := 0; i < 2; i++ {
		for _, m := range knightShuffle {
			b.ApplyMove(m)
		}
	}
	assert.True(t, b.IsThreefoldRepetition())
}

// MustSquare panics on malformed test fixtures; it exists only to keep
// table-driven test data terse.
func MustSquare(s string) Square {
	sq, err := ParseSquare(s)
	if err != nil {
		panic(err)
	}
	return sq
}
