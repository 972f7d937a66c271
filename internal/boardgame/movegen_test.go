package boardgame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoolsMateCheckmate(t *testing.T) {
	b := NewBoard()
	moves := []Move{
		{From: MustSquare("f2"), To: MustSquare("f3")},
		{From: MustSquare("e7"), To: MustSquare("e5")},
		{From: MustSquare("g2"), To: MustSquare("g4")},
		{From: MustSquare("d8"), To: MustSquare("h4")},
	}
	for _, m := range moves {
		b.ApplyMove(m)
	}

	legal := b.LegalMoves()
	result, reason := b.Terminal(legal)
	assert.Empty(t, legal)
	assert.Equal(t, BlackWins, result)
	assert.Equal(t, ReasonCheckmate, reason)
}

func TestStalemate(t *testing.T) {
	// White king a1 boxed in by the black king on b3 and queen on c2:
	// a2/b1/b2 are all covered but a1 itself is not attacked.
	b, err := ParseFEN("8/8/8/8/8/1k6/2q5/K7 w - - 0 1")
	require.NoError(t, err)

	legal := b.LegalMoves()
	result, reason := b.Terminal(legal)
	assert.Empty(t, legal)
	assert.False(t, b.InCheck(White))
	assert.Equal(t, Draw, result)
	assert.Equal(t, ReasonStalemate, reason)
}

func TestCastlingKingside(t *testing.T) {
	b, err := ParseFEN("r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1")
	require.NoError(t, err)

	legal := b.LegalMoves()
	found := false
	for _, m := range legal {
		if m.IsCastle && m.From == MustSquare("e1") && m.To == MustSquare("g1") {
			found = true
		}
	}
	require.True(t, found, "kingside castle must be legal")

	b.ApplyMove(Move{From: MustSquare("e1"), To: MustSquare("g1"), IsCastle: true})
	assert.Equal(t, Piece{King, White}, b.At(MustSquare("g1")))
	assert.Equal(t, Piece{Rook, White}, b.At(MustSquare("f1")))
	assert.True(t, b.At(MustSquare("e1")).IsEmpty())
	assert.True(t, b.At(MustSquare("h1")).IsEmpty())
	assert.False(t, b.Castling()[rightsWK])
	assert.False(t, b.Castling()[rightsWQ])
}

func TestCastlingBlockedThroughCheck(t *testing.T) {
	// Black rook on f8 attacks f1, so White may not castle kingside
	// through it even though f1/g1 are empty and rights are intact.
	b, err := ParseFEN("r3kr2/8/8/8/8/8/8/R3K2R w KQq - 0 1")
	require.NoError(t, err)

	for _, m := range b.LegalMoves() {
		assert.False(t, m.IsCastle && m.To == MustSquare("g1"),
			"castling through an attacked square must be illegal")
	}
}

func TestEnPassantCapture(t *testing.T) {
	b, err := ParseFEN("4k3/8/8/8/3pP3/8/8/4K3 b - e3 0 1")
	require.NoError(t, err)

	legal := b.LegalMoves()
	found := false
	for _, m := range legal {
		if m.IsEnPassant && m.From == MustSquare("d4") && m.To == MustSquare("e3") {
			found = true
		}
	}
	require.True(t, found, "en passant capture must be generated")

	b.ApplyMove(Move{From: MustSquare("d4"), To: MustSquare("e3"), IsEnPassant: true})
	assert.True(t, b.At(MustSquare("e4")).IsEmpty(), "captured pawn must be removed")
	assert.Equal(t, Piece{Pawn, Black}, b.At(MustSquare("e3")))
}

func TestPawnPromotionAlwaysQueen(t *testing.T) {
	b, err := ParseFEN("4k3/P7/8/8/8/8/8/4K3 w - - 0 1")
	require.NoError(t, err)

	legal := b.LegalMoves()
	require.Len(t, legal, 6) // king's 5 moves + the single pawn push

	var promo Move
	for _, m := range legal {
		if m.From == MustSquare("a7") {
			promo = m
		}
	}
	assert.Equal(t, Queen, promo.Promotion)

	b.ApplyMove(promo)
	assert.Equal(t, Piece{Queen, White}, b.At(MustSquare("a8")))
}

func TestInsufficientMaterialKingVsKing(t *testing.T) {
	b, err := ParseFEN("4k3/8/8/8/8/8/8/4K3 w - - 0 1")
	require.NoError(t, err)
	assert.True(t, b.InsufficientMaterial())
}

func TestInsufficientMaterialWithRookIsSufficient(t *testing.T) {
	b, err := ParseFEN("4k3/8/8/8/8/8/8/R3K3 w - - 0 1")
	require.NoError(t, err)
	assert.False(t, b.InsufficientMaterial())
}

func TestFiftyMoveRule(t *testing.T) {
	b, err := ParseFEN("4k3/8/8/8/8/8/8/4K3 w - - 100 50")
	require.NoError(t, err)
	assert.True(t, b.IsFiftyMoveRule())
}
