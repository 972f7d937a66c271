// Package rlenv adapts the boardgame chess rules engine into the
// fixed-shape state/action/mask view the learner and self-play workers
// consume. It owns nothing about neural networks or training; it only
// knows how to turn a Board into numbers and back.
package rlenv

import "github.com/evanburke/chessrl/internal/boardgame"

// StateLen is the length of the encoded state vector: 12 piece planes
// of 64 squares (768) + side to move (1) + castling rights (4) +
// en passant file one-hot (8) + normalized halfmove clock (1) +
// normalized fullmove number (1).
const StateLen = 768 + 1 + 4 + 8 + 1 + 1

// ActionSpace is the fixed number of actions: from*64+to over the 64
// squares, with promotion folded into the fixed queen-promotion rule
// rather than encoded as a separate dimension.
const ActionSpace = 64 * 64

// fullmoveNorm bounds the normalization denominator for the fullmove
// counter; games running longer than this still encode a value, just
// one greater than 1.0, which the network has never needed to treat
// specially in practice.
const fullmoveNorm = 200.0

const halfmoveNorm = 100.0

// pieceplaneIndex returns the plane index [0,12) for a piece: 0-5 are
// White pawn..king, 6-11 are Black pawn..king.
func pieceplaneIndex(p boardgame.Piece) int {
	idx := int(p.Type) - 1 // Pawn=1..King=6 -> 0..5
	if p.Color == boardgame.Black {
		idx += 6
	}
	return idx
}

// Encode produces the fixed-length state vector for b from the
// perspective of the side to move (piece planes are absolute, not
// side-relative; side-to-move is a separate scalar feature).
func Encode(b *boardgame.Board) []float32 {
	out := make([]float32, StateLen)

	for s := boardgame.Square(0); s < 64; s++ {
		p := b.At(s)
		if p.IsEmpty() {
			continue
		}
		plane := pieceplaneIndex(p)
		out[plane*64+int(s)] = 1
	}

	offset := 768
	if b.SideToMove() == boardgame.White {
		out[offset] = 1
	} else {
		out[offset] = 0
	}
	offset++

	rights := b.Castling()
	for i := 0; i < 4; i++ {
		if rights[i] {
			out[offset+i] = 1
		}
	}
	offset += 4

	ep := b.EnPassant()
	if ep >= 0 {
		out[offset+ep.File()] = 1
	}
	offset += 8

	out[offset] = float32(b.HalfmoveClock()) / halfmoveNorm
	offset++
	out[offset] = float32(b.FullmoveNumber()) / fullmoveNorm

	return out
}

// EncodeAction maps a boardgame.Move onto its integer action id.
// Promotion is not part of the encoding: every pawn push to the back
// rank is assumed to promote to queen, matching the move generator.
func EncodeAction(m boardgame.Move) int {
	return int(m.From)*64 + int(m.To)
}

// DecodeAction finds the legal move matching action among legal, or
// ok=false if none matches (the caller must treat this as an illegal
// action, not silently pick a substitute).
func DecodeAction(action int, legal []boardgame.Move) (boardgame.Move, bool) {
	for _, m := range legal {
		if EncodeAction(m) == action {
			return m, true
		}
	}
	return boardgame.Move{}, false
}

// LegalMask returns a length-ActionSpace mask with mask[a]=1 for every
// a corresponding to a move in legal.
func LegalMask(legal []boardgame.Move) []byte {
	mask := make([]byte, ActionSpace)
	for _, m := range legal {
		mask[EncodeAction(m)] = 1
	}
	return mask
}
