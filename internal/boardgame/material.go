package boardgame

import "gonum.org/v1/gonum/floats"

// pieceValues holds the standard relative piece values, indexed by
// PieceType (None and King score 0: king safety is not a material
// signal and checkmate is already scored separately by the caller).
var pieceValues = [7]float64{None: 0, Pawn: 1, Knight: 3, Bishop: 3.25, Rook: 5, Queen: 9, King: 0}

// Material returns b's material balance from color's perspective: the
// dot product of each side's piece counts with pieceValues, signed so
// that a position favoring color is positive. Used by simple baseline
// opponents that do not need a learned evaluation function.
func Material(b *Board, color Color) float64 {
	var white, black [7]float64
	for s := Square(0); s < 64; s++ {
		p := b.squares[s]
		if p.IsEmpty() {
			continue
		}
		if p.Color == White {
			white[p.Type]++
		} else {
			black[p.Type]++
		}
	}

	whiteScore := floats.Dot(white[:], pieceValues[:])
	blackScore := floats.Dot(black[:], pieceValues[:])
	if color == White {
		return whiteScore - blackScore
	}
	return blackScore - whiteScore
}
