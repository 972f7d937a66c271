package boardgame

var knightOffsets = [8][2]int{
	{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2},
}

var kingOffsets = [8][2]int{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

var bishopDirs = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
var rookDirs = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// IsAttacked reports whether sq is attacked by any piece of color by.
func (b *Board) IsAttacked(sq Square, by Color) bool {
	file, rank := sq.File(), sq.Rank()

	// Pawns: a pawn of color `by` attacks diagonally forward from its
	// own perspective, so we look backward from sq.
	dir := -1
	if by == White {
		dir = 1
	}
	for _, df := range [2]int{-1, 1} {
		f, r := file+df, rank-dir
		if f < 0 || f > 7 || r < 0 || r > 7 {
			continue
		}
		p := b.squares[MakeSquare(f, r)]
		if p.Type == Pawn && p.Color == by {
			return true
		}
	}

	for _, o := range knightOffsets {
		f, r := file+o[0], rank+o[1]
		if f < 0 || f > 7 || r < 0 || r > 7 {
			continue
		}
		p := b.squares[MakeSquare(f, r)]
		if p.Type == Knight && p.Color == by {
			return true
		}
	}

	for _, o := range kingOffsets {
		f, r := file+o[0], rank+o[1]
		if f < 0 || f > 7 || r < 0 || r > 7 {
			continue
		}
		p := b.squares[MakeSquare(f, r)]
		if p.Type == King && p.Color == by {
			return true
		}
	}

	if b.slidingAttack(file, rank, by, bishopDirs, Bishop, Queen) {
		return true
	}
	if b.slidingAttack(file, rank, by, rookDirs, Rook, Queen) {
		return true
	}
	return false
}

func (b *Board) slidingAttack(file, rank int, by Color, dirs [4][2]int, t1, t2 PieceType) bool {
	for _, d := range dirs {
		f, r := file+d[0], rank+d[1]
		for f >= 0 && f <= 7 && r >= 0 && r <= 7 {
			p := b.squares[MakeSquare(f, r)]
			if !p.IsEmpty() {
				if p.Color == by && (p.Type == t1 || p.Type == t2) {
					return true
				}
				break
			}
			f += d[0]
			r += d[1]
		}
	}
	return false
}

// InCheck reports whether side c's king is currently attacked.
func (b *Board) InCheck(c Color) bool {
	k := b.KingSquare(c)
	if k < 0 {
		return false
	}
	return b.IsAttacked(k, c.Other())
}

// pseudoLegalMoves generates every move for the side to move without
// verifying that the mover's own king ends up safe.
func (b *Board) pseudoLegalMoves() []Move {
	moves := make([]Move, 0, 48)
	side := b.sideToMove

	for s := Square(0); s < 64; s++ {
		p := b.squares[s]
		if p.IsEmpty() || p.Color != side {
			continue
		}
		switch p.Type {
		case Pawn:
			b.genPawnMoves(s, &moves)
		case Knight:
			b.genLeaper(s, knightOffsets[:], &moves)
		case King:
			b.genLeaper(s, kingOffsets[:], &moves)
			b.genCastling(s, &moves)
		case Bishop:
			b.genSlider(s, bishopDirs[:], &moves)
		case Rook:
			b.genSlider(s, rookDirs[:], &moves)
		case Queen:
			b.genSlider(s, bishopDirs[:], &moves)
			b.genSlider(s, rookDirs[:], &moves)
		}
	}
	return moves
}

func (b *Board) genLeaper(from Square, offsets []([2]int), moves *[]Move) {
	file, rank := from.File(), from.Rank()
	side := b.squares[from].Color
	for _, o := range offsets {
		f, r := file+o[0], rank+o[1]
		if f < 0 || f > 7 || r < 0 || r > 7 {
			continue
		}
		to := MakeSquare(f, r)
		target := b.squares[to]
		if target.IsEmpty() || target.Color != side {
			*moves = append(*moves, Move{From: from, To: to})
		}
	}
}

func (b *Board) genSlider(from Square, dirs []([2]int), moves *[]Move) {
	file, rank := from.File(), from.Rank()
	side := b.squares[from].Color
	for _, d := range dirs {
		f, r := file+d[0], rank+d[1]
		for f >= 0 && f <= 7 && r >= 0 && r <= 7 {
			to := MakeSquare(f, r)
			target := b.squares[to]
			if target.IsEmpty() {
				*moves = append(*moves, Move{From: from, To: to})
			} else {
				if target.Color != side {
					*moves = append(*moves, Move{From: from, To: to})
				}
				break
			}
			f += d[0]
			r += d[1]
		}
	}
}

func (b *Board) genPawnMoves(from Square, moves *[]Move) {
	side := b.squares[from].Color
	file, rank := from.File(), from.Rank()
	dir := 1
	startRank := 1
	promoteRank := 7
	if side == Black {
		dir = -1
		startRank = 6
		promoteRank = 0
	}

	// Single push.
	oneRank := rank + dir
	if oneRank >= 0 && oneRank <= 7 {
		to := MakeSquare(file, oneRank)
		if b.squares[to].IsEmpty() {
			b.appendPawnMove(from, to, oneRank == promoteRank, moves)

			// Double push from the starting rank.
			if rank == startRank {
				twoRank := rank + 2*dir
				to2 := MakeSquare(file, twoRank)
				if b.squares[to2].IsEmpty() {
					*moves = append(*moves, Move{From: from, To: to2})
				}
			}
		}
	}

	// Captures (including en passant).
	for _, df := range [2]int{-1, 1} {
		f := file + df
		r := rank + dir
		if f < 0 || f > 7 || r < 0 || r > 7 {
			continue
		}
		to := MakeSquare(f, r)
		target := b.squares[to]
		if !target.IsEmpty() && target.Color != side {
			b.appendPawnMove(from, to, r == promoteRank, moves)
		} else if to == b.epSquare && b.epSquare >= 0 {
			*moves = append(*moves, Move{From: from, To: to, IsEnPassant: true})
		}
	}
}

// appendPawnMove adds a single pawn move, fixed to Queen promotion
// when it reaches the back rank.
func (b *Board) appendPawnMove(from, to Square, promotes bool, moves *[]Move) {
	if promotes {
		*moves = append(*moves, Move{From: from, To: to, Promotion: Queen})
	} else {
		*moves = append(*moves, Move{From: from, To: to})
	}
}

func (b *Board) genCastling(kingSq Square, moves *[]Move) {
	side := b.squares[kingSq].Color
	if b.InCheck(side) {
		return
	}

	rank := 0
	kingsideRight, queensideRight := rightsWK, rightsWQ
	opp := side.Other()
	if side == Black {
		rank = 7
		kingsideRight, queensideRight = rightsBK, rightsBQ
	}

	if b.castling[kingsideRight] {
		f1, f2 := MakeSquare(5, rank), MakeSquare(6, rank)
		rookSq := MakeSquare(7, rank)
		if b.squares[f1].IsEmpty() && b.squares[f2].IsEmpty() &&
			b.squares[rookSq].Type == Rook && b.squares[rookSq].Color == side &&
			!b.IsAttacked(f1, opp) && !b.IsAttacked(f2, opp) {
			*moves = append(*moves, Move{From: kingSq, To: f2, IsCastle: true})
		}
	}
	if b.castling[queensideRight] {
		d1, d2, d3 := MakeSquare(3, rank), MakeSquare(2, rank), MakeSquare(1, rank)
		rookSq := MakeSquare(0, rank)
		if b.squares[d1].IsEmpty() && b.squares[d2].IsEmpty() && b.squares[d3].IsEmpty() &&
			b.squares[rookSq].Type == Rook && b.squares[rookSq].Color == side &&
			!b.IsAttacked(d1, opp) && !b.IsAttacked(d2, opp) {
			*moves = append(*moves, Move{From: kingSq, To: d2, IsCastle: true})
		}
	}
}

// LegalMoves returns every pseudo-legal move that does not leave the
// mover's own king in check. This is the only exported move-generation
// entry point: it is what ChessEnvironment.legal_mask is derived from.
func (b *Board) LegalMoves() []Move {
	side := b.sideToMove
	pseudo := b.pseudoLegalMoves()
	legal := make([]Move, 0, len(pseudo))
	for _, m := range pseudo {
		trial := b.Clone()
		trial.applyMoveRaw(m)
		if !trial.InCheck(side) {
			legal = append(legal, m)
		}
	}
	return legal
}
