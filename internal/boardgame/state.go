package boardgame

// applyMoveRaw performs the mechanical board update for m (piece
// placement, castling rook hop, en passant capture, castling rights,
// en passant target, clocks, side to move) but does not record the
// resulting position in the repetition history. Used both by the
// public ApplyMove and by LegalMoves' check-safety trial so that
// speculative moves never pollute threefold-repetition counting.
func (b *Board) applyMoveRaw(m Move) {
	piece := b.squares[m.From]
	captured := b.squares[m.To]
	side := piece.Color

	b.epSquare = -1

	if m.IsEnPassant {
		capSq := MakeSquare(m.To.File(), m.From.Rank())
		b.squares[capSq] = Empty
	}

	b.squares[m.From] = Empty
	if m.Promotion != None {
		b.squares[m.To] = Piece{m.Promotion, side}
	} else {
		b.squares[m.To] = piece
	}

	if m.IsCastle {
		rank := m.From.Rank()
		if m.To.File() == 6 {
			rookFrom, rookTo := MakeSquare(7, rank), MakeSquare(5, rank)
			b.squares[rookTo] = b.squares[rookFrom]
			b.squares[rookFrom] = Empty
		} else {
			rookFrom, rookTo := MakeSquare(0, rank), MakeSquare(3, rank)
			b.squares[rookTo] = b.squares[rookFrom]
			b.squares[rookFrom] = Empty
		}
	}

	if piece.Type == Pawn {
		df := m.To.Rank() - m.From.Rank()
		if df == 2 || df == -2 {
			b.epSquare = MakeSquare(m.From.File(), (m.From.Rank()+m.To.Rank())/2)
		}
	}

	b.updateCastlingRights(m)

	isCapture := !captured.IsEmpty() || m.IsEnPassant
	if piece.Type == Pawn || isCapture {
		b.halfmoveClock = 0
	} else {
		b.halfmoveClock++
	}

	if side == Black {
		b.fullmoveNumber++
	}
	b.sideToMove = side.Other()
}

func (b *Board) updateCastlingRights(m Move) {
	piece := b.squares[m.To]
	if piece.Type == King {
		if piece.Color == White {
			b.castling[rightsWK] = false
			b.castling[rightsWQ] = false
		} else {
			b.castling[rightsBK] = false
			b.castling[rightsBQ] = false
		}
	}
	clear := func(sq Square) {
		switch sq {
		case MakeSquare(7, 0):
			b.castling[rightsWK] = false
		case MakeSquare(0, 0):
			b.castling[rightsWQ] = false
		case MakeSquare(7, 7):
			b.castling[rightsBK] = false
		case MakeSquare(0, 7):
			b.castling[rightsBQ] = false
		}
	}
	clear(m.From)
	clear(m.To)
}

// ApplyMove applies a legal move to the board and records the
// resulting position for repetition tracking. Callers are responsible
// for only ever passing moves returned by LegalMoves; ApplyMove itself
// does not re-validate legality.
func (b *Board) ApplyMove(m Move) {
	b.applyMoveRaw(m)
	b.recordPosition()
}

// IsCheckmate reports whether the side to move has no legal moves and
// is in check.
func (b *Board) IsCheckmate(legal []Move) bool {
	return len(legal) == 0 && b.InCheck(b.sideToMove)
}

// IsStalemate reports whether the side to move has no legal moves and
// is not in check.
func (b *Board) IsStalemate(legal []Move) bool {
	return len(legal) == 0 && !b.InCheck(b.sideToMove)
}

// IsFiftyMoveRule reports whether 50 full moves (100 half-moves) have
// passed without a pawn move or capture.
func (b *Board) IsFiftyMoveRule() bool { return b.halfmoveClock >= 100 }

// IsThreefoldRepetition reports whether the current position has
// occurred three or more times.
func (b *Board) IsThreefoldRepetition() bool { return b.RepetitionCount() >= 3 }

// InsufficientMaterial reports whether neither side has enough
// material to deliver checkmate: K v K, K+minor v K, or K+B v K+B with
// both bishops on the same square color.
func (b *Board) InsufficientMaterial() bool {
	var whiteMinor, blackMinor []PieceType
	var whiteBishopSq, blackBishopSq Square = -1, -1

	for s := Square(0); s < 64; s++ {
		p := b.squares[s]
		if p.IsEmpty() || p.Type == King {
			continue
		}
		switch p.Type {
		case Bishop, Knight:
			if p.Color == White {
				whiteMinor = append(whiteMinor, p.Type)
				if p.Type == Bishop {
					whiteBishopSq = s
				}
			} else {
				blackMinor = append(blackMinor, p.Type)
				if p.Type == Bishop {
					blackBishopSq = s
				}
			}
		default:
			return false // pawn, rook, or queen on board: sufficient material
		}
	}

	if len(whiteMinor) == 0 && len(blackMinor) == 0 {
		return true // K v K
	}
	if len(whiteMinor) <= 1 && len(blackMinor) == 0 {
		return true // K+minor v K
	}
	if len(blackMinor) <= 1 && len(whiteMinor) == 0 {
		return true // K v K+minor
	}
	if len(whiteMinor) == 1 && len(blackMinor) == 1 &&
		whiteMinor[0] == Bishop && blackMinor[0] == Bishop {
		return squareColor(whiteBishopSq) == squareColor(blackBishopSq)
	}
	return false
}

func squareColor(s Square) int { return (s.File() + s.Rank()) % 2 }

// Terminal classifies the current position: it returns (Ongoing, "")
// if the game continues, otherwise the Result and the reason. legal
// must be the output of b.LegalMoves() for the current position
// (passed in so callers that already computed it don't pay for it
// twice).
func (b *Board) Terminal(legal []Move) (Result, TerminationReason) {
	if b.IsCheckmate(legal) {
		if b.sideToMove == White {
			return BlackWins, ReasonCheckmate
		}
		return WhiteWins, ReasonCheckmate
	}
	if b.IsStalemate(legal) {
		return Draw, ReasonStalemate
	}
	if b.InsufficientMaterial() {
		return Draw, ReasonInsufficientMaterial
	}
	if b.IsFiftyMoveRule() {
		return Draw, ReasonFiftyMove
	}
	if b.IsThreefoldRepetition() {
		return Draw, ReasonThreefold
	}
	return Ongoing, ReasonNone
}
