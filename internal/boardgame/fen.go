package boardgame

import (
	"fmt"
	"strconv"
	"strings"
)

// FEN renders the board in Forsyth-Edwards notation.
func (b *Board) FEN() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			p := b.squares[MakeSquare(file, rank)]
			if p.IsEmpty() {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteByte(p.Letter())
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}

	sb.WriteByte(' ')
	if b.sideToMove == White {
		sb.WriteByte('w')
	} else {
		sb.WriteByte('b')
	}

	sb.WriteByte(' ')
	castle := ""
	if b.castling[rightsWK] {
		castle += "K"
	}
	if b.castling[rightsWQ] {
		castle += "Q"
	}
	if b.castling[rightsBK] {
		castle += "k"
	}
	if b.castling[rightsBQ] {
		castle += "q"
	}
	if castle == "" {
		castle = "-"
	}
	sb.WriteString(castle)

	sb.WriteByte(' ')
	if b.epSquare >= 0 {
		sb.WriteString(b.epSquare.String())
	} else {
		sb.WriteByte('-')
	}

	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(b.halfmoveClock))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(b.fullmoveNumber))

	return sb.String()
}

var fenPieces = map[byte]PieceType{
	'p': Pawn, 'n': Knight, 'b': Bishop, 'r': Rook, 'q': Queen, 'k': King,
}

// ParseFEN builds a Board from Forsyth-Edwards notation. The
// repetition history starts fresh, containing only the parsed
// position.
func ParseFEN(fen string) (*Board, error) {
	fields := strings.Fields(fen)
	if len(fields) != 6 {
		return nil, fmt.Errorf("boardgame: FEN %q must have 6 fields, got %d", fen, len(fields))
	}

	b := &Board{epSquare: -1, positionCounts: make(map[string]int)}

	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return nil, fmt.Errorf("boardgame: FEN %q must have 8 ranks", fen)
	}
	for i, rowStr := range ranks {
		rank := 7 - i
		file := 0
		for _, ch := range rowStr {
			if ch >= '1' && ch <= '8' {
				file += int(ch - '0')
				continue
			}
			if file > 7 {
				return nil, fmt.Errorf("boardgame: FEN %q overflows rank %d", fen, rank+1)
			}
			pt, ok := fenPieces[byte(lower(ch))]
			if !ok {
				return nil, fmt.Errorf("boardgame: FEN %q has invalid piece %q", fen, ch)
			}
			color := Black
			if ch >= 'A' && ch <= 'Z' {
				color = White
			}
			b.squares[MakeSquare(file, rank)] = Piece{Type: pt, Color: color}
			file++
		}
	}

	switch fields[1] {
	case "w":
		b.sideToMove = White
	case "b":
		b.sideToMove = Black
	default:
		return nil, fmt.Errorf("boardgame: FEN %q has invalid side to move %q", fen, fields[1])
	}

	if fields[2] != "-" {
		for _, ch := range fields[2] {
			switch ch {
			case 'K':
				b.castling[rightsWK] = true
			case 'Q':
				b.castling[rightsWQ] = true
			case 'k':
				b.castling[rightsBK] = true
			case 'q':
				b.castling[rightsBQ] = true
			}
		}
	}

	if fields[3] != "-" {
		sq, err := ParseSquare(fields[3])
		if err != nil {
			return nil, fmt.Errorf("boardgame: FEN %q has invalid en passant square: %w", fen, err)
		}
		b.epSquare = sq
	}

	half, err := strconv.Atoi(fields[4])
	if err != nil {
		return nil, fmt.Errorf("boardgame: FEN %q has invalid halfmove clock: %w", fen, err)
	}
	b.halfmoveClock = half

	full, err := strconv.Atoi(fields[5])
	if err != nil {
		return nil, fmt.Errorf("boardgame: FEN %q has invalid fullmove number: %w", fen, err)
	}
	b.fullmoveNumber = full

	b.recordPosition()
	return b, nil
}

func lower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}
