// Package boardgame implements chess rules: board representation,
// legal move generation, and terminal-position detection (checkmate,
// stalemate, insufficient material, threefold repetition, fifty-move
// rule). It has no dependency on the RL training core — it is the
// chess rules engine that internal/rlenv adapts into an environment.
package boardgame

import "fmt"

// Color is one of the two sides.
type Color int8

const (
	White Color = iota
	Black
)

// Other returns the opposing color.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

// PieceType enumerates the six chessmen. Zero value means "no piece".
type PieceType int8

const (
	None PieceType = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

// Piece is a (type, color) pair occupying a square, or the zero value
// for an empty square.
type Piece struct {
	Type  PieceType
	Color Color
}

// Empty is the zero-value empty-square piece.
var Empty = Piece{}

func (p Piece) IsEmpty() bool { return p.Type == None }

// letters maps a piece type to its algebraic letter (uppercase for
// White, lowercase for Black), used by FEN and SAN-ish debug output.
var letters = map[PieceType]byte{
	Pawn: 'p', Knight: 'n', Bishop: 'b', Rook: 'r', Queen: 'q', King: 'k',
}

func (p Piece) Letter() byte {
	l := letters[p.Type]
	if p.Color == White {
		l -= 'a' - 'A'
	}
	return l
}

// Square is a board index in [0,64): square = rank*8+file, rank 0 is
// White's back rank (a1=0, h1=7, a8=56, h8=63).
type Square int

func MakeSquare(file, rank int) Square { return Square(rank*8 + file) }
func (s Square) File() int             { return int(s) % 8 }
func (s Square) Rank() int             { return int(s) / 8 }
func (s Square) Valid() bool           { return s >= 0 && s < 64 }

func (s Square) String() string {
	return fmt.Sprintf("%c%d", 'a'+s.File(), s.Rank()+1)
}

// ParseSquare parses algebraic coordinates like "e4".
func ParseSquare(str string) (Square, error) {
	if len(str) != 2 {
		return 0, fmt.Errorf("boardgame: invalid square %q", str)
	}
	file := int(str[0] - 'a')
	rank := int(str[1] - '1')
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return 0, fmt.Errorf("boardgame: invalid square %q", str)
	}
	return MakeSquare(file, rank), nil
}

// Move is a from/to pair plus an optional promotion piece type. This
// engine always promotes to Queen; Promotion is tracked on the Move so
// ApplyMove can place the right piece, but callers never need to
// choose it.
type Move struct {
	From, To  Square
	Promotion PieceType
	// Castle/EnPassant flag which move kind this is, set by the
	// generator, consumed by ApplyMove to update rights/captures
	// correctly without re-deriving them from From/To.
	IsCastle    bool
	IsEnPassant bool
}

func (m Move) String() string {
	s := m.From.String() + m.To.String()
	if m.Promotion != None {
		s += string(letters[m.Promotion])
	}
	return s
}

// Result classifies how a game ended.
type Result int

const (
	Ongoing Result = iota
	WhiteWins
	BlackWins
	Draw
)

// TerminationReason records why a terminal Result was reached.
type TerminationReason string

const (
	ReasonNone               TerminationReason = ""
	ReasonCheckmate          TerminationReason = "checkmate"
	ReasonStalemate          TerminationReason = "stalemate"
	ReasonInsufficientMaterial TerminationReason = "insufficient_material"
	ReasonThreefold          TerminationReason = "threefold_repetition"
	ReasonFiftyMove          TerminationReason = "fifty_move_rule"
	ReasonStepLimit          TerminationReason = "step_limit"
)
