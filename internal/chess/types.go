// Package chess holds the rules core: board state, move geometry, check and
// terminal detection, notation and the heuristic move selector.
package chess

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSquare = errors.New("invalid square")
	ErrIllegalMove   = errors.New("illegal move")
	ErrNoLegalMoves  = errors.New("no legal moves")
)

// Color identifies a side.
type Color uint8

const (
	White Color = iota
	Black
)

func (c Color) Opposite() Color {
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

// Title is the capitalised side name used in status lines.
func (c Color) Title() string {
	if c == White {
		return "White"
	}
	return "Black"
}

func (c Color) Letter() byte {
	if c == White {
		return 'w'
	}
	return 'b'
}

// ParseColor accepts "white"/"black" and the FEN letters.
func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	default:
		return White, fmt.Errorf("unknown color %q", s)
	}
}

type PieceType uint8

const (
	NoPieceType PieceType = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

// Letter returns the notation letter. Pawns have none.
func (t PieceType) Letter() string {
	switch t {
	case Knight:
		return "N"
	case Bishop:
		return "B"
	case Rook:
		return "R"
	case Queen:
		return "Q"
	case King:
		return "K"
	default:
		return ""
	}
}

func (t PieceType) String() string {
	switch t {
	case Pawn:
		return "pawn"
	case Knight:
		return "knight"
	case Bishop:
		return "bishop"
	case Rook:
		return "rook"
	case Queen:
		return "queen"
	case King:
		return "king"
	default:
		return "none"
	}
}

// Piece is a colored piece. The zero value is an empty square.
type Piece struct {
	Type  PieceType
	Color Color
}

var NoPiece = Piece{}

func (p Piece) IsEmpty() bool { return p.Type == NoPieceType }

// Rune returns the FEN letter, uppercase for white. Empty squares map to 0.
func (p Piece) Rune() rune {
	var r rune
	switch p.Type {
	case Pawn:
		r = 'p'
	case Knight:
		r = 'n'
	case Bishop:
		r = 'b'
	case Rook:
		r = 'r'
	case Queen:
		r = 'q'
	case King:
		r = 'k'
	default:
		return 0
	}
	if p.Color == White {
		r -= 'a' - 'A'
	}
	return r
}

func (p Piece) String() string {
	if p.IsEmpty() {
		return ""
	}
	return string(p.Rune())
}

// PieceFromRune is the inverse of Piece.Rune.
func PieceFromRune(r rune) (Piece, bool) {
	color := Black
	if r >= 'A' && r <= 'Z' {
		color = White
		r += 'a' - 'A'
	}
	var t PieceType
	switch r {
	case 'p':
		t = Pawn
	case 'n':
		t = Knight
	case 'b':
		t = Bishop
	case 'r':
		t = Rook
	case 'q':
		t = Queen
	case 'k':
		t = King
	default:
		return NoPiece, false
	}
	return Piece{Type: t, Color: color}, true
}

// Square addresses the board by row and column. Row 0 is rank 8.
type Square struct {
	Row int
	Col int
}

// NewSquare validates the coordinates.
func NewSquare(row, col int) (Square, error) {
	sq := Square{Row: row, Col: col}
	if !sq.Valid() {
		return Square{}, fmt.Errorf("%w: row=%d col=%d", ErrInvalidSquare, row, col)
	}
	return sq, nil
}

func (s Square) Valid() bool {
	return s.Row >= 0 && s.Row < 8 && s.Col >= 0 && s.Col < 8
}

func (s Square) File() byte { return byte('a' + s.Col) }

func (s Square) Rank() byte { return byte('8' - s.Row) }

func (s Square) String() string {
	if !s.Valid() {
		return "??"
	}
	return string([]byte{s.File(), s.Rank()})
}

// ParseSquare reads algebraic coordinates such as "e4".
func ParseSquare(s string) (Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 {
		return Square{}, fmt.Errorf("%w: %q", ErrInvalidSquare, s)
	}
	return NewSquare(int('8')-int(s[1]), int(s[0])-int('a'))
}

// Move is a from/to pair. There is no metadata for special moves.
type Move struct {
	From Square
	To   Square
}

// String renders the move in coordinate form ("e2e4").
func (m Move) String() string {
	return m.From.String() + m.To.String()
}

// ParseMove reads coordinate notation such as "e2e4".
func ParseMove(s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 {
		return Move{}, fmt.Errorf("%w: %q", ErrIllegalMove, s)
	}
	from, err := ParseSquare(s[:2])
	if err != nil {
		return Move{}, err
	}
	to, err := ParseSquare(s[2:])
	if err != nil {
		return Move{}, err
	}
	return Move{From: from, To: to}, nil
}
