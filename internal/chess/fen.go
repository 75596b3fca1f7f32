package chess

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// InitialFEN is the starting position. Castling and en passant fields are
// always "-" because those rules do not exist here.
const InitialFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w - - 0 1"

var ErrInvalidFEN = errors.New("invalid FEN string")

// EncodeFEN writes placement, side to move and the move number.
func EncodeFEN(b *Board, turn Color, fullmove int) string {
	if fullmove < 1 {
		fullmove = 1
	}
	var sb strings.Builder
	for row := 0; row < 8; row++ {
		empty := 0
		for col := 0; col < 8; col++ {
			p := b[row][col]
			if p.IsEmpty() {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteRune(p.Rune())
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if row < 7 {
			sb.WriteByte('/')
		}
	}
	fmt.Fprintf(&sb, " %c - - 0 %d", turn.Letter(), fullmove)
	return sb.String()
}

// DecodeFEN reads the placement and, when present, the side to move. Other
// fields are accepted and ignored.
func DecodeFEN(fen string) (Board, Color, error) {
	var b Board
	parts := strings.Fields(fen)
	if len(parts) == 0 {
		return b, White, fmt.Errorf("empty FEN string: %w", ErrInvalidFEN)
	}

	rows := strings.Split(parts[0], "/")
	if len(rows) != 8 {
		return b, White, fmt.Errorf("%w: expected 8 ranks, got %d", ErrInvalidFEN, len(rows))
	}
	for row, text := range rows {
		col := 0
		for _, r := range text {
			if r >= '1' && r <= '8' {
				col += int(r - '0')
				continue
			}
			p, ok := PieceFromRune(r)
			if !ok {
				return b, White, fmt.Errorf("%w: unexpected %q", ErrInvalidFEN, r)
			}
			if col >= 8 {
				return b, White, fmt.Errorf("%w: rank %d overflows", ErrInvalidFEN, 8-row)
			}
			b[row][col] = p
			col++
		}
		if col != 8 {
			return b, White, fmt.Errorf("%w: rank %d has %d files", ErrInvalidFEN, 8-row, col)
		}
	}

	turn := White
	if len(parts) > 1 {
		c, err := ParseColor(parts[1])
		if err != nil {
			return b, White, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
		}
		turn = c
	}
	return b, turn, nil
}
