package chess

// Board is an 8x8 grid. It is a value type: assigning it copies every square,
// which is how move simulation gets its scratch board.
type Board [8][8]Piece

var backRank = [8]PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

// InitialBoard returns the standard starting position.
func InitialBoard() Board {
	var b Board
	for col, t := range backRank {
		b[0][col] = Piece{Type: t, Color: Black}
		b[1][col] = Piece{Type: Pawn, Color: Black}
		b[6][col] = Piece{Type: Pawn, Color: White}
		b[7][col] = Piece{Type: t, Color: White}
	}
	return b
}

// Piece returns the occupant of sq, or NoPiece for empty or off-board squares.
func (b *Board) Piece(sq Square) Piece {
	if !sq.Valid() {
		return NoPiece
	}
	return b[sq.Row][sq.Col]
}

// Set places p on sq. Off-board squares are ignored.
func (b *Board) Set(sq Square, p Piece) {
	if !sq.Valid() {
		return
	}
	b[sq.Row][sq.Col] = p
}

func (b *Board) Clone() Board { return *b }

// FindKing locates the king of color.
func (b *Board) FindKing(color Color) (Square, bool) {
	king := Piece{Type: King, Color: color}
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			if b[row][col] == king {
				return Square{Row: row, Col: col}, true
			}
		}
	}
	return Square{}, false
}

// Squares lists the squares holding pieces of color in row-major order.
func (b *Board) Squares(color Color) []Square {
	var out []Square
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			p := b[row][col]
			if !p.IsEmpty() && p.Color == color {
				out = append(out, Square{Row: row, Col: col})
			}
		}
	}
	return out
}

// apply moves the piece without any validation and returns what was captured.
func (b *Board) apply(m Move) Piece {
	captured := b[m.To.Row][m.To.Col]
	b[m.To.Row][m.To.Col] = b[m.From.Row][m.From.Col]
	b[m.From.Row][m.From.Col] = NoPiece
	return captured
}

var pieceValues = map[PieceType]int{
	Pawn:   1,
	Knight: 3,
	Bishop: 3,
	Rook:   5,
	Queen:  9,
}

// Material returns the piece-value balance, positive when white is ahead.
func (b *Board) Material() int {
	score := 0
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			p := b[row][col]
			if p.IsEmpty() {
				continue
			}
			if p.Color == White {
				score += pieceValues[p.Type]
			} else {
				score -= pieceValues[p.Type]
			}
		}
	}
	return score
}
