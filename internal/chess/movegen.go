package chess

// pawnStartRow is the row a pawn of each color may double-step from.
var pawnStartRow = [2]int{White: 6, Black: 1}

// pawnDir is the row delta of a forward pawn step.
var pawnDir = [2]int{White: -1, Black: 1}

// LegalMoves returns the destinations reachable by the piece on sq: the piece
// geometry allows it, the destination is not friendly, and the mover's king is
// not left in check. Destinations come back in row-major order.
func LegalMoves(b *Board, sq Square) ([]Square, error) {
	if !sq.Valid() {
		return nil, ErrInvalidSquare
	}
	piece := b.Piece(sq)
	if piece.IsEmpty() {
		return nil, nil
	}
	var out []Square
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			to := Square{Row: row, Col: col}
			if isLegal(b, Move{From: sq, To: to}, piece.Color) {
				out = append(out, to)
			}
		}
	}
	return out, nil
}

// IsLegal reports whether m is a legal move for the piece on m.From.
func IsLegal(b *Board, m Move) bool {
	if !m.From.Valid() || !m.To.Valid() {
		return false
	}
	piece := b.Piece(m.From)
	if piece.IsEmpty() {
		return false
	}
	return isLegal(b, m, piece.Color)
}

func isLegal(b *Board, m Move, mover Color) bool {
	if !pseudoLegal(b, m.From, m.To) {
		return false
	}
	scratch := b.Clone()
	scratch.apply(m)
	return !IsInCheck(&scratch, mover)
}

// AllLegalMoves enumerates every legal move of color, origins row-major and
// destinations row-major within each origin.
func AllLegalMoves(b *Board, color Color) []Move {
	var moves []Move
	for _, from := range b.Squares(color) {
		targets, _ := LegalMoves(b, from)
		for _, to := range targets {
			moves = append(moves, Move{From: from, To: to})
		}
	}
	return moves
}

// HasLegalMove stops at the first legal move found.
func HasLegalMove(b *Board, color Color) bool {
	for _, from := range b.Squares(color) {
		for row := 0; row < 8; row++ {
			for col := 0; col < 8; col++ {
				if isLegal(b, Move{From: from, To: Square{Row: row, Col: col}}, color) {
					return true
				}
			}
		}
	}
	return false
}

// pseudoLegal checks piece geometry and friendly occupation only. It is also
// the attack test used by IsInCheck, so it must never consult check state.
func pseudoLegal(b *Board, from, to Square) bool {
	piece := b.Piece(from)
	if piece.IsEmpty() || from == to {
		return false
	}
	target := b.Piece(to)
	if !target.IsEmpty() && target.Color == piece.Color {
		return false
	}

	dRow := to.Row - from.Row
	dCol := to.Col - from.Col
	absRow, absCol := abs(dRow), abs(dCol)

	switch piece.Type {
	case Pawn:
		dir := pawnDir[piece.Color]
		if dCol == 0 && target.IsEmpty() {
			if dRow == dir {
				return true
			}
			if dRow == 2*dir && from.Row == pawnStartRow[piece.Color] {
				return b.Piece(Square{Row: from.Row + dir, Col: from.Col}).IsEmpty()
			}
			return false
		}
		return absCol == 1 && dRow == dir && !target.IsEmpty()
	case Knight:
		return (absRow == 2 && absCol == 1) || (absRow == 1 && absCol == 2)
	case Bishop:
		return absRow == absCol && pathClear(b, from, to)
	case Rook:
		return (dRow == 0) != (dCol == 0) && pathClear(b, from, to)
	case Queen:
		if absRow == absCol || dRow == 0 || dCol == 0 {
			return pathClear(b, from, to)
		}
		return false
	case King:
		return absRow <= 1 && absCol <= 1
	default:
		return false
	}
}

// pathClear reports whether every square strictly between from and to is
// empty. The squares must share a row, column or diagonal.
func pathClear(b *Board, from, to Square) bool {
	stepRow, stepCol := sign(to.Row-from.Row), sign(to.Col-from.Col)
	row, col := from.Row+stepRow, from.Col+stepCol
	for row != to.Row || col != to.Col {
		if !b[row][col].IsEmpty() {
			return false
		}
		row += stepRow
		col += stepCol
	}
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	default:
		return 0
	}
}
