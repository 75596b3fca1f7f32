package chess

// Notation derives the simplified algebraic string for m on b. It must be
// called before the move is applied so captures can be seen.
//
// Quiet moves are "{letter}{dest}" ("e4", "Na3"); captures join a prefix to
// the destination with "x", the prefix being the origin file for pawns
// ("exd5") and the piece letter otherwise ("Nxf7"). There is no
// disambiguation and no check suffix.
func Notation(b *Board, m Move) string {
	piece := b.Piece(m.From)
	dest := m.To.String()
	if b.Piece(m.To).IsEmpty() {
		return piece.Type.Letter() + dest
	}
	prefix := piece.Type.Letter()
	if piece.Type == Pawn {
		prefix = string(m.From.File())
	}
	return prefix + "x" + dest
}
