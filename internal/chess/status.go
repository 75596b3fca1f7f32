package chess

// IsInCheck reports whether any opposing piece can geometrically reach the
// king of color. A board without that king is never in check.
func IsInCheck(b *Board, color Color) bool {
	king, ok := b.FindKing(color)
	if !ok {
		return false
	}
	return IsAttacked(b, king, color.Opposite())
}

// IsAttacked reports whether a piece of by can move onto sq under the
// geometric rules alone.
func IsAttacked(b *Board, sq Square, by Color) bool {
	for _, from := range b.Squares(by) {
		if pseudoLegal(b, from, sq) {
			return true
		}
	}
	return false
}

// Terminal classifies a side that may have run out of moves.
type Terminal uint8

const (
	NotTerminal Terminal = iota
	Checkmate
	Stalemate
)

func (t Terminal) String() string {
	switch t {
	case Checkmate:
		return "checkmate"
	case Stalemate:
		return "stalemate"
	default:
		return "none"
	}
}

// Classify reports checkmate or stalemate when color has no legal move.
func Classify(b *Board, color Color) Terminal {
	if HasLegalMove(b, color) {
		return NotTerminal
	}
	if IsInCheck(b, color) {
		return Checkmate
	}
	return Stalemate
}

type Status string

const (
	StatusOngoing   Status = "ongoing"
	StatusWhiteWins Status = "white_wins"
	StatusBlackWins Status = "black_wins"
	StatusStalemate Status = "stalemate"
)

// StatusFor returns the winning status for winner.
func StatusFor(winner Color) Status {
	if winner == White {
		return StatusWhiteWins
	}
	return StatusBlackWins
}

// Winner returns the winning color of a decisive status.
func (s Status) Winner() (Color, bool) {
	switch s {
	case StatusWhiteWins:
		return White, true
	case StatusBlackWins:
		return Black, true
	default:
		return White, false
	}
}

func (s Status) Over() bool { return s != StatusOngoing && s != "" }

type Method string

const (
	MethodNone         Method = ""
	MethodCheckmate    Method = "checkmate"
	MethodStalemate    Method = "stalemate"
	MethodKingCaptured Method = "king_captured"
	MethodTimeout      Method = "timeout"
)

// Outcome is a status together with how it was reached.
type Outcome struct {
	Status Status `json:"status"`
	Method Method `json:"method,omitempty"`
}

var Ongoing = Outcome{Status: StatusOngoing}

func (o Outcome) Over() bool { return o.Status.Over() }

// Evaluate applies terminal precedence after a move: a side without a king
// loses first, then toMove is checked for mate or stalemate.
func Evaluate(b *Board, toMove Color) Outcome {
	if _, ok := b.FindKing(White); !ok {
		return Outcome{Status: StatusBlackWins, Method: MethodKingCaptured}
	}
	if _, ok := b.FindKing(Black); !ok {
		return Outcome{Status: StatusWhiteWins, Method: MethodKingCaptured}
	}
	switch Classify(b, toMove) {
	case Checkmate:
		return Outcome{Status: StatusFor(toMove.Opposite()), Method: MethodCheckmate}
	case Stalemate:
		return Outcome{Status: StatusStalemate, Method: MethodStalemate}
	default:
		return Ongoing
	}
}
