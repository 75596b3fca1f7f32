package game

import (
	"strconv"
	"strings"

	"github.com/park285/battle-chess/internal/chess"
)

// Row is one line of the move list.
type Row struct {
	Number int    `json:"number"`
	White  string `json:"white"`
	Black  string `json:"black,omitempty"`
}

// Rows pairs plies into numbered move-list rows.
func (s *Session) Rows() []Row {
	return Rows(s.history)
}

func Rows(history []Record) []Row {
	var rows []Row
	for _, rec := range history {
		if rec.Color == chess.White {
			rows = append(rows, Row{Number: len(rows) + 1, White: rec.Notation})
			continue
		}
		if len(rows) == 0 {
			rows = append(rows, Row{Number: 1})
		}
		rows[len(rows)-1].Black = rec.Notation
	}
	return rows
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	FEN         string        `json:"fen"`
	Turn        string        `json:"turn"`
	Outcome     chess.Outcome `json:"outcome"`
	InCheck     bool          `json:"in_check"`
	Moves       []string      `json:"moves"`
	Rows        []Row         `json:"rows"`
	LastMove    string        `json:"last_move,omitempty"`
	WhiteMillis int64         `json:"white_ms"`
	BlackMillis int64         `json:"black_ms"`
	Material    int           `json:"material"`
	EvalBar     float64       `json:"eval_bar"`
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		FEN:         chess.EncodeFEN(&s.board, s.turn, len(s.history)/2+1),
		Turn:        s.turn.String(),
		Outcome:     s.outcome,
		InCheck:     !s.outcome.Over() && s.IsInCheck(s.turn),
		Moves:       UCIMoves(s.history),
		Rows:        s.Rows(),
		WhiteMillis: s.clock.Left(chess.White).Milliseconds(),
		BlackMillis: s.clock.Left(chess.Black).Milliseconds(),
		Material:    s.Material(),
		EvalBar:     s.EvalBar(),
	}
	if m, ok := s.LastMove(); ok {
		snap.LastMove = m.String()
	}
	return snap
}

func UCIMoves(history []Record) []string {
	out := make([]string, len(history))
	for i, rec := range history {
		out[i] = rec.Move.String()
	}
	return out
}

// ResultToken renders an outcome as a PGN result.
func ResultToken(o chess.Outcome) string {
	switch o.Status {
	case chess.StatusWhiteWins:
		return "1-0"
	case chess.StatusBlackWins:
		return "0-1"
	case chess.StatusStalemate:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// MoveText renders history as numbered movetext followed by the result.
func MoveText(history []Record, o chess.Outcome) string {
	return FormatMoveText(Rows(history), o)
}

// FormatMoveText is MoveText for rows already paired.
func FormatMoveText(rows []Row, o chess.Outcome) string {
	var sb strings.Builder
	for _, row := range rows {
		sb.WriteString(strconv.Itoa(row.Number))
		sb.WriteString(". ")
		if row.White == "" {
			sb.WriteString("...")
		} else {
			sb.WriteString(row.White)
		}
		if row.Black != "" {
			sb.WriteByte(' ')
			sb.WriteString(row.Black)
		}
		sb.WriteByte(' ')
	}
	sb.WriteString(ResultToken(o))
	return sb.String()
}
