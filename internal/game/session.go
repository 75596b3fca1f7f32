// Package game holds one game of chess: board, side to move, history, clocks
// and outcome. A Session has a single owner and no locking of its own.
package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/park285/battle-chess/internal/chess"
)

var (
	ErrGameOver      = errors.New("game is over")
	ErrNothingToUndo = errors.New("no move to undo")
)

// Record is one applied ply.
type Record struct {
	Ply      int
	Color    chess.Color
	Move     chess.Move
	Piece    chess.Piece
	Captured chess.Piece
	Notation string
	Outcome  chess.Outcome
}

type Options struct {
	// Clock is the per-side budget; zero means DefaultClock.
	Clock time.Duration
}

type Session struct {
	opts    Options
	board   chess.Board
	turn    chess.Color
	outcome chess.Outcome
	history []Record
	clock   Clock
}

func New(opts Options) *Session {
	s := &Session{opts: opts}
	s.Reset()
	return s
}

// Reset restores the initial position and full clocks.
func (s *Session) Reset() {
	s.board = chess.InitialBoard()
	s.turn = chess.White
	s.outcome = chess.Ongoing
	s.history = nil
	s.clock = NewClock(s.opts.Clock)
}

func (s *Session) Board() chess.Board           { return s.board }
func (s *Session) Turn() chess.Color            { return s.turn }
func (s *Session) Outcome() chess.Outcome       { return s.outcome }
func (s *Session) Clock() Clock                 { return s.clock }
func (s *Session) Plies() int                   { return len(s.history) }
func (s *Session) Material() int                { return s.board.Material() }
func (s *Session) IsInCheck(c chess.Color) bool { return chess.IsInCheck(&s.board, c) }

// TerminalStatus is the outcome as of the last transition.
func (s *Session) TerminalStatus() chess.Outcome { return s.outcome }

func (s *Session) History() []Record {
	out := make([]Record, len(s.history))
	copy(out, s.history)
	return out
}

// LastMove returns the most recent ply's move.
func (s *Session) LastMove() (chess.Move, bool) {
	if len(s.history) == 0 {
		return chess.Move{}, false
	}
	return s.history[len(s.history)-1].Move, true
}

// LegalMoves lists destinations for the piece on sq regardless of whose turn
// it is. A finished game has none.
func (s *Session) LegalMoves(sq chess.Square) ([]chess.Square, error) {
	if !sq.Valid() {
		return nil, chess.ErrInvalidSquare
	}
	if s.outcome.Over() {
		return nil, nil
	}
	return chess.LegalMoves(&s.board, sq)
}

// ApplyMove plays from→to for the side to move. Every rejection leaves the
// session untouched.
func (s *Session) ApplyMove(from, to chess.Square) (Record, error) {
	if s.outcome.Over() {
		return Record{}, ErrGameOver
	}
	if !from.Valid() || !to.Valid() {
		return Record{}, chess.ErrInvalidSquare
	}
	piece := s.board.Piece(from)
	if piece.IsEmpty() {
		return Record{}, fmt.Errorf("%w: %s is empty", chess.ErrIllegalMove, from)
	}
	if piece.Color != s.turn {
		return Record{}, fmt.Errorf("%w: %s to move", chess.ErrIllegalMove, s.turn)
	}
	m := chess.Move{From: from, To: to}
	if !chess.IsLegal(&s.board, m) {
		return Record{}, fmt.Errorf("%w: %s", chess.ErrIllegalMove, m)
	}

	rec := Record{
		Ply:      len(s.history) + 1,
		Color:    s.turn,
		Move:     m,
		Piece:    piece,
		Captured: s.board.Piece(to),
		Notation: chess.Notation(&s.board, m),
	}
	s.board.Set(to, piece)
	s.board.Set(from, chess.NoPiece)
	s.turn = s.turn.Opposite()
	s.outcome = chess.Evaluate(&s.board, s.turn)
	rec.Outcome = s.outcome
	s.history = append(s.history, rec)
	return rec, nil
}

// ApplyUCI is ApplyMove for coordinate text such as "e2e4".
func (s *Session) ApplyUCI(text string) (Record, error) {
	m, err := chess.ParseMove(text)
	if err != nil {
		return Record{}, err
	}
	return s.ApplyMove(m.From, m.To)
}

// SelectEngineMove asks sel for a move for the side to move without playing it.
func (s *Session) SelectEngineMove(sel *chess.Selector) (chess.Move, error) {
	if s.outcome.Over() {
		return chess.Move{}, ErrGameOver
	}
	return sel.Select(&s.board, s.turn)
}

// Undo takes back the last ply, restoring any captured piece. Clocks are
// left alone, and a game lost on time cannot be undone.
func (s *Session) Undo() (Record, error) {
	if len(s.history) == 0 {
		return Record{}, ErrNothingToUndo
	}
	if s.outcome.Method == chess.MethodTimeout {
		return Record{}, ErrGameOver
	}
	last := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	s.board.Set(last.Move.From, last.Piece)
	s.board.Set(last.Move.To, last.Captured)
	s.turn = last.Color
	s.outcome = chess.Ongoing
	return last, nil
}

// Tick charges d to the side to move. It reports true when this call ended
// the game on time.
func (s *Session) Tick(d time.Duration) bool {
	if s.outcome.Over() {
		return false
	}
	if !s.clock.Charge(s.turn, d) {
		return false
	}
	s.outcome = chess.Outcome{Status: chess.StatusFor(s.turn.Opposite()), Method: chess.MethodTimeout}
	return true
}

// RestoreClock overwrites remaining times, clamped to the budget.
func (s *Session) RestoreClock(white, black time.Duration) {
	clamp := func(d time.Duration) time.Duration {
		switch {
		case d < 0:
			return 0
		case d > s.clock.Budget:
			return s.clock.Budget
		}
		return d
	}
	s.clock.Remaining[chess.White] = clamp(white)
	s.clock.Remaining[chess.Black] = clamp(black)
}

// EvalBar is white's share of the evaluation bar in percent.
func (s *Session) EvalBar() float64 {
	return EvalBar(s.board.Material())
}

// EvalBar maps a material balance to a bar percentage in [15, 85].
func EvalBar(material int) float64 {
	pct := 50 + float64(material)*10
	switch {
	case pct < 15:
		return 15
	case pct > 85:
		return 85
	}
	return pct
}

// Replay rebuilds a session by playing moves from the initial position.
func Replay(moves []chess.Move, opts Options) (*Session, error) {
	s := New(opts)
	for i, m := range moves {
		if _, err := s.ApplyMove(m.From, m.To); err != nil {
			return nil, fmt.Errorf("replay ply %d (%s): %w", i+1, m, err)
		}
	}
	return s, nil
}

// ReplayUCI is Replay for coordinate strings.
func ReplayUCI(moves []string, opts Options) (*Session, error) {
	parsed := make([]chess.Move, 0, len(moves))
	for _, text := range moves {
		m, err := chess.ParseMove(text)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, m)
	}
	return Replay(parsed, opts)
}
