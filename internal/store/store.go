// Package store keeps live battle sessions so they survive a restart.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/park285/battle-chess/internal/chess"
	"github.com/park285/battle-chess/internal/game"
)

const DefaultTTL = 24 * time.Hour

var ErrInvalidRecord = errors.New("invalid session record")

// SessionRecord is the persisted form of a battle. Only the move list is
// stored; the board is rebuilt by replaying it.
type SessionRecord struct {
	ID          string        `json:"id"`
	Moves       []string      `json:"moves"`
	ClockMillis int64         `json:"clock_ms"`
	WhiteMillis int64         `json:"white_ms"`
	BlackMillis int64         `json:"black_ms"`
	White       string        `json:"white"`
	Black       string        `json:"black"`
	State       string        `json:"state"`
	Flipped     bool          `json:"flipped"`
	Outcome     chess.Outcome `json:"outcome"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Finished reports whether the recorded game has ended.
func (r *SessionRecord) Finished() bool { return r.Outcome.Over() }

// Session replays the record into a game session with its clocks.
func (r *SessionRecord) Session() (*game.Session, error) {
	if r == nil {
		return nil, ErrInvalidRecord
	}
	s, err := game.ReplayUCI(r.Moves, game.Options{Clock: time.Duration(r.ClockMillis) * time.Millisecond})
	if err != nil {
		return nil, errors.Join(ErrInvalidRecord, err)
	}
	s.RestoreClock(
		time.Duration(r.WhiteMillis)*time.Millisecond,
		time.Duration(r.BlackMillis)*time.Millisecond,
	)
	if r.Outcome.Method == chess.MethodTimeout {
		// a flag that fell on the side to move is seen again with a zero charge
		s.Tick(0)
	}
	return s, nil
}

// Store is implemented by the redis store and the in-memory store.
type Store interface {
	Save(ctx context.Context, rec *SessionRecord) error
	Load(ctx context.Context, id string) (*SessionRecord, error)
	Delete(ctx context.Context, id string) error
	ActiveIDs(ctx context.Context) ([]string, error)
	Close() error
}
