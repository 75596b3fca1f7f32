package battle

import (
	"go.uber.org/zap"

	"github.com/park285/battle-chess/internal/chess"
	"github.com/park285/battle-chess/internal/game"
)

type EventKind string

const (
	EventStarted     EventKind = "started"
	EventPaused      EventKind = "paused"
	EventReset       EventKind = "reset"
	EventThinking    EventKind = "thinking"
	EventMoved       EventKind = "moved"
	EventUndone      EventKind = "undone"
	EventFinished    EventKind = "finished"
	EventTick        EventKind = "tick"
	EventFlipped     EventKind = "flipped"
	EventControllers EventKind = "controllers"

	// EventSnapshot is never emitted by a runner. Feeds send it first so a
	// new subscriber starts from the current view.
	EventSnapshot EventKind = "snapshot"
)

// View is everything a client needs to draw the battle.
type View struct {
	game.Snapshot
	ID       string     `json:"id"`
	// Game numbers the games played on this battle. Reset and a restart
	// after the end begin a new one.
	Game     int        `json:"game"`
	State    State      `json:"state"`
	White    Controller `json:"white"`
	Black    Controller `json:"black"`
	Thinking bool       `json:"thinking"`
	Flipped  bool       `json:"flipped"`
}

// MoveInfo describes the ply an event refers to.
type MoveInfo struct {
	Ply      int    `json:"ply"`
	Color    string `json:"color"`
	Move     string `json:"move"`
	Notation string `json:"notation"`
	Captured string `json:"captured,omitempty"`
}

func NewMoveInfo(rec game.Record) MoveInfo {
	info := MoveInfo{
		Ply:      rec.Ply,
		Color:    rec.Color.String(),
		Move:     rec.Move.String(),
		Notation: rec.Notation,
	}
	if !rec.Captured.IsEmpty() {
		info.Captured = rec.Captured.String()
	}
	return info
}

type Event struct {
	Seq  uint64    `json:"seq"`
	Kind EventKind `json:"kind"`
	Move *MoveInfo `json:"move,omitempty"`
	View View      `json:"view"`
}

// Subscribe returns a channel of events and a function that ends the
// subscription. Events are dropped for a subscriber whose buffer is full.
func (r *Runner) Subscribe() (<-chan Event, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan Event, r.cfg.EventBuffer)
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.subs[id]; ok {
			close(c)
			delete(r.subs, id)
		}
	}
}

// Notify returns a channel that receives a signal after every change and a
// function that ends the notification. Signals coalesce into one pending
// value, so a slow reader never misses the latest View. The channel is
// closed when the runner closes.
func (r *Runner) Notify() (<-chan struct{}, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan struct{}, 1)
	if r.closed {
		close(ch)
		return ch, func() {}
	}
	id := r.nextSub
	r.nextSub++
	r.notifiers[id] = ch
	return ch, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if c, ok := r.notifiers[id]; ok {
			close(c)
			delete(r.notifiers, id)
		}
	}
}

func (r *Runner) viewLocked() View {
	return View{
		Snapshot: r.session.Snapshot(),
		ID:       r.cfg.ID,
		Game:     r.game,
		State:    r.state,
		White:    r.controllers[chess.White],
		Black:    r.controllers[chess.Black],
		Thinking: r.thinking,
		Flipped:  r.flipped,
	}
}

func (r *Runner) emitLocked(kind EventKind, rec *game.Record) {
	r.seq++
	for _, ch := range r.notifiers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	if len(r.subs) == 0 {
		return
	}
	ev := Event{Seq: r.seq, Kind: kind, View: r.viewLocked()}
	if rec != nil {
		info := NewMoveInfo(*rec)
		ev.Move = &info
	}
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			r.logger.Debug("battle_event_dropped", zap.String("kind", string(kind)))
		}
	}
}
