// Package battle drives a game between human and engine controllers.
//
// A Runner is the only mutator of its session. Engine moves are scheduled
// after a thinking delay; every scheduled move carries the generation it was
// scheduled under and is dropped if the generation moved on (pause, reset,
// undo or game end) before it fired.
package battle

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/battle-chess/internal/chess"
	"github.com/park285/battle-chess/internal/game"
)

var (
	ErrNotRunning     = errors.New("battle is not running")
	ErrNotHumanTurn   = errors.New("side to move is not human-controlled")
	ErrEngineThinking = errors.New("engine is thinking")
	ErrClosed         = errors.New("battle runner closed")
	ErrController     = errors.New("unknown controller")
)

const (
	DefaultEngineDelay  = 800 * time.Millisecond
	DefaultEngineJitter = 700 * time.Millisecond
	DefaultTick         = time.Second
	defaultEventBuffer  = 32
)

type Controller string

const (
	Human  Controller = "human"
	Engine Controller = "engine"
)

func ParseController(s string) (Controller, error) {
	switch Controller(s) {
	case Human, Engine:
		return Controller(s), nil
	case "":
		return Engine, nil
	}
	return "", ErrController
}

type State string

const (
	Ready   State = "ready"
	Running State = "running"
	Paused  State = "paused"
	Over    State = "over"
)

// Timer is the part of *time.Timer the runner needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type Config struct {
	ID           string
	White        Controller
	Black        Controller
	Clock        time.Duration
	EngineDelay  time.Duration
	EngineJitter time.Duration
	// Tick is the clock resolution. Negative disables the clock goroutine.
	Tick        time.Duration
	EventBuffer int
	Rand        *rand.Rand
	AfterFunc   AfterFunc
	Logger      *zap.Logger
}

func (c *Config) applyDefaults() {
	if c.White == "" {
		c.White = Engine
	}
	if c.Black == "" {
		c.Black = Engine
	}
	if c.EngineDelay <= 0 {
		c.EngineDelay = DefaultEngineDelay
	}
	if c.EngineJitter < 0 {
		c.EngineJitter = 0
	}
	if c.Tick == 0 {
		c.Tick = DefaultTick
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.AfterFunc == nil {
		c.AfterFunc = realAfterFunc
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

type Runner struct {
	mu          sync.Mutex
	cfg         Config
	logger      *zap.Logger
	session     *game.Session
	selector    *chess.Selector
	state       State
	controllers [2]Controller
	flipped     bool
	thinking    bool
	gen         uint64
	pending     Timer
	tickStop    chan struct{}
	subs        map[int]chan Event
	notifiers   map[int]chan struct{}
	nextSub     int
	// game counts the games played on this runner, starting at 1.
	game        int
	seq         uint64
	closed      bool
}

// New creates a runner in the Ready state.
func New(cfg Config) *Runner {
	cfg.applyDefaults()
	return &Runner{
		cfg:         cfg,
		logger:      cfg.Logger.With(zap.String("battle_id", cfg.ID)),
		session:     game.New(game.Options{Clock: cfg.Clock}),
		selector:    chess.NewSelector(cfg.Rand),
		state:       Ready,
		controllers: [2]Controller{chess.White: cfg.White, chess.Black: cfg.Black},
		subs:        make(map[int]chan Event),
		notifiers:   make(map[int]chan struct{}),
		game:        1,
	}
}

// Restore creates a runner around an existing session. A finished session
// comes back Over; anything else comes back Paused so that a restart does
// not resume play on its own.
func Restore(cfg Config, s *game.Session, flipped bool) *Runner {
	r := New(cfg)
	r.session = s
	r.flipped = flipped
	switch {
	case s.Outcome().Over():
		r.state = Over
	case s.Plies() > 0:
		r.state = Paused
	}
	return r
}

func (r *Runner) ID() string { return r.cfg.ID }

func (r *Runner) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

func (r *Runner) History() []game.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.History()
}

func (r *Runner) Board() chess.Board {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Board()
}

// LegalMoves lists the destinations of the piece on sq.
func (r *Runner) LegalMoves(sq chess.Square) ([]chess.Square, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.LegalMoves(sq)
}

// Start begins or resumes play. Starting a finished battle resets it first.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.state == Running {
		return nil
	}
	if r.state == Over {
		r.session.Reset()
		r.game++
	}
	r.state = Running
	r.startTickerLocked()
	r.logger.Info("battle_started", zap.Int("ply", r.session.Plies()))
	r.emitLocked(EventStarted, nil)
	r.scheduleEngineLocked()
	return nil
}

// Pause stops the clock and discards any pending engine move.
func (r *Runner) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.state != Running {
		return ErrNotRunning
	}
	r.cancelPendingLocked()
	r.stopTickerLocked()
	r.state = Paused
	r.logger.Info("battle_paused", zap.Int("ply", r.session.Plies()))
	r.emitLocked(EventPaused, nil)
	return nil
}

// Reset returns to the initial position in the Ready state.
func (r *Runner) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.cancelPendingLocked()
	r.stopTickerLocked()
	r.session.Reset()
	r.game++
	r.state = Ready
	r.flipped = false
	r.logger.Info("battle_reset")
	r.emitLocked(EventReset, nil)
	return nil
}

// Flip toggles the board orientation and returns the new value.
func (r *Runner) Flip() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flipped = !r.flipped
	r.emitLocked(EventFlipped, nil)
	return r.flipped
}

// SetController changes who plays color. Switching the side to move to the
// engine while running schedules its move; switching it away cancels one.
func (r *Runner) SetController(color chess.Color, c Controller) error {
	if c != Human && c != Engine {
		return ErrController
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.controllers[color] == c {
		return nil
	}
	r.controllers[color] = c
	if color == r.session.Turn() && r.thinking && c == Human {
		r.cancelPendingLocked()
	}
	r.emitLocked(EventControllers, nil)
	r.scheduleEngineLocked()
	return nil
}

// Move plays a human move for the side to move.
func (r *Runner) Move(from, to chess.Square) (game.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return game.Record{}, ErrClosed
	}
	if r.session.Outcome().Over() {
		return game.Record{}, game.ErrGameOver
	}
	if r.state != Running {
		return game.Record{}, ErrNotRunning
	}
	if r.controllers[r.session.Turn()] != Human {
		return game.Record{}, ErrNotHumanTurn
	}
	rec, err := r.session.ApplyMove(from, to)
	if err != nil {
		return game.Record{}, err
	}
	r.afterMoveLocked(rec)
	return rec, nil
}

// EngineMove selects and plays a heuristic move for the side to move right
// away, whoever controls it. It is refused while a scheduled engine move is
// pending.
func (r *Runner) EngineMove() (game.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return game.Record{}, ErrClosed
	}
	if r.thinking {
		return game.Record{}, ErrEngineThinking
	}
	m, err := r.session.SelectEngineMove(r.selector)
	if err != nil {
		return game.Record{}, err
	}
	rec, err := r.session.ApplyMove(m.From, m.To)
	if err != nil {
		return game.Record{}, err
	}
	r.afterMoveLocked(rec)
	return rec, nil
}

// Undo takes back one ply and leaves the battle paused.
func (r *Runner) Undo() (game.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return game.Record{}, ErrClosed
	}
	rec, err := r.session.Undo()
	if err != nil {
		return game.Record{}, err
	}
	r.cancelPendingLocked()
	r.stopTickerLocked()
	if r.state == Running || r.state == Over {
		r.state = Paused
	}
	if r.session.Plies() == 0 && r.state == Paused {
		r.state = Ready
	}
	r.emitLocked(EventUndone, &rec)
	return rec, nil
}

// Close cancels pending work and closes every subscriber channel.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.cancelPendingLocked()
	r.stopTickerLocked()
	r.closed = true
	for id, ch := range r.subs {
		close(ch)
		delete(r.subs, id)
	}
	for id, ch := range r.notifiers {
		close(ch)
		delete(r.notifiers, id)
	}
}

func (r *Runner) afterMoveLocked(rec game.Record) {
	r.logger.Debug("battle_move",
		zap.Int("ply", rec.Ply),
		zap.String("color", rec.Color.String()),
		zap.String("move", rec.Move.String()),
		zap.String("san", rec.Notation),
	)
	r.emitLocked(EventMoved, &rec)
	if rec.Outcome.Over() {
		r.finishLocked()
		return
	}
	r.scheduleEngineLocked()
}

func (r *Runner) finishLocked() {
	r.cancelPendingLocked()
	r.stopTickerLocked()
	r.state = Over
	out := r.session.Outcome()
	r.logger.Info("battle_finished",
		zap.String("status", string(out.Status)),
		zap.String("method", string(out.Method)),
		zap.Int("plies", r.session.Plies()),
	)
	r.emitLocked(EventFinished, nil)
}

func (r *Runner) scheduleEngineLocked() {
	if r.closed || r.state != Running || r.thinking || r.session.Outcome().Over() {
		return
	}
	color := r.session.Turn()
	if r.controllers[color] != Engine {
		return
	}
	delay := r.cfg.EngineDelay
	if r.cfg.EngineJitter > 0 {
		delay += time.Duration(r.cfg.Rand.Int63n(int64(r.cfg.EngineJitter)))
	}
	r.thinking = true
	gen := r.gen
	r.pending = r.cfg.AfterFunc(delay, func() { r.engineTurn(gen) })
	r.emitLocked(EventThinking, nil)
}

func (r *Runner) engineTurn(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || gen != r.gen {
		return
	}
	r.pending = nil
	r.thinking = false
	m, err := r.session.SelectEngineMove(r.selector)
	if err != nil {
		r.logger.Warn("engine_select_failed", zap.Error(err))
		return
	}
	rec, err := r.session.ApplyMove(m.From, m.To)
	if err != nil {
		r.logger.Error("engine_move_rejected", zap.String("move", m.String()), zap.Error(err))
		return
	}
	r.afterMoveLocked(rec)
}

func (r *Runner) cancelPendingLocked() {
	r.gen++
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
	r.thinking = false
}

func (r *Runner) startTickerLocked() {
	if r.cfg.Tick < 0 || r.tickStop != nil {
		return
	}
	stop := make(chan struct{})
	r.tickStop = stop
	go r.runClock(stop, r.cfg.Tick)
}

func (r *Runner) stopTickerLocked() {
	if r.tickStop != nil {
		close(r.tickStop)
		r.tickStop = nil
	}
}

func (r *Runner) runClock(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.advance(interval)
		}
	}
}

// advance charges d to the side to move unless an engine is thinking.
func (r *Runner) advance(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.state != Running || r.thinking {
		return
	}
	if r.session.Tick(d) {
		r.finishLocked()
		return
	}
	r.emitLocked(EventTick, nil)
}
