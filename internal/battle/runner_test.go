package battle

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/park285/battle-chess/internal/chess"
	"github.com/park285/battle-chess/internal/game"
)

type fakeTask struct {
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*fakeTask
}

type fakeTimer struct {
	s    *fakeScheduler
	task *fakeTask
}

func (t fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	active := !t.task.stopped && !t.task.fired
	t.task.stopped = true
	return active
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &fakeTask{delay: d, f: f}
	s.tasks = append(s.tasks, task)
	return fakeTimer{s: s, task: task}
}

// fire runs the oldest task that has not fired, stopped or not. Running a
// stopped task mimics a timer whose callback was already on its way.
func (s *fakeScheduler) fire(t *testing.T, includeStopped bool) bool {
	t.Helper()
	s.mu.Lock()
	var next *fakeTask
	for _, task := range s.tasks {
		if task.fired || (task.stopped && !includeStopped) {
			continue
		}
		next = task
		break
	}
	if next != nil {
		next.fired = true
	}
	s.mu.Unlock()
	if next == nil {
		return false
	}
	next.f()
	return true
}

func (s *fakeScheduler) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, task := range s.tasks {
		if !task.fired && !task.stopped {
			n++
		}
	}
	return n
}

func newTestRunner(t *testing.T, cfg Config) (*Runner, *fakeScheduler) {
	t.Helper()
	sched := &fakeScheduler{}
	cfg.AfterFunc = sched.AfterFunc
	cfg.Tick = -1
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(3))
	}
	cfg.Logger = zaptest.NewLogger(t)
	r := New(cfg)
	t.Cleanup(r.Close)
	return r, sched
}

func sq(t *testing.T, s string) chess.Square {
	t.Helper()
	out, err := chess.ParseSquare(s)
	if err != nil {
		t.Fatalf("ParseSquare(%q): %v", s, err)
	}
	return out
}

func TestEngineBattleAdvancesOnePlyPerDelay(t *testing.T) {
	r, sched := newTestRunner(t, Config{})
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for ply := 1; ply <= 30; ply++ {
		if !r.View().Thinking {
			if r.View().State == Over {
				return
			}
			t.Fatalf("ply %d: engine not thinking", ply)
		}
		if n := sched.active(); n != 1 {
			t.Fatalf("ply %d: %d pending tasks, want 1", ply, n)
		}
		if !sched.fire(t, false) {
			t.Fatalf("ply %d: nothing to fire", ply)
		}
		if got := len(r.History()); got != ply {
			t.Fatalf("after firing %d delays history has %d plies", ply, got)
		}
	}
}

func TestEngineDelayWithinBounds(t *testing.T) {
	r, sched := newTestRunner(t, Config{})
	for i := 0; i < 20; i++ {
		if err := r.Reset(); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		if err := r.Start(); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	sched.mu.Lock()
	defer sched.mu.Unlock()
	if len(sched.tasks) != 20 {
		t.Fatalf("scheduled %d tasks, want 20", len(sched.tasks))
	}
	for _, task := range sched.tasks {
		if task.delay < DefaultEngineDelay || task.delay >= DefaultEngineDelay+DefaultEngineJitter {
			t.Errorf("delay %s outside [800ms, 1.5s)", task.delay)
		}
	}
}

func TestPauseDiscardsPendingMove(t *testing.T) {
	r, sched := newTestRunner(t, Config{})
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if sched.active() != 0 {
		t.Fatalf("pending task survived pause")
	}
	// the stale callback still runs; it must not move a piece
	if !sched.fire(t, true) {
		t.Fatalf("no task recorded")
	}
	v := r.View()
	if len(v.Moves) != 0 || v.State != Paused || v.Thinking {
		t.Fatalf("stale engine move applied: %+v", v)
	}

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !sched.fire(t, false) {
		t.Fatalf("resume did not schedule a move")
	}
	if got := len(r.History()); got != 1 {
		t.Errorf("history after resume = %d plies, want 1", got)
	}
}

func TestResetDiscardsPendingMove(t *testing.T) {
	r, sched := newTestRunner(t, Config{})
	r.Flip()
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sched.fire(t, false)
	if err := r.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	sched.fire(t, true)
	v := r.View()
	if len(v.Moves) != 0 || v.State != Ready || v.Flipped {
		t.Errorf("after reset: moves=%v state=%s flipped=%v", v.Moves, v.State, v.Flipped)
	}
	if v.FEN != chess.InitialFEN {
		t.Errorf("FEN = %q", v.FEN)
	}
}

func TestHumanAgainstEngine(t *testing.T) {
	r, sched := newTestRunner(t, Config{White: Human, Black: Engine})
	if _, err := r.Move(sq(t, "e2"), sq(t, "e4")); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("move before start err = %v, want ErrNotRunning", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sched.active() != 0 {
		t.Fatalf("engine scheduled on a human turn")
	}

	before := r.View()
	if _, err := r.Move(sq(t, "e2"), sq(t, "e5")); !errors.Is(err, chess.ErrIllegalMove) {
		t.Fatalf("illegal move err = %v", err)
	}
	if after := r.View(); after.FEN != before.FEN {
		t.Fatalf("illegal move changed the board")
	}

	rec, err := r.Move(sq(t, "e2"), sq(t, "e4"))
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if rec.Notation != "e4" {
		t.Errorf("notation = %q", rec.Notation)
	}
	if !r.View().Thinking || sched.active() != 1 {
		t.Fatalf("black engine not scheduled")
	}
	if _, err := r.Move(sq(t, "d2"), sq(t, "d4")); !errors.Is(err, ErrNotHumanTurn) {
		t.Errorf("move during engine turn err = %v, want ErrNotHumanTurn", err)
	}
	if _, err := r.EngineMove(); !errors.Is(err, ErrEngineThinking) {
		t.Errorf("EngineMove while thinking err = %v", err)
	}

	sched.fire(t, false)
	v := r.View()
	if v.Turn != "white" || v.Thinking || len(v.Moves) != 2 {
		t.Errorf("after engine reply: %+v", v)
	}
}

func TestSetControllerHandsTurnToEngine(t *testing.T) {
	r, sched := newTestRunner(t, Config{White: Human, Black: Human})
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.SetController(chess.White, Engine); err != nil {
		t.Fatalf("SetController: %v", err)
	}
	if sched.active() != 1 {
		t.Fatalf("engine not scheduled after taking over")
	}
	if err := r.SetController(chess.White, Human); err != nil {
		t.Fatalf("SetController: %v", err)
	}
	if sched.active() != 0 || r.View().Thinking {
		t.Fatalf("pending engine move survived hand-back")
	}
	if err := r.SetController(chess.White, Controller("robot")); !errors.Is(err, ErrController) {
		t.Errorf("err = %v, want ErrController", err)
	}
}

func TestClockChargesOnlyWhileNotThinking(t *testing.T) {
	r, _ := newTestRunner(t, Config{White: Human, Black: Engine, Clock: time.Minute})
	r.advance(time.Second)
	if r.View().WhiteMillis != 60000 {
		t.Fatalf("clock ran before start")
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.advance(time.Second)
	if got := r.View().WhiteMillis; got != 59000 {
		t.Fatalf("white clock = %d, want 59000", got)
	}
	if _, err := r.Move(sq(t, "g1"), sq(t, "f3")); err != nil {
		t.Fatalf("Move: %v", err)
	}
	r.advance(time.Second)
	if got := r.View().BlackMillis; got != 60000 {
		t.Errorf("black charged while its engine was thinking: %d", got)
	}
}

func TestTimeoutFinishesBattle(t *testing.T) {
	r, sched := newTestRunner(t, Config{White: Human, Black: Engine, Clock: 2 * time.Second})
	events, cancel := r.Subscribe()
	defer cancel()
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.advance(time.Second)
	r.advance(time.Second)
	v := r.View()
	want := chess.Outcome{Status: chess.StatusBlackWins, Method: chess.MethodTimeout}
	if v.State != Over || v.Outcome != want {
		t.Fatalf("state=%s outcome=%+v", v.State, v.Outcome)
	}
	if sched.active() != 0 {
		t.Errorf("engine scheduled after timeout")
	}
	kinds := drain(events)
	if len(kinds) == 0 || kinds[len(kinds)-1] != EventFinished {
		t.Errorf("events = %v, want finished last", kinds)
	}
}

func TestFinishAndRestart(t *testing.T) {
	s, err := game.ReplayUCI([]string{"f2f3", "e7e5", "g2g4"}, game.Options{})
	if err != nil {
		t.Fatalf("ReplayUCI: %v", err)
	}
	sched := &fakeScheduler{}
	r := Restore(Config{White: Engine, Black: Human, Tick: -1, AfterFunc: sched.AfterFunc, Logger: zaptest.NewLogger(t)}, s, true)
	defer r.Close()
	if v := r.View(); v.State != Paused || !v.Flipped {
		t.Fatalf("restored view: state=%s flipped=%v", v.State, v.Flipped)
	}

	events, cancel := r.Subscribe()
	defer cancel()
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := r.Move(sq(t, "d8"), sq(t, "h4")); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if v := r.View(); v.State != Over || v.Outcome.Method != chess.MethodCheckmate {
		t.Fatalf("state=%s outcome=%+v", v.State, v.Outcome)
	}
	if _, err := r.Move(sq(t, "a7"), sq(t, "a6")); !errors.Is(err, game.ErrGameOver) {
		t.Errorf("move after mate err = %v", err)
	}
	got := drain(events)
	want := []EventKind{EventStarted, EventMoved, EventFinished}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}

	if err := r.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if v := r.View(); len(v.Moves) != 0 || v.State != Running || !v.Thinking {
		t.Errorf("restart after game over: %+v", v)
	}
}

func TestUndoPausesBattle(t *testing.T) {
	r, sched := newTestRunner(t, Config{White: Human, Black: Engine})
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := r.Move(sq(t, "e2"), sq(t, "e4")); err != nil {
		t.Fatalf("Move: %v", err)
	}
	rec, err := r.Undo()
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if rec.Notation != "e4" {
		t.Errorf("undid %q", rec.Notation)
	}
	v := r.View()
	if v.State != Ready || v.Thinking || sched.active() != 0 {
		t.Errorf("after undo: state=%s thinking=%v pending=%d", v.State, v.Thinking, sched.active())
	}
	if _, err := r.Undo(); !errors.Is(err, game.ErrNothingToUndo) {
		t.Errorf("second undo err = %v", err)
	}
}

func TestEngineMoveOnDemand(t *testing.T) {
	r, _ := newTestRunner(t, Config{White: Human, Black: Human})
	rec, err := r.EngineMove()
	if err != nil {
		t.Fatalf("EngineMove: %v", err)
	}
	allowed := map[string]bool{"d2d4": true, "e2e4": true, "c2c4": true}
	if !allowed[rec.Move.String()] {
		t.Errorf("EngineMove played %s", rec.Move)
	}
	if r.View().State != Ready {
		t.Errorf("EngineMove changed the battle state")
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	r, _ := newTestRunner(t, Config{})
	events, _ := r.Subscribe()
	r.Close()
	if _, ok := <-events; ok {
		t.Fatalf("subscription still open")
	}
	if err := r.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after close err = %v", err)
	}
	late, _ := r.Subscribe()
	if _, ok := <-late; ok {
		t.Errorf("late subscription should be closed")
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	sched := &fakeScheduler{}
	r := New(Config{White: Human, Black: Human, Tick: -1, EventBuffer: 1, AfterFunc: sched.AfterFunc})
	defer r.Close()
	events, cancel := r.Subscribe()
	defer cancel()
	for i := 0; i < 5; i++ {
		r.Flip()
	}
	if got := drain(events); len(got) != 1 {
		t.Errorf("buffered %d events, want 1", len(got))
	}
}

func drain(ch <-chan Event) []EventKind {
	var kinds []EventKind
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return kinds
			}
			kinds = append(kinds, ev.Kind)
		default:
			return kinds
		}
	}
}

func TestNotifyCoalescesChanges(t *testing.T) {
	r, _ := newTestRunner(t, Config{White: Human, Black: Human})
	changes, stop := r.Notify()
	defer stop()

	for i := 0; i < 3*defaultEventBuffer; i++ {
		r.Flip()
	}
	select {
	case <-changes:
	default:
		t.Fatalf("no change signal after flips")
	}
	select {
	case <-changes:
		t.Fatalf("signals did not coalesce")
	default:
	}

	r.Flip()
	select {
	case <-changes:
	default:
		t.Fatalf("no signal for a change after draining")
	}
}

func TestGameNumberAdvancesOnNewGame(t *testing.T) {
	r, _ := newTestRunner(t, Config{White: Human, Black: Human})
	if g := r.View().Game; g != 1 {
		t.Fatalf("initial game = %d", g)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for _, mv := range [][2]string{{"f2", "f3"}, {"e7", "e5"}, {"g2", "g4"}, {"d8", "h4"}} {
		if _, err := r.Move(sq(t, mv[0]), sq(t, mv[1])); err != nil {
			t.Fatalf("Move %v: %v", mv, err)
		}
	}
	if _, err := r.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if g := r.View().Game; g != 1 {
		t.Errorf("game after undo = %d, want 1", g)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := r.Move(sq(t, "d8"), sq(t, "h4")); err != nil {
		t.Fatalf("Move d8h4: %v", err)
	}
	if v := r.View(); v.State != Over || v.Game != 1 {
		t.Fatalf("after replayed mate: state %s game %d", v.State, v.Game)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start after mate: %v", err)
	}
	if g := r.View().Game; g != 2 {
		t.Errorf("game after restart = %d, want 2", g)
	}
	if err := r.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if g := r.View().Game; g != 3 {
		t.Errorf("game after reset = %d, want 3", g)
	}
}

func TestCloseEndsNotify(t *testing.T) {
	r, _ := newTestRunner(t, Config{})
	changes, _ := r.Notify()
	r.Close()
	for range changes {
	}
	late, _ := r.Notify()
	if _, ok := <-late; ok {
		t.Errorf("notify after close delivered a signal")
	}
}
