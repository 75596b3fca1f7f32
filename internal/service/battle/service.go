// Package battle hosts many battles at once, keeps their sessions in the
// store and archives every finished game.
package battle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	corebattle "github.com/park285/battle-chess/internal/battle"
	"github.com/park285/battle-chess/internal/chess"
	"github.com/park285/battle-chess/internal/domain"
	"github.com/park285/battle-chess/internal/game"
	"github.com/park285/battle-chess/internal/msgcat"
	"github.com/park285/battle-chess/internal/render"
	"github.com/park285/battle-chess/internal/store"
)

var (
	ErrSessionNotFound = errors.New("battle session not found")
	ErrGameNotFound    = errors.New("battle game not found")
	ErrServiceClosed   = errors.New("battle service closed")
	ErrInvalidColor    = errors.New("invalid color")
)

const (
	persistTimeout     = 3 * time.Second
	maxHistoryLimit    = 50
	serviceEventBuffer = 256
)

type Config struct {
	SessionTTL   time.Duration
	Clock        time.Duration
	EngineDelay  time.Duration
	EngineJitter time.Duration
	// Tick is passed to every runner. Negative disables the clocks.
	Tick  time.Duration
	White corebattle.Controller
	Black corebattle.Controller
	// Seed makes engine choices reproducible. Zero seeds from the time.
	Seed         int64
	HistoryLimit int
	AfterFunc    corebattle.AfterFunc
}

// CreateOptions overrides the configured controllers for one battle.
type CreateOptions struct {
	White corebattle.Controller
	Black corebattle.Controller
}

// MoveResult is the ply just played or taken back and the view after it.
type MoveResult struct {
	Move corebattle.MoveInfo `json:"move"`
	View corebattle.View     `json:"view"`
}

// BoardOptions selects a square to highlight with its legal targets.
type BoardOptions struct {
	Selected string
}

type Service struct {
	store    store.Store
	repo     Repository
	renderer *render.Renderer
	catalog  *msgcat.Catalog
	cfg      Config
	logger   *zap.Logger

	mu      sync.Mutex
	battles map[string]*entry
	seeds   *rand.Rand
	closed  bool
	wg      sync.WaitGroup
}

// entry is one hosted battle. Every game played on it gets its own gameUUID.
// The fields below createdAt are only touched by the watch goroutine.
type entry struct {
	runner      *corebattle.Runner
	createdAt   time.Time
	game        int
	gameUUID    string
	gameStarted time.Time
	started     bool
	archived    bool
}

func NewService(st store.Store, repo Repository, renderer *render.Renderer, catalog *msgcat.Catalog, cfg Config, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("battle repository is required")
	}
	if renderer == nil {
		renderer = render.New()
	}
	if catalog == nil {
		return nil, fmt.Errorf("message catalog is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = store.DefaultTTL
	}
	if cfg.Clock <= 0 {
		cfg.Clock = game.DefaultClock
	}
	if cfg.HistoryLimit <= 0 || cfg.HistoryLimit > maxHistoryLimit {
		cfg.HistoryLimit = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Service{
		store:    st,
		repo:     repo,
		renderer: renderer,
		catalog:  catalog,
		cfg:      cfg,
		logger:   logger,
		battles:  make(map[string]*entry),
		seeds:    rand.New(rand.NewSource(seed)),
	}, nil
}

// Create starts hosting a new battle in the Ready state.
func (s *Service) Create(ctx context.Context, opts CreateOptions) (corebattle.View, error) {
	white, black := s.cfg.White, s.cfg.Black
	if opts.White != "" {
		white = opts.White
	}
	if opts.Black != "" {
		black = opts.Black
	}
	for _, c := range []corebattle.Controller{white, black} {
		if _, err := corebattle.ParseController(string(c)); err != nil {
			return corebattle.View{}, err
		}
	}

	id := uuid.NewString()
	now := time.Now()
	r := corebattle.New(s.runnerConfig(id, white, black))
	e := &entry{runner: r, createdAt: now, game: 1, gameUUID: uuid.NewString(), gameStarted: now}
	if _, err := s.register(id, e); err != nil {
		r.Close()
		return corebattle.View{}, err
	}
	view := r.View()
	if err := s.store.Save(ctx, s.record(e, view)); err != nil {
		s.logger.Warn("battle_persist_failed", zap.String("battle_id", id), zap.Error(err))
	}
	s.logger.Info("battle_created",
		zap.String("battle_id", id),
		zap.String("white", string(white)),
		zap.String("black", string(black)),
	)
	return view, nil
}

// Restore rebuilds a battle from the store. A battle already hosted is
// returned as is.
func (s *Service) Restore(ctx context.Context, id string) (corebattle.View, error) {
	e, err := s.lookup(ctx, id)
	if err != nil {
		return corebattle.View{}, err
	}
	return e.runner.View(), nil
}

// RestoreActive rebuilds every unfinished battle in the store and reports
// how many came back.
func (s *Service) RestoreActive(ctx context.Context) (int, error) {
	ids, err := s.store.ActiveIDs(ctx)
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, id := range ids {
		if _, err := s.lookup(ctx, id); err != nil {
			s.logger.Warn("battle_restore_failed", zap.String("battle_id", id), zap.Error(err))
			continue
		}
		restored++
	}
	return restored, nil
}

func (s *Service) State(ctx context.Context, id string) (corebattle.View, error) {
	e, err := s.lookup(ctx, id)
	if err != nil {
		return corebattle.View{}, err
	}
	return e.runner.View(), nil
}

// LegalMoves lists the destinations of the piece on square.
func (s *Service) LegalMoves(ctx context.Context, id, square string) ([]string, error) {
	e, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	sq, err := chess.ParseSquare(square)
	if err != nil {
		return nil, err
	}
	targets, err := e.runner.LegalMoves(sq)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.String()
	}
	return out, nil
}

func (s *Service) Move(ctx context.Context, id, from, to string) (MoveResult, error) {
	e, err := s.lookup(ctx, id)
	if err != nil {
		return MoveResult{}, err
	}
	fromSq, err := chess.ParseSquare(from)
	if err != nil {
		return MoveResult{}, err
	}
	toSq, err := chess.ParseSquare(to)
	if err != nil {
		return MoveResult{}, err
	}
	rec, err := e.runner.Move(fromSq, toSq)
	if err != nil {
		return MoveResult{}, err
	}
	return MoveResult{Move: corebattle.NewMoveInfo(rec), View: e.runner.View()}, nil
}

// EngineMove plays one heuristic move for the side to move now.
func (s *Service) EngineMove(ctx context.Context, id string) (MoveResult, error) {
	e, err := s.lookup(ctx, id)
	if err != nil {
		return MoveResult{}, err
	}
	rec, err := e.runner.EngineMove()
	if err != nil {
		return MoveResult{}, err
	}
	return MoveResult{Move: corebattle.NewMoveInfo(rec), View: e.runner.View()}, nil
}

func (s *Service) Start(ctx context.Context, id string) (corebattle.View, error) {
	return s.control(ctx, id, (*corebattle.Runner).Start)
}

func (s *Service) Pause(ctx context.Context, id string) (corebattle.View, error) {
	return s.control(ctx, id, (*corebattle.Runner).Pause)
}

func (s *Service) Reset(ctx context.Context, id string) (corebattle.View, error) {
	return s.control(ctx, id, (*corebattle.Runner).Reset)
}

func (s *Service) Flip(ctx context.Context, id string) (corebattle.View, error) {
	return s.control(ctx, id, func(r *corebattle.Runner) error {
		r.Flip()
		return nil
	})
}

func (s *Service) Undo(ctx context.Context, id string) (MoveResult, error) {
	e, err := s.lookup(ctx, id)
	if err != nil {
		return MoveResult{}, err
	}
	rec, err := e.runner.Undo()
	if err != nil {
		return MoveResult{}, err
	}
	return MoveResult{Move: corebattle.NewMoveInfo(rec), View: e.runner.View()}, nil
}

// SetController hands color to a human or the engine.
func (s *Service) SetController(ctx context.Context, id, color, controller string) (corebattle.View, error) {
	c, err := chess.ParseColor(color)
	if err != nil {
		return corebattle.View{}, fmt.Errorf("%w: %q", ErrInvalidColor, color)
	}
	ctrl, err := corebattle.ParseController(strings.ToLower(strings.TrimSpace(controller)))
	if err != nil {
		return corebattle.View{}, err
	}
	return s.control(ctx, id, func(r *corebattle.Runner) error {
		return r.SetController(c, ctrl)
	})
}

func (s *Service) control(ctx context.Context, id string, fn func(*corebattle.Runner) error) (corebattle.View, error) {
	e, err := s.lookup(ctx, id)
	if err != nil {
		return corebattle.View{}, err
	}
	if err := fn(e.runner); err != nil {
		return corebattle.View{}, err
	}
	return e.runner.View(), nil
}

// History returns the move list rows and the movetext of the current game.
func (s *Service) History(ctx context.Context, id string) ([]game.Row, string, error) {
	e, err := s.lookup(ctx, id)
	if err != nil {
		return nil, "", err
	}
	view := e.runner.View()
	return view.Rows, game.FormatMoveText(view.Rows, view.Outcome), nil
}

// Subscribe streams the events of a battle. The returned function ends the
// subscription.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan corebattle.Event, func(), error) {
	e, err := s.lookup(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := e.runner.Subscribe()
	return ch, cancel, nil
}

// BoardPNG renders the current position with the HUD.
func (s *Service) BoardPNG(ctx context.Context, id string, opts BoardOptions) ([]byte, error) {
	e, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	view := e.runner.View()
	board := e.runner.Board()

	ropts := render.Options{
		Flipped: view.Flipped,
		Status:  s.StatusLine(view),
		EvalBar: view.EvalBar,
	}
	if view.LastMove != "" {
		if m, err := chess.ParseMove(view.LastMove); err == nil {
			ropts.LastMove = &m
		}
	}
	if view.InCheck {
		turn, _ := chess.ParseColor(view.Turn)
		if king, ok := board.FindKing(turn); ok {
			ropts.Check = &king
		}
	}
	if sel := strings.TrimSpace(opts.Selected); sel != "" {
		sq, err := chess.ParseSquare(sel)
		if err != nil {
			return nil, err
		}
		targets, err := e.runner.LegalMoves(sq)
		if err != nil {
			return nil, err
		}
		ropts.Selected = &sq
		ropts.Targets = targets
	}
	ropts.Header = s.renderText("hud.header", map[string]string{
		"White": controllerLabel(view.White),
		"Black": controllerLabel(view.Black),
	})
	ropts.Footer = s.renderText("hud.footer", map[string]string{
		"WhiteClock": game.FormatClock(time.Duration(view.WhiteMillis) * time.Millisecond),
		"BlackClock": game.FormatClock(time.Duration(view.BlackMillis) * time.Millisecond),
		"Eval":       fmt.Sprintf("%.0f", view.EvalBar),
	})

	data, err := s.renderer.RenderPNG(ctx, board, ropts)
	if err != nil {
		return nil, fmt.Errorf("render board: %w", err)
	}
	return data, nil
}

// StatusLine is the one-line status shown above the board.
func (s *Service) StatusLine(view corebattle.View) string {
	if view.Outcome.Over() {
		winner := ""
		if c, ok := view.Outcome.Status.Winner(); ok {
			winner = c.Title()
		}
		switch view.Outcome.Method {
		case chess.MethodCheckmate:
			return s.renderText("status.checkmate", map[string]string{"Winner": winner})
		case chess.MethodKingCaptured:
			return s.renderText("status.king_captured", map[string]string{"Winner": winner})
		case chess.MethodTimeout:
			return s.renderText("status.timeout", map[string]string{"Winner": winner})
		default:
			return s.renderText("status.stalemate", nil)
		}
	}
	side := sideTitle(view.Turn)
	switch {
	case view.Thinking:
		return s.renderText("status.thinking", map[string]string{"Side": side})
	case view.State == corebattle.Ready:
		return s.renderText("status.ready", nil)
	case view.State == corebattle.Paused:
		return s.renderText("status.paused", nil)
	case view.InCheck:
		return s.renderText("status.check", map[string]string{"Side": side})
	default:
		return s.renderText("status.in_progress", nil)
	}
}

func (s *Service) renderText(key string, data map[string]string) string {
	text, err := s.catalog.Render(key, data)
	if err != nil {
		s.logger.Warn("message_render_failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	return text
}

func sideTitle(turn string) string {
	c, err := chess.ParseColor(turn)
	if err != nil {
		return turn
	}
	return c.Title()
}

func controllerLabel(c corebattle.Controller) string {
	if c == corebattle.Human {
		return "Human"
	}
	return "Engine"
}

// Games lists recently archived games.
func (s *Service) Games(ctx context.Context, limit int) ([]*domain.BattleGame, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	return s.repo.RecentGames(ctx, limit)
}

func (s *Service) Game(ctx context.Context, id int64) (*domain.BattleGame, error) {
	g, err := s.repo.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGameNotFound
	}
	return g, nil
}

// Close stops every battle and waits for pending persistence.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	battles := s.battles
	s.battles = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range battles {
		e.runner.Close()
	}
	s.wg.Wait()
}

func (s *Service) runnerConfig(id string, white, black corebattle.Controller) corebattle.Config {
	s.mu.Lock()
	r := rand.New(rand.NewSource(s.seeds.Int63()))
	s.mu.Unlock()
	return corebattle.Config{
		ID:           id,
		White:        white,
		Black:        black,
		Clock:        s.cfg.Clock,
		EngineDelay:  s.cfg.EngineDelay,
		EngineJitter: s.cfg.EngineJitter,
		Tick:         s.cfg.Tick,
		EventBuffer:  serviceEventBuffer,
		Rand:         r,
		AfterFunc:    s.cfg.AfterFunc,
		Logger:       s.logger.With(zap.String("battle_id", id)),
	}
}

// register hosts e and starts persisting its changes. When another request
// hosted id first, that entry wins and is returned instead.
func (s *Service) register(id string, e *entry) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServiceClosed
	}
	if existing, ok := s.battles[id]; ok {
		return existing, nil
	}
	s.battles[id] = e
	changes, _ := e.runner.Notify()
	s.wg.Add(1)
	go s.watch(id, e, changes)
	return e, nil
}

// lookup returns a hosted battle, restoring it from the store if needed.
func (s *Service) lookup(ctx context.Context, id string) (*entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrSessionNotFound
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServiceClosed
	}
	if e, ok := s.battles[id]; ok {
		s.mu.Unlock()
		return e, nil
	}
	s.mu.Unlock()

	rec, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrSessionNotFound
	}
	sess, err := rec.Session()
	if err != nil {
		return nil, err
	}
	white, err := corebattle.ParseController(rec.White)
	if err != nil {
		return nil, errors.Join(store.ErrInvalidRecord, err)
	}
	black, err := corebattle.ParseController(rec.Black)
	if err != nil {
		return nil, errors.Join(store.ErrInvalidRecord, err)
	}

	r := corebattle.Restore(s.runnerConfig(id, white, black), sess, rec.Flipped)
	e := &entry{
		runner:      r,
		createdAt:   rec.CreatedAt,
		game:        r.View().Game,
		gameUUID:    uuid.NewString(),
		gameStarted: rec.CreatedAt,
		started:     sess.Plies() > 0,
		// a finished record was archived before the restart
		archived: rec.Finished(),
	}

	hosted, err := s.register(id, e)
	if err != nil {
		r.Close()
		return nil, err
	}
	if hosted != e {
		r.Close()
		return hosted, nil
	}
	s.logger.Info("battle_restored", zap.String("battle_id", id), zap.Int("plies", sess.Plies()))
	return e, nil
}

// watch persists the latest view of one battle after every change until its
// runner closes. Change signals coalesce, so a slow store skips intermediate
// views but always sees the last one.
func (s *Service) watch(id string, e *entry, changes <-chan struct{}) {
	defer s.wg.Done()
	for range changes {
		view := e.runner.View()
		if view.Game != e.game {
			e.game = view.Game
			e.gameUUID = uuid.NewString()
			e.gameStarted = time.Now()
			e.archived = false
			e.started = false
		}
		if !e.started && view.State != corebattle.Ready {
			e.started = true
			if len(view.Moves) == 0 {
				e.gameStarted = time.Now()
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := s.store.Save(ctx, s.record(e, view)); err != nil {
			s.logger.Warn("battle_persist_failed", zap.String("battle_id", id), zap.Error(err))
		}
		if view.Outcome.Over() && !e.archived {
			e.archived = s.archive(ctx, id, e, view)
		}
		cancel()
	}
}

func (s *Service) record(e *entry, view corebattle.View) *store.SessionRecord {
	return &store.SessionRecord{
		ID:          view.ID,
		Moves:       view.Moves,
		ClockMillis: s.cfg.Clock.Milliseconds(),
		WhiteMillis: view.WhiteMillis,
		BlackMillis: view.BlackMillis,
		White:       string(view.White),
		Black:       string(view.Black),
		State:       string(view.State),
		Flipped:     view.Flipped,
		Outcome:     view.Outcome,
		CreatedAt:   e.createdAt,
		UpdatedAt:   time.Now(),
	}
}

// archive stores a finished game and reports whether it is now in the
// repository.
func (s *Service) archive(ctx context.Context, id string, e *entry, view corebattle.View) bool {
	now := time.Now()
	san := make([]string, 0, len(view.Moves))
	for _, row := range view.Rows {
		if row.White != "" {
			san = append(san, row.White)
		}
		if row.Black != "" {
			san = append(san, row.Black)
		}
	}
	g := &domain.BattleGame{
		SessionUUID:  e.gameUUID,
		White:        string(view.White),
		Black:        string(view.Black),
		Result:       game.ResultToken(view.Outcome),
		ResultMethod: string(view.Outcome.Method),
		MovesUCI:     append([]string(nil), view.Moves...),
		MovesSAN:     san,
		PGN:          game.FormatMoveText(view.Rows, view.Outcome),
		FinalFEN:     view.FEN,
		StartedAt:    e.gameStarted,
		EndedAt:      now,
		Duration:     now.Sub(e.gameStarted),
	}
	gameID, err := s.repo.InsertGame(ctx, g)
	if errors.Is(err, ErrDuplicateGame) {
		s.logger.Debug("battle_already_archived", zap.String("session_uuid", g.SessionUUID))
		return true
	}
	if err != nil {
		s.logger.Error("battle_archive_failed", zap.String("battle_id", id), zap.Error(err))
		return false
	}
	s.logger.Info("battle_archived",
		zap.String("battle_id", id),
		zap.Int64("game_id", gameID),
		zap.String("result", g.Result),
		zap.String("method", g.ResultMethod),
	)
	return true
}
