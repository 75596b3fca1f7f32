// Package httpapi exposes the battle service over a fasthttp JSON API and a
// websocket event feed.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	corebattle "github.com/park285/battle-chess/internal/battle"
	"github.com/park285/battle-chess/internal/chess"
	"github.com/park285/battle-chess/internal/game"
	"github.com/park285/battle-chess/internal/service/battle"
)

const (
	requestTimeout = 10 * time.Second
	gamesPrefix    = "/api/games"
	archivePrefix  = "/api/archive"
)

type Server struct {
	svc    *battle.Service
	logger *zap.Logger
}

func New(svc *battle.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, logger: logger}
}

type createRequest struct {
	White string `json:"white"`
	Black string `json:"black"`
}

type moveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type controllerRequest struct {
	Color      string `json:"color"`
	Controller string `json:"controller"`
}

// StateResponse is a view plus its rendered status line.
type StateResponse struct {
	corebattle.View
	Status string `json:"status"`
}

type MoveResponse struct {
	Move corebattle.MoveInfo `json:"move"`
	View StateResponse       `json:"view"`
}

type LegalMovesResponse struct {
	Square  string   `json:"square"`
	Targets []string `json:"targets"`
}

type HistoryResponse struct {
	Rows     []game.Row `json:"rows"`
	MoveText string     `json:"movetext"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler routes every API request.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		path := string(ctx.Path())
		switch {
		case path == "/healthz":
			ctx.SetStatusCode(fasthttp.StatusOK)
			ctx.SetBodyString("ok")
		case path == gamesPrefix:
			s.handleCollection(ctx)
		case strings.HasPrefix(path, gamesPrefix+"/"):
			s.handleGame(ctx, strings.TrimPrefix(path, gamesPrefix+"/"))
		case path == archivePrefix || strings.HasPrefix(path, archivePrefix+"/"):
			s.handleArchive(ctx, strings.TrimPrefix(strings.TrimPrefix(path, archivePrefix), "/"))
		default:
			writeError(ctx, fasthttp.StatusNotFound, "not found")
		}
		s.logger.Debug("http_request",
			zap.ByteString("method", ctx.Method()),
			zap.String("path", path),
			zap.Int("status", ctx.Response.StatusCode()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *Server) handleCollection(ctx *fasthttp.RequestCtx) {
	if !requireMethod(ctx, fasthttp.MethodPost) {
		return
	}
	var req createRequest
	if len(ctx.PostBody()) > 0 {
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	opts := battle.CreateOptions{
		White: corebattle.Controller(strings.ToLower(strings.TrimSpace(req.White))),
		Black: corebattle.Controller(strings.ToLower(strings.TrimSpace(req.Black))),
	}
	c, cancel := requestContext()
	defer cancel()
	view, err := s.svc.Create(c, opts)
	if err != nil {
		s.writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, s.state(view))
}

// handleGame serves /api/games/{id} and /api/games/{id}/{action}.
func (s *Server) handleGame(ctx *fasthttp.RequestCtx, rest string) {
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(ctx, fasthttp.StatusNotFound, "not found")
		return
	}
	c, cancel := requestContext()
	defer cancel()

	if action == "" {
		if !requireMethod(ctx, fasthttp.MethodGet) {
			return
		}
		view, err := s.svc.State(c, id)
		s.respondView(ctx, view, err)
		return
	}

	switch action {
	case "moves":
		if !requireMethod(ctx, fasthttp.MethodGet) {
			return
		}
		square := string(ctx.QueryArgs().Peek("square"))
		targets, err := s.svc.LegalMoves(c, id, square)
		if err != nil {
			s.writeServiceError(ctx, err)
			return
		}
		if targets == nil {
			targets = []string{}
		}
		writeJSON(ctx, fasthttp.StatusOK, LegalMovesResponse{Square: square, Targets: targets})
	case "history":
		if !requireMethod(ctx, fasthttp.MethodGet) {
			return
		}
		rows, text, err := s.svc.History(c, id)
		if err != nil {
			s.writeServiceError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, HistoryResponse{Rows: rows, MoveText: text})
	case "board.png":
		if !requireMethod(ctx, fasthttp.MethodGet) {
			return
		}
		data, err := s.svc.BoardPNG(c, id, battle.BoardOptions{Selected: string(ctx.QueryArgs().Peek("selected"))})
		if err != nil {
			s.writeServiceError(ctx, err)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetContentType("image/png")
		ctx.Response.Header.Set(fasthttp.HeaderCacheControl, "no-store")
		ctx.SetBody(data)
	case "move":
		if !requireMethod(ctx, fasthttp.MethodPost) {
			return
		}
		var req moveRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		res, err := s.svc.Move(c, id, req.From, req.To)
		s.respondMove(ctx, res, err)
	case "engine-move":
		if !requireMethod(ctx, fasthttp.MethodPost) {
			return
		}
		res, err := s.svc.EngineMove(c, id)
		s.respondMove(ctx, res, err)
	case "undo":
		if !requireMethod(ctx, fasthttp.MethodPost) {
			return
		}
		res, err := s.svc.Undo(c, id)
		s.respondMove(ctx, res, err)
	case "controller":
		if !requireMethod(ctx, fasthttp.MethodPost) {
			return
		}
		var req controllerRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		view, err := s.svc.SetController(c, id, req.Color, req.Controller)
		s.respondView(ctx, view, err)
	case "start", "pause", "reset", "flip":
		if !requireMethod(ctx, fasthttp.MethodPost) {
			return
		}
		view, err := s.control(c, action, id)
		s.respondView(ctx, view, err)
	default:
		writeError(ctx, fasthttp.StatusNotFound, "not found")
	}
}

func (s *Server) control(ctx context.Context, action, id string) (corebattle.View, error) {
	switch action {
	case "start":
		return s.svc.Start(ctx, id)
	case "pause":
		return s.svc.Pause(ctx, id)
	case "reset":
		return s.svc.Reset(ctx, id)
	default:
		return s.svc.Flip(ctx, id)
	}
}

// handleArchive serves /api/archive?limit=n and /api/archive/{gameID}.
func (s *Server) handleArchive(ctx *fasthttp.RequestCtx, rest string) {
	if !requireMethod(ctx, fasthttp.MethodGet) {
		return
	}
	c, cancel := requestContext()
	defer cancel()

	if rest == "" {
		limit, _ := strconv.Atoi(string(ctx.QueryArgs().Peek("limit")))
		games, err := s.svc.Games(c, limit)
		if err != nil {
			s.writeServiceError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, games)
		return
	}
	gameID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid game id")
		return
	}
	g, err := s.svc.Game(c, gameID)
	if err != nil {
		s.writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, g)
}

func (s *Server) state(view corebattle.View) StateResponse {
	return StateResponse{View: view, Status: s.svc.StatusLine(view)}
}

func (s *Server) respondView(ctx *fasthttp.RequestCtx, view corebattle.View, err error) {
	if err != nil {
		s.writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, s.state(view))
}

func (s *Server) respondMove(ctx *fasthttp.RequestCtx, res battle.MoveResult, err error) {
	if err != nil {
		s.writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, MoveResponse{Move: res.Move, View: s.state(res.View)})
}

func (s *Server) writeServiceError(ctx *fasthttp.RequestCtx, err error) {
	status := statusFor(err)
	if status >= fasthttp.StatusInternalServerError {
		s.logger.Error("http_request_failed", zap.String("path", string(ctx.Path())), zap.Error(err))
	}
	writeError(ctx, status, err.Error())
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, battle.ErrSessionNotFound), errors.Is(err, battle.ErrGameNotFound):
		return fasthttp.StatusNotFound
	case errors.Is(err, chess.ErrInvalidSquare),
		errors.Is(err, corebattle.ErrController),
		errors.Is(err, battle.ErrInvalidColor):
		return fasthttp.StatusBadRequest
	case errors.Is(err, chess.ErrIllegalMove):
		return fasthttp.StatusUnprocessableEntity
	case errors.Is(err, game.ErrGameOver),
		errors.Is(err, game.ErrNothingToUndo),
		errors.Is(err, chess.ErrNoLegalMoves),
		errors.Is(err, corebattle.ErrNotRunning),
		errors.Is(err, corebattle.ErrNotHumanTurn),
		errors.Is(err, corebattle.ErrEngineThinking):
		return fasthttp.StatusConflict
	case errors.Is(err, battle.ErrServiceClosed), errors.Is(err, corebattle.ErrClosed):
		return fasthttp.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return fasthttp.StatusGatewayTimeout
	default:
		return fasthttp.StatusInternalServerError
	}
}

func requireMethod(ctx *fasthttp.RequestCtx, method string) bool {
	if string(ctx.Method()) == method {
		return true
	}
	ctx.Response.Header.Set(fasthttp.HeaderAllow, method)
	writeError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
	return false
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"encode response"}`)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, errorResponse{Error: msg})
}
