package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	corebattle "github.com/park285/battle-chess/internal/battle"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// FeedMessage is one frame of the event feed.
type FeedMessage struct {
	corebattle.Event
	Status string `json:"status"`
}

// FeedOptions configures the websocket feed.
type FeedOptions struct {
	// OriginPatterns lists extra origins allowed to connect.
	OriginPatterns []string
	PingInterval   time.Duration
}

// Feed streams battle events as JSON frames: GET /ws?game={id}.
func (s *Server) Feed(opts FeedOptions) http.Handler {
	if opts.PingInterval <= 0 {
		opts.PingInterval = wsPingInterval
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.URL.Query().Get("game"))
		if id == "" {
			http.Error(w, "game is required", http.StatusBadRequest)
			return
		}
		// Subscribe before reading the snapshot so no event falls between them.
		events, unsubscribe, err := s.svc.Subscribe(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		defer unsubscribe()
		view, err := s.svc.State(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			CompressionMode: websocket.CompressionNoContextTakeover,
			OriginPatterns:  opts.OriginPatterns,
		})
		if err != nil {
			s.logger.Warn("ws_accept_failed", zap.String("battle_id", id), zap.Error(err))
			return
		}
		defer conn.CloseNow()

		s.logger.Debug("ws_feed_open", zap.String("battle_id", id))
		err = s.pump(r.Context(), conn, view, events, opts.PingInterval)
		switch {
		case err == nil:
			_ = conn.Close(websocket.StatusGoingAway, "battle closed")
		case errors.Is(err, context.Canceled), websocket.CloseStatus(err) != -1:
			// client went away
		default:
			s.logger.Debug("ws_feed_closed", zap.String("battle_id", id), zap.Error(err))
		}
	})
}

// pump writes the snapshot and then every event until the client leaves or
// the event channel closes.
func (s *Server) pump(ctx context.Context, conn *websocket.Conn, view corebattle.View, events <-chan corebattle.Event, pingInterval time.Duration) error {
	ctx = conn.CloseRead(ctx)

	first := corebattle.Event{Kind: corebattle.EventSnapshot, View: view}
	if err := s.write(ctx, conn, first); err != nil {
		return err
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.write(ctx, conn, ev); err != nil {
				return err
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, ev corebattle.Event) error {
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, FeedMessage{Event: ev, Status: s.svc.StatusLine(ev.View)})
}
