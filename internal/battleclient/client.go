// Package battleclient talks to a battle server: the JSON API over fasthttp
// and the event feed over a websocket.
package battleclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/battle-chess/internal/httpapi"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("battle api error: status=%d message=%s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithDial replaces the TCP dialer, e.g. with an in-memory listener.
func WithDial(dial func(addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create opens a battle. Empty controllers take the server defaults.
func (c *Client) Create(ctx context.Context, white, black string) (*httpapi.StateResponse, error) {
	var out httpapi.StateResponse
	body := map[string]string{"white": white, "black": black}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/games", body, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) State(ctx context.Context, id string) (*httpapi.StateResponse, error) {
	var out httpapi.StateResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, gamePath(id, ""), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Control posts one of start, pause, reset or flip.
func (c *Client) Control(ctx context.Context, id, action string) (*httpapi.StateResponse, error) {
	switch action {
	case "start", "pause", "reset", "flip":
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
	var out httpapi.StateResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(id, action), nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Move(ctx context.Context, id, from, to string) (*httpapi.MoveResponse, error) {
	var out httpapi.MoveResponse
	body := map[string]string{"from": from, "to": to}
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(id, "move"), body, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) EngineMove(ctx context.Context, id string) (*httpapi.MoveResponse, error) {
	var out httpapi.MoveResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(id, "engine-move"), nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Undo(ctx context.Context, id string) (*httpapi.MoveResponse, error) {
	var out httpapi.MoveResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, gamePath(id, "undo"), nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LegalMoves(ctx context.Context, id, square string) ([]string, error) {
	var out httpapi.LegalMovesResponse
	path := gamePath(id, "moves") + "?square=" + url.QueryEscape(square)
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return out.Targets, nil
}

func (c *Client) History(ctx context.Context, id string) (*httpapi.HistoryResponse, error) {
	var out httpapi.HistoryResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, gamePath(id, "history"), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// BoardPNG downloads the rendered board.
func (c *Client) BoardPNG(ctx context.Context, id, selected string) ([]byte, error) {
	path := gamePath(id, "board.png")
	if selected != "" {
		path += "?selected=" + url.QueryEscape(selected)
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + path)
	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if status := resp.StatusCode(); status != fasthttp.StatusOK {
		return nil, decodeAPIError(status, resp.Body())
	}
	return append([]byte(nil), resp.Body()...), nil
}

func gamePath(id, action string) string {
	p := "/api/games/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			apiErr := decodeAPIError(status, resp.Body())
			if attempt == attempts || !shouldRetryStatus(status) {
				return apiErr
			}
			lastErr = apiErr
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func decodeAPIError(status int, body []byte) *APIError {
	var payload struct {
		Error string `json:"error"`
	}
	msg := truncate(string(body), 512)
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{Status: status, Message: msg}
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
