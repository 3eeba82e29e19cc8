package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/robochess/server/internal/game"
	"github.com/robochess/server/internal/store"
	"github.com/robochess/server/pkg/gamedto"
)

// Client is a fasthttp JSON client for the game server API, used by the board
// agent and other external movers.
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

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) RegisterController(ctx context.Context, boardID, version string) (*store.Controller, error) {
	req := gamedto.ControllerRegisterRequest{BoardID: boardID, BoardVersion: version}
	var rec store.Controller
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/controllerregister", req, &rec, false); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) Heartbeat(ctx context.Context, boardID string) (*store.Controller, error) {
	req := gamedto.ControllerHeartbeatRequest{BoardID: boardID}
	var rec store.Controller
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/controllerheartbeat", req, &rec, true); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) GetGame(ctx context.Context, gameID string) (*game.Document, error) {
	var doc game.Document
	path := "/game?game_id=" + url.QueryEscape(gameID)
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &doc, true); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) MakeMove(ctx context.Context, gameID, userID, move string) (*game.Document, error) {
	req := gamedto.MoveRequest{GameID: gameID, UserID: userID, Move: move}
	var resp struct {
		Game *game.Document `json:"game"`
	}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/makemove", req, &resp, false); err != nil {
		return nil, err
	}
	return resp.Game, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	url := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(url)
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
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			err := apiError(status, resp.Body())
			if attempt == attempts || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
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

func apiError(status int, body []byte) error {
	var e gamedto.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return fmt.Errorf("api error: status=%d code=%s: %s", status, e.Code, e.Error)
	}
	return fmt.Errorf("api error: status=%d body=%s", status, truncate(string(body), 512))
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
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
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
