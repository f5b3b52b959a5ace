package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jpillora/backoff"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/service"
)

// Client drives one tank through the REST API
type Client struct {
	baseURL  string
	matchID  string
	tankID   string
	client   *http.Client
	attempts int
	backoff  *backoff.Backoff
}

// NewClient creates a client for the server at baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		attempts: 5,
		backoff: &backoff.Backoff{
			Min:    200 * time.Millisecond,
			Max:    5 * time.Second,
			Factor: 2,
			Jitter: true,
		},
	}
}

// apiError is a non-2xx response. Server errors are retried.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d: %s", e.status, e.message)
}

// CreateMatch starts a new match with the named ruleset
func (c *Client) CreateMatch(ctx context.Context, ruleset string) (*service.MatchInfo, error) {
	var info service.MatchInfo
	body := map[string]string{"ruleset": ruleset}
	if err := c.do(ctx, http.MethodPost, "/api/matches", body, &info); err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	return &info, nil
}

// Join places the tank in matchID. Joining again returns the existing tank.
func (c *Client) Join(ctx context.Context, matchID string, req service.JoinRequest) (*service.JoinResult, error) {
	var result service.JoinResult
	path := fmt.Sprintf("/api/matches/%s/tanks", url.PathEscape(matchID))
	if err := c.do(ctx, http.MethodPost, path, req, &result); err != nil {
		return nil, fmt.Errorf("join match: %w", err)
	}

	c.matchID = matchID
	c.tankID = result.Tank.ID
	return &result, nil
}

// Board returns the full board of the joined match
func (c *Client) Board(ctx context.Context) (*service.BoardView, error) {
	var view service.BoardView
	path := fmt.Sprintf("/api/matches/%s/board", url.PathEscape(c.matchID))
	if err := c.do(ctx, http.MethodGet, path, nil, &view); err != nil {
		return nil, fmt.Errorf("get board: %w", err)
	}
	return &view, nil
}

// Act submits one action for the joined tank
func (c *Client) Act(ctx context.Context, req engine.ActionRequest) (*service.ActionResult, error) {
	var result service.ActionResult
	path := fmt.Sprintf("/api/matches/%s/tanks/%s/actions", url.PathEscape(c.matchID), url.PathEscape(c.tankID))
	if err := c.do(ctx, http.MethodPost, path, req, &result); err != nil {
		return nil, fmt.Errorf("act: %w", err)
	}
	return &result, nil
}

// do sends one request, retrying transport failures and 5xx responses
func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	b := *c.backoff
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.Duration()):
			}
		}

		lastErr = c.send(ctx, method, path, data, result)
		if lastErr == nil {
			return nil
		}
		if apiErr, ok := lastErr.(*apiError); ok && apiErr.status < 500 {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) send(ctx context.Context, method, path string, data []byte, result interface{}) error {
	var reqBody io.Reader
	if data != nil {
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp["error"]
		if msg == "" {
			msg = resp.Status
		}
		return &apiError{status: resp.StatusCode, message: msg}
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}
