// Package api is a typed client for the SubTrackr REST backend. Every
// authenticated call goes through a session.Manager, so token refresh and
// the single retry after a 401 happen below this package.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/subtrackr/subtrackr-cli/session"
)

// maxResponseBody caps how much of any response is read.
const maxResponseBody = 4 << 20

// Client talks to one SubTrackr backend.
type Client struct {
	baseURL   string
	sessions  *session.Manager
	http      session.Doer
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests of date-relative views.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New returns a client for the API rooted at baseURL, e.g.
// "http://localhost:8000/api". httpClient sends the unauthenticated calls
// (login, registration, password reset); sessions sends everything else.
func New(baseURL string, sessions *session.Manager, httpClient session.Doer, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		sessions:  sessions,
		http:      httpClient,
		validator: newValidator(),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RefreshURL is the token refresh endpoint for baseURL.
func RefreshURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/token/refresh"
}

// Sessions returns the session manager backing the client.
func (c *Client) Sessions() *session.Manager { return c.sessions }

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// do sends an authenticated JSON request and decodes the answer into out
// when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req := session.NewRequest(method, c.url(path), body)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.sessions.Execute(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &session.TransportError{Op: method + " " + path, Err: err}
	}

	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode))

	if resp.StatusCode == http.StatusUnauthorized {
		// the executor already refreshed and resent once
		return fmt.Errorf("%w: %s %s", session.ErrAuthFailure, method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(data)),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s %s response: %w", method, path, err)
	}
	return nil
}

// postPublic sends an unauthenticated JSON POST and returns status and body.
func (c *Client) postPublic(ctx context.Context, path string, in any) (*http.Response, []byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return nil, nil, &session.TransportError{Op: "POST " + path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, nil, &session.TransportError{Op: "POST " + path, Err: err}
	}
	return resp, body, nil
}

// listOf accepts both a bare JSON array and a paginated
// {"results": [...]} envelope.
func listOf[T any](data json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var page struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// Summary fetches every subscription and totals it as of now.
func (c *Client) Summary(ctx context.Context) (Summary, error) {
	subs, err := c.ListSubscriptions(ctx, "")
	if err != nil {
		return Summary{}, err
	}
	return Summarize(subs, c.now()), nil
}

// Renewals fetches every subscription and returns those charging within
// days from now.
func (c *Client) Renewals(ctx context.Context, days int) ([]Renewal, error) {
	subs, err := c.ListSubscriptions(ctx, "")
	if err != nil {
		return nil, err
	}
	return UpcomingRenewals(subs, c.now(), days), nil
}

// Trend projects spend for the next months calendar months.
func (c *Client) Trend(ctx context.Context, months int) ([]MonthSpend, error) {
	subs, err := c.ListSubscriptions(ctx, "")
	if err != nil {
		return nil, err
	}
	return MonthlyTrend(subs, c.now(), months), nil
}
