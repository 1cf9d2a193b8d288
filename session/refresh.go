package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const refreshFlightKey = "refresh"

// maxRefreshBody caps how much of a refresh response is read.
const maxRefreshBody = 1 << 20

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// refreshResponse accepts the short field names the SubTrackr backend uses
// and the OAuth 2.0 names some deployments put in front of it.
type refreshResponse struct {
	Access       string `json:"access"`
	Refresh      string `json:"refresh"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (r refreshResponse) access() string {
	if r.Access != "" {
		return r.Access
	}
	return r.AccessToken
}

func (r refreshResponse) refresh() string {
	if r.Refresh != "" {
		return r.Refresh
	}
	return r.RefreshToken
}

// Coordinator exchanges the stored refresh token for a new access token.
// At most one exchange is in flight at a time; concurrent callers share
// its result.
type Coordinator struct {
	store  Store
	client Doer
	url    string
	group  singleflight.Group
	opts   options
}

// NewCoordinator returns a Coordinator posting to refreshURL through
// client, or through the WithRefreshClient one when given.
func NewCoordinator(store Store, client Doer, refreshURL string, opts ...Option) *Coordinator {
	o := buildOptions(opts)
	if o.refreshClient != nil {
		client = o.refreshClient
	}
	return &Coordinator{
		store:  store,
		client: client,
		url:    refreshURL,
		opts:   o,
	}
}

// Refresh returns a fresh access token, joining an exchange already in
// flight if there is one.
//
// Failures clear the store and are returned as ErrNoRefreshToken or a
// *RefreshError. If ctx ends while waiting, Refresh returns a
// *TransportError and the shared exchange carries on for the other callers.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	// Detached so one impatient caller cannot fail everyone who joined.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshFlightKey, func() (any, error) {
		return c.exchange(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.opts.metrics.shared()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", &TransportError{Op: "refresh", Err: ctx.Err()}
	}
}

func (c *Coordinator) exchange(ctx context.Context) (string, error) {
	c.opts.observer.Refreshing()

	cred, _ := c.store.Get()
	if cred.RefreshToken == "" {
		return "", c.fail(refreshNoRefreshToken, ErrNoRefreshToken)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.refreshTimeout)
	defer cancel()

	payload, err := json.Marshal(refreshRequest{Refresh: cred.RefreshToken})
	if err != nil {
		return "", c.fail(refreshFailure, &RefreshError{Err: err})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", c.fail(refreshFailure, &RefreshError{
			Err: fmt.Errorf("failed to create request: %w", err),
		})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.DoWithContext(ctx, req)
	if err != nil {
		return "", c.fail(refreshFailure, &RefreshError{
			Err: &TransportError{Op: "refresh", Err: err},
		})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRefreshBody))
	if err != nil {
		return "", c.fail(refreshFailure, &RefreshError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("failed to read response: %w", err),
		})
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.fail(refreshFailure, &RefreshError{
			Status: resp.StatusCode,
			Body:   string(body),
		})
	}

	var tokenResp refreshResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", c.fail(refreshFailure, &RefreshError{
			Err: fmt.Errorf("failed to parse refresh response: %w", err),
		})
	}

	access := tokenResp.access()
	if access == "" {
		return "", c.fail(refreshFailure, &RefreshError{
			Err: errors.New("refresh response has no access token"),
		})
	}

	// Rotation mode: the backend sent a new refresh token, keep it.
	// Fixed mode: it did not, the stored one stays valid.
	if rotated := tokenResp.refresh(); rotated != "" {
		if err := c.store.SetRefresh(rotated); err != nil {
			c.opts.logger.Warn("failed to persist rotated refresh token", zap.Error(err))
		}
	}
	if err := c.store.SetAccess(access); err != nil {
		c.opts.logger.Warn("failed to persist refreshed access token", zap.Error(err))
	}

	c.opts.metrics.refresh(refreshSuccess)
	c.opts.observer.RefreshOK()
	c.opts.logger.Debug("access token refreshed",
		zap.Bool("rotated", tokenResp.refresh() != ""))
	return access, nil
}

// fail ends the session: the store is cleared before anyone learns the
// refresh failed.
func (c *Coordinator) fail(result string, err error) error {
	if clearErr := c.store.Clear(); clearErr != nil {
		c.opts.logger.Error("failed to clear credentials after refresh failure",
			zap.Error(clearErr))
	}

	c.opts.metrics.refresh(result)
	c.opts.logger.Warn("refresh failed, session ended", zap.Error(err))
	c.opts.observer.RefreshFailed(err)
	c.opts.observer.SessionExpired()
	return err
}
