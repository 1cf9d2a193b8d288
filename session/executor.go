package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// HeaderRequestID carries one id per logical request; the resend after a
// refresh reuses it.
const HeaderRequestID = "X-Request-ID"

// Request describes an outbound call waiting for a bearer token. Body is
// held as bytes so the request can be sent a second time.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// NewRequest returns a Request with an empty header set.
func NewRequest(method, url string, body []byte) *Request {
	return &Request{Method: method, URL: url, Header: make(http.Header), Body: body}
}

// Refresher obtains a new access token. *Coordinator implements it.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Executor sends authenticated requests, refreshing the access token and
// resending once when the backend answers 401. It never writes the store.
type Executor struct {
	state     *State
	client    Doer
	refresher Refresher
	opts      options
}

func NewExecutor(state *State, client Doer, refresher Refresher, opts ...Option) *Executor {
	return &Executor{
		state:     state,
		client:    client,
		refresher: refresher,
		opts:      buildOptions(opts),
	}
}

// Execute sends r with the current access token.
//
// Without a stored access token it returns ErrUnauthenticated before any
// I/O. A 401 triggers one refresh and one resend; whatever the resend
// returns, including a second 401, is handed back unchanged. If the refresh
// fails the error matches ErrSessionExpired and nothing is resent. Network
// failures come back as *TransportError.
//
// The caller owns the returned response body.
func (e *Executor) Execute(ctx context.Context, r *Request) (*http.Response, error) {
	token, ok := e.state.AccessToken()
	if !ok {
		e.opts.metrics.request(outcomeUnauthenticated)
		return nil, ErrUnauthenticated
	}

	requestID := uuid.NewString()
	log := e.opts.logger.With(
		zap.String("request_id", requestID),
		zap.String("method", r.Method),
		zap.String("url", r.URL),
	)

	resp, err := e.send(ctx, r, token, requestID)
	if err != nil {
		e.opts.metrics.request(outcomeTransportError)
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		e.opts.metrics.request(outcomeOK)
		return resp, nil
	}

	log.Debug("access token rejected")
	e.opts.observer.AccessTokenRejected()
	drain(resp)

	token, err = e.tokenForRetry(ctx, token)
	if err != nil {
		var transportErr *TransportError
		var refreshErr *RefreshError
		if !errors.As(err, &refreshErr) && !errors.Is(err, ErrNoRefreshToken) &&
			errors.As(err, &transportErr) {
			// caller gave up while waiting on the refresh; the session may well be fine
			e.opts.metrics.request(outcomeTransportError)
			return nil, err
		}
		e.opts.metrics.request(outcomeSessionExpired)
		log.Info("session expired", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	e.opts.observer.Retrying()
	resp, err = e.send(ctx, r, token, requestID)
	if err != nil {
		e.opts.metrics.request(outcomeTransportError)
		return nil, err
	}

	e.opts.metrics.request(outcomeRetried)
	log.Debug("request resent after refresh", zap.Int("status", resp.StatusCode))
	return resp, nil
}

// tokenForRetry picks the token for the resend. If another request already
// replaced the rejected token, that one is used and no refresh is started.
// Should it be rejected as well, the 401 goes back to the caller like any
// resend's; the store is untouched, so the next request refreshes.
func (e *Executor) tokenForRetry(ctx context.Context, rejected string) (string, error) {
	if current, ok := e.state.AccessToken(); ok && current != rejected {
		return current, nil
	}
	return e.refresher.Refresh(ctx)
}

func (e *Executor) send(
	ctx context.Context,
	r *Request,
	token, requestID string,
) (*http.Response, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
	req.Header.Set(HeaderRequestID, requestID)

	resp, err := e.client.DoWithContext(ctx, req)
	if err != nil {
		return nil, &TransportError{Op: r.Method + " " + r.URL, Err: err}
	}
	return resp, nil
}

// drain discards the rest of a body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxRefreshBody))
	resp.Body.Close()
}
