package session

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultRefreshTimeout bounds one refresh-token exchange.
const DefaultRefreshTimeout = 10 * time.Second

// Doer sends a single HTTP request. *retry.Client from
// github.com/appleboy/go-httpretry satisfies it.
type Doer interface {
	DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error)
}

type options struct {
	observer       Observer
	metrics        *Metrics
	logger         *zap.Logger
	refreshTimeout time.Duration
	refreshClient  Doer
}

// Option configures an Executor or a Coordinator.
type Option func(*options)

func WithObserver(o Observer) Option {
	return func(opts *options) {
		if o != nil {
			opts.observer = o
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(opts *options) { opts.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(opts *options) {
		if l != nil {
			opts.logger = l
		}
	}
}

// WithRefreshTimeout bounds each refresh exchange. Zero keeps the default.
func WithRefreshTimeout(d time.Duration) Option {
	return func(opts *options) {
		if d > 0 {
			opts.refreshTimeout = d
		}
	}
}

// WithRefreshClient sends refresh-token exchanges through d instead of the
// client given to NewCoordinator. A rotated refresh token is spent by the
// first send, so d must not retry.
func WithRefreshClient(d Doer) Option {
	return func(opts *options) { opts.refreshClient = d }
}

func buildOptions(opts []Option) options {
	o := options{
		observer:       NopObserver{},
		logger:         zap.NewNop(),
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
