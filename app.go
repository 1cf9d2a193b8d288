package main

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/subtrackr/subtrackr-cli/api"
	"github.com/subtrackr/subtrackr-cli/session"
	"github.com/subtrackr/subtrackr-cli/tui"
)

// app is everything a command needs.
type app struct {
	cfg      Config
	client   *api.Client
	d        tui.Displayer
	logger   *zap.Logger
	registry *prometheus.Registry
	closers  []func() error
}

// newHTTPClients builds the retrying client for API calls and a second one
// for refresh-token exchanges. Transport retries stay off unless
// configured, and never apply to the exchange: a resent refresh would
// spend a token the first send already rotated.
func newHTTPClients(cfg Config) (apiClient, refreshClient *retry.Client, err error) {
	baseHTTPClient := &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			DisableKeepAlives:   false,
		},
	}

	apiClient, err = retry.NewBackgroundClient(
		retry.WithHTTPClient(baseHTTPClient),
		retry.WithMaxRetries(cfg.TransportRetries),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create retry client: %w", err)
	}
	refreshClient, err = retry.NewBackgroundClient(
		retry.WithHTTPClient(baseHTTPClient),
		retry.WithMaxRetries(0),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create refresh client: %w", err)
	}
	return apiClient, refreshClient, nil
}

// openStore opens the configured credential backend. The returned closer
// releases its connections.
func openStore(cfg Config, logger *zap.Logger) (session.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Store {
	case storeMemory:
		return session.NewMemoryStore(), noop, nil
	case storeRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return session.NewRedisStore(rdb, cfg.RedisPrefix, cfg.Profile, logger), rdb.Close, nil
	case storeSQLite:
		s, err := session.OpenSQLiteStore(cfg.SQLiteDSN, cfg.Profile, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return session.NewFileStore(cfg.TokenFile, cfg.Profile, logger), noop, nil
	}
}

func newApp(cfg Config, d tui.Displayer, logger *zap.Logger) (*app, error) {
	httpClient, refreshClient, err := newHTTPClients(cfg)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store, err)
	}

	registry := prometheus.NewRegistry()
	sessions := session.NewManager(
		store,
		httpClient,
		api.RefreshURL(cfg.ServerURL),
		cfg.AllowNonRefreshable,
		session.WithObserver(d),
		session.WithLogger(logger.Named("session")),
		session.WithMetrics(session.NewMetrics(registry)),
		session.WithRefreshTimeout(cfg.RefreshTimeout),
		session.WithRefreshClient(refreshClient),
	)

	return &app{
		cfg:      cfg,
		client:   api.New(cfg.ServerURL, sessions, httpClient, api.WithLogger(logger.Named("api"))),
		d:        d,
		logger:   logger,
		registry: registry,
		closers:  []func() error{closeStore},
	}, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
}

// writeMetrics dumps the session counters in the Prometheus text format.
func (a *app) writeMetrics(w io.Writer) error {
	families, err := a.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
