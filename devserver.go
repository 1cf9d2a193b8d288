package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/subtrackr/subtrackr-cli/internal/fakeapi"
)

// cmdDevServer serves the in-memory backend for local use, seeded with one
// account. Point the CLI at it with -server-url http://<addr>/api.
func cmdDevServer(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("dev-server", os.Stderr)
	addr := fs.String("addr", "localhost:8000", "listen address")
	username := fs.String("username", "demo", "seeded account name")
	email := fs.String("email", "demo@example.com", "seeded account email")
	password := fs.String("password", "Demo!pass1", "seeded account password")
	accessTTL := fs.Duration("access-ttl", fakeapi.DefaultAccessTTL, "access token lifetime")
	rotate := fs.Bool("rotate", true, "rotate refresh tokens on every refresh")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	backend := fakeapi.New(
		fakeapi.WithAccessTTL(*accessTTL),
		fakeapi.WithRotation(*rotate),
		fakeapi.WithLogger(a.logger.Named("fakeapi")),
		fakeapi.WithMetrics(registry),
	)
	if err := backend.AddUser(*username, *email, *password); err != nil {
		return fmt.Errorf("failed to seed user: %w", err)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           devRouter(backend, registry),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	fmt.Fprintf(os.Stderr, "Dev backend on http://%s/api (user %s), Ctrl+C to stop\n", *addr, *username)
	a.logger.Info("dev server started", zap.String("addr", *addr), zap.Duration("access_ttl", *accessTTL))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// devRouter serves backend under /api and the registry, plus Go runtime
// and process collectors, under /metrics.
func devRouter(backend http.Handler, registry *prometheus.Registry) http.Handler {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Mount("/", backend)
	return router
}
