package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Store backends selectable with -store / SUBTRACKR_STORE.
const (
	storeFile   = "file"
	storeMemory = "memory"
	storeRedis  = "redis"
	storeSQLite = "sqlite"
)

// Config is the CLI configuration. Priority: flag > env > default.
type Config struct {
	ServerURL           string        `env:"SUBTRACKR_SERVER_URL"            envDefault:"http://localhost:8000/api"`
	Profile             string        `env:"SUBTRACKR_PROFILE"               envDefault:"default"`
	Store               string        `env:"SUBTRACKR_STORE"                 envDefault:"file"`
	TokenFile           string        `env:"SUBTRACKR_TOKEN_FILE"            envDefault:".subtrackr-session.json"`
	RedisAddr           string        `env:"SUBTRACKR_REDIS_ADDR"            envDefault:"localhost:6379"`
	RedisPrefix         string        `env:"SUBTRACKR_REDIS_PREFIX"          envDefault:"subtrackr"`
	SQLiteDSN           string        `env:"SUBTRACKR_SQLITE_DSN"            envDefault:"subtrackr-session.db"`
	AllowNonRefreshable bool          `env:"SUBTRACKR_ALLOW_NON_REFRESHABLE" envDefault:"false"`
	RequestTimeout      time.Duration `env:"SUBTRACKR_REQUEST_TIMEOUT"       envDefault:"10s"`
	RefreshTimeout      time.Duration `env:"SUBTRACKR_REFRESH_TIMEOUT"       envDefault:"10s"`
	TransportRetries    int           `env:"SUBTRACKR_TRANSPORT_RETRIES"     envDefault:"0"`
	LogLevel            string        `env:"LOG_LEVEL"`
	LogDev              bool          `env:"LOG_DEV"                         envDefault:"false"`
	Metrics             bool          `env:"SUBTRACKR_METRICS"               envDefault:"false"`
}

// loadConfig decodes the environment, then lets global flags in args
// override it. It returns the remaining arguments (the command and its
// flags).
func loadConfig(args []string, stderr io.Writer) (Config, []string, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, nil, fmt.Errorf("parse config: %w", err)
	}

	// flag defaults are the env values, so an unset flag keeps them
	fs := flag.NewFlagSet("subtrackr", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(fs) }
	fs.StringVar(&cfg.ServerURL, "server-url", cfg.ServerURL, "API base URL (SUBTRACKR_SERVER_URL)")
	fs.StringVar(&cfg.Profile, "profile", cfg.Profile, "credential profile name (SUBTRACKR_PROFILE)")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "credential store: file, memory, redis or sqlite (SUBTRACKR_STORE)")
	fs.StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "session file for the file store (SUBTRACKR_TOKEN_FILE)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address for the redis store (SUBTRACKR_REDIS_ADDR)")
	fs.StringVar(&cfg.SQLiteDSN, "sqlite-dsn", cfg.SQLiteDSN, "database for the sqlite store (SUBTRACKR_SQLITE_DSN)")
	fs.BoolVar(&cfg.AllowNonRefreshable, "allow-non-refreshable", cfg.AllowNonRefreshable,
		"accept sessions without a refresh token (SUBTRACKR_ALLOW_NON_REFRESHABLE)")
	fs.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "per-request timeout (SUBTRACKR_REQUEST_TIMEOUT)")
	fs.BoolVar(&cfg.Metrics, "metrics", cfg.Metrics, "print session metrics after the command (SUBTRACKR_METRICS)")

	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return Config{}, nil, fmt.Errorf("%w: no command given", errUsage)
	}

	if err := validateServerURL(cfg.ServerURL); err != nil {
		return Config{}, nil, fmt.Errorf("invalid server URL: %w", err)
	}
	switch cfg.Store {
	case storeFile, storeMemory, storeRedis, storeSQLite:
	default:
		return Config{}, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
	if cfg.TransportRetries < 0 {
		return Config{}, nil, fmt.Errorf("transport retries must not be negative, got %d", cfg.TransportRetries)
	}
	return cfg, fs.Args(), nil
}

// validateServerURL validates that the server URL is properly formatted
func validateServerURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("server URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}

// warnPlaintext warns when tokens would cross the network unencrypted.
func warnPlaintext(w io.Writer, serverURL string) {
	if !strings.HasPrefix(strings.ToLower(serverURL), "http://") {
		return
	}
	fmt.Fprintln(w, "⚠️  WARNING: Using HTTP instead of HTTPS. Tokens will be transmitted in plaintext!")
	fmt.Fprintln(w, "⚠️  This is only safe for local development. Use HTTPS in production.")
	fmt.Fprintln(w)
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "Usage: subtrackr [flags] <command> [command flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-15s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fs.PrintDefaults()
}
