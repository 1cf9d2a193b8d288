package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/subtrackr/subtrackr-cli/session"
	"github.com/subtrackr/subtrackr-cli/tui"
)

func init() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()
}

// isTTY reports whether stderr is a character device (interactive terminal).
// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func main() {
	cfg, args, err := loadConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(cfg, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	exit := func(code int) {
		stop()
		_ = logger.Sync()
		os.Exit(code)
	}

	cmd, _ := findCommand(args[0])
	if !cmd.local {
		warnPlaintext(os.Stderr, cfg.ServerURL)
	}

	// long-running local commands log plainly instead of holding a TUI open
	if isTTY() && !cmd.local {
		// Run TUI program on stderr so stdout pipes are not corrupted
		m := tui.NewModel()
		// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
		// capability queries (?2026/?2027). Ctrl+C is handled by signal.NotifyContext.
		p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithInput(nil))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			}
		}()

		runErr := run(ctx, tui.NewProgramDisplayer(p), cfg, args, logger, os.Stdout)
		p.Quit() // let BubbleTea drain terminal query responses before exiting
		wg.Wait()
		exit(exitCode(runErr))
	}

	exit(exitCode(run(ctx, tui.NewPlainDisplayer(os.Stderr), cfg, args, logger, os.Stdout)))
}

// run executes one command. args[0] is the command name. Results and
// failures are reported through d; the error only decides the exit code.
func run(
	ctx context.Context,
	d tui.Displayer,
	cfg Config,
	args []string,
	logger *zap.Logger,
	stdout io.Writer,
) error {
	cmd, ok := findCommand(args[0])
	if !ok {
		err := fmt.Errorf("%w: unknown command %q", errUsage, args[0])
		d.Fatal(err)
		return err
	}

	d.Banner(cfg.ServerURL, cfg.Profile)

	var a *app
	if cmd.local {
		a = &app{cfg: cfg, d: d, logger: logger}
	} else {
		var err error
		if a, err = newApp(cfg, d, logger); err != nil {
			d.Fatal(err)
			return err
		}
		defer a.Close()
	}

	err := cmd.run(ctx, a, args[1:])

	if cfg.Metrics && a.registry != nil {
		if merr := a.writeMetrics(stdout); merr != nil {
			logger.Warn("metrics dump failed", zap.Error(merr))
		}
	}

	switch {
	case err == nil:
		d.Done()
	case errors.Is(err, flag.ErrHelp):
		d.Done()
		return nil
	case isLoginRequired(err):
		d.LoginRequired(err)
	default:
		d.Fatal(err)
	}
	return err
}

// isLoginRequired reports whether err should send the user back to login:
// no session, an expired one, or a 401 that survived the refresh.
func isLoginRequired(err error) bool {
	return session.IsTerminal(err) || errors.Is(err, session.ErrAuthFailure)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		return 1
	}
}
