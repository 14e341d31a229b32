// Package app provides the top-level application lifecycle for polyvault. It
// wires the chain client, wallet, vault core and optional Redis, PostgreSQL,
// S3 and notification backends, then runs either a single CLI action or the
// long-running HTTP server.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alanyoungcy/polyvault/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		out:    os.Stdout,
	}
}

// Run is the main entry point. args are the positional command-line
// arguments; "serve" as the first argument overrides the configured mode.
// encrypt-key runs without dialing anything.
func (a *App) Run(ctx context.Context, args []string) error {
	mode := strings.ToLower(a.cfg.Mode)

	var cmd command
	if len(args) > 0 || mode == "cli" {
		var err error
		if cmd, err = parseCommand(args); err != nil {
			return err
		}
		switch cmd.name {
		case "encrypt-key":
			return a.EncryptKey(cmd.args[0])
		case "serve":
			mode = "serve"
		default:
			mode = "cli"
		}
	}

	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch mode {
	case "cli":
		return a.CLIMode(ctx, deps, cmd)
	case "serve":
		return a.ServeMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
