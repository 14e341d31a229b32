package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyvault/internal/crypto"
	"github.com/alanyoungcy/polyvault/internal/domain"
	"github.com/alanyoungcy/polyvault/internal/server"
	"github.com/alanyoungcy/polyvault/internal/server/handler"
	"github.com/alanyoungcy/polyvault/internal/server/ws"
	"github.com/alanyoungcy/polyvault/internal/service"
)

// actionBudget is how long one HTTP action may take: push and pull wait for
// two confirmations back to back, plus a margin for RPC calls.
func actionBudget(confirmTimeout time.Duration) time.Duration {
	return 2*confirmTimeout + time.Minute
}

// command is one parsed CLI invocation.
type command struct {
	name string
	args []string
}

// arg returns the i-th argument, or "" when an optional one was omitted.
func (c command) arg(i int) string {
	if i < len(c.args) {
		return c.args[i]
	}
	return ""
}

// usage lists every CLI subcommand with its arguments.
const usage = `usage: polyvault [flags] <command> [args]

commands:
  resolve <market-url> <parent-token>   fetch or create the vault
  bind <vault> [parent-token]           enter an existing vault
  push <vault> <amount> [parent-token]  split parent into YES+NO
  pull <vault> <amount> [parent-token]  merge YES+NO into parent
  settle <vault> <amount> [parent-token]
                                        redeem the winning outcome
  check <vault> [parent-token]          report resolution state

The optional parent-token is used for vaults that predate parent().
  encrypt-key <out-path>                seal the wallet key to a file
  serve                                 run the HTTP + WebSocket server`

// arity gives the accepted argument counts per command as [min, max].
var arity = map[string][2]int{
	"resolve":     {2, 2},
	"bind":        {1, 2},
	"push":        {2, 3},
	"pull":        {2, 3},
	"settle":      {2, 3},
	"check":       {1, 2},
	"encrypt-key": {1, 1},
	"serve":       {0, 0},
}

// parseCommand validates args against the known subcommands.
func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, fmt.Errorf("app: missing command\n%s", usage)
	}
	name := strings.ToLower(args[0])
	bounds, ok := arity[name]
	if !ok {
		return command{}, fmt.Errorf("app: unknown command %q\n%s", args[0], usage)
	}
	rest := args[1:]
	if len(rest) < bounds[0] || len(rest) > bounds[1] {
		return command{}, fmt.Errorf("app: %s: wrong number of arguments\n%s", name, usage)
	}
	return command{name: name, args: rest}, nil
}

// CLIMode runs a single vault action and prints its status to the app's
// output. A failed action is returned as an error so the process exits
// non-zero.
func (a *App) CLIMode(ctx context.Context, deps *Dependencies, cmd command) error {
	deps.Service.AddStatusSink(&statusPrinter{w: a.out})

	var res service.ActionResult
	switch cmd.name {
	case "resolve":
		res = deps.Service.Resolve(ctx, cmd.args[0], cmd.args[1])
	case "bind":
		res = deps.Service.Bind(ctx, cmd.args[0], cmd.arg(1))
	case "push":
		res = deps.Service.Push(ctx, cmd.args[0], cmd.args[1], cmd.arg(2))
	case "pull":
		res = deps.Service.Pull(ctx, cmd.args[0], cmd.args[1], cmd.arg(2))
	case "settle":
		res = deps.Service.Settle(ctx, cmd.args[0], cmd.args[1], cmd.arg(2))
	case "check":
		res = deps.Service.Check(ctx, cmd.args[0], cmd.arg(1))
	default:
		return fmt.Errorf("app: %s is not a vault action", cmd.name)
	}

	if !res.OK {
		if res.Err != nil {
			return fmt.Errorf("app: %s: %w", cmd.name, res.Err)
		}
		return fmt.Errorf("app: %s failed (%s)", cmd.name, res.ErrorKind)
	}
	return nil
}

// ServeMode exposes the vault session over HTTP and WebSocket until ctx is
// cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	if !a.cfg.Server.Enabled {
		return errors.New("app: serve mode requires server.enabled")
	}
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.Metrics, a.logger)
	deps.Service.AddStatusSink(hub)
	deps.Service.AddVaultView(hub)
	deps.Service.AddStatusSink(&statusLogger{logger: a.logger})

	// The write deadline and the shutdown grace both cover a full action.
	budget := actionBudget(a.cfg.Chain.ConfirmTimeout.Duration)
	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		RateLimit:    a.cfg.Server.RateLimit,
		RateWindow:   a.cfg.Server.RateWindow.Duration,
		WriteTimeout: budget,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, a.logger),
		Vault:   handler.NewVaultHandler(deps.Service, a.logger),
		Metrics: deps.Metrics.Handler(),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), budget)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// EncryptKey seals the configured raw private key under the configured
// password and writes the result to outPath. The key and password normally
// arrive through POLYVAULT_WALLET_PRIVATE_KEY and
// POLYVAULT_WALLET_KEY_PASSWORD so they never touch a config file.
func (a *App) EncryptKey(outPath string) error {
	if a.cfg.Wallet.PrivateKey == "" {
		return errors.New("app: encrypt-key: wallet.private_key is not set")
	}
	key, err := crypto.ParseKey(a.cfg.Wallet.PrivateKey)
	if err != nil {
		return fmt.Errorf("app: encrypt-key: %w", err)
	}
	blob, err := crypto.EncryptKey(key, a.cfg.Wallet.KeyPassword, 0)
	if err != nil {
		return fmt.Errorf("app: encrypt-key: %w", err)
	}
	if err := os.WriteFile(outPath, blob, 0o600); err != nil {
		return fmt.Errorf("app: encrypt-key: write %s: %w", outPath, err)
	}

	addr := crypto.NewSigner(key).Address()
	a.logger.Info("encrypted key written",
		slog.String("path", outPath),
		slog.String("address", addr.Hex()),
	)
	fmt.Fprintf(a.out, "Encrypted key for %s written to %s\n", addr.Hex(), outPath)
	return nil
}

// statusPrinter renders status text on a terminal, one block per update.
type statusPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *statusPrinter) SetStatus(_ context.Context, field domain.StatusField, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%s] %s\n", field, text)
}

// statusLogger mirrors status updates into the structured log.
type statusLogger struct {
	logger *slog.Logger
}

func (l *statusLogger) SetStatus(ctx context.Context, field domain.StatusField, text string) {
	l.logger.InfoContext(ctx, "status",
		slog.String("field", string(field)),
		slog.String("text", text),
	)
}
