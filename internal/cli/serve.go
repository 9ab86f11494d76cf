package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/khill1269/servalsheets-sub001/internal/mcptools"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	SweepInterval time.Duration

	// Transport overrides stdio (for testing).
	Transport mcp.Transport
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve guarded spreadsheet tools over MCP (stdio)",
		Long: `Serve the guarded mutation tools to an MCP client over stdin/stdout.

Logs go to stderr. While serving, expired transaction ids are swept and
snapshot retention (snapshots.max_age, snapshots.max_per_document) is
applied every --sweep-interval.

Example:
  servalguard serve --config servalguard.yaml
  servalguard serve --sweep-interval 0   # no background maintenance`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.SweepInterval, "sweep-interval", 5*time.Minute, "transaction sweep and snapshot prune interval (0 disables)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	env := newEnv(opts.RootOptions, cmd)
	return withRuntime(env, func(rt *runtime) error {
		ctx, cancel := context.WithCancel(env.ctx)
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		go func() {
			select {
			case sig := <-sigChan:
				slog.Info("received signal, shutting down", "signal", sig)
				cancel()
			case <-ctx.Done():
			}
		}()

		if opts.SweepInterval > 0 {
			go rt.maintain(ctx, opts.SweepInterval)
		}

		transport := opts.Transport
		if transport == nil {
			transport = &mcp.StdioTransport{}
		}
		srv := newMCPServer(rt)
		slog.Info("serving MCP tools", "store", rt.cfg.Store.Backend)
		if err := srv.Run(ctx, transport); err != nil && !errors.Is(err, context.Canceled) {
			return WrapExitError(ExitFailure, "server error", err)
		}
		slog.Info("server stopped")
		return nil
	})
}

func newMCPServer(rt *runtime) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "servalguard", Version: Version}, nil)
	mcptools.New(rt.engine,
		mcptools.WithPolicy(rt.policy),
		mcptools.WithLogger(slog.Default().With("component", "mcptools")),
	).Register(srv)
	return srv
}

// maintain runs sweepOnce every interval until ctx is done.
func (rt *runtime) maintain(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.sweepOnce(ctx)
		}
	}
}

// sweepOnce evicts expired transactions and applies snapshot retention.
// Failures are logged; the next tick tries again.
func (rt *runtime) sweepOnce(ctx context.Context) {
	if n, err := rt.engine.SweepTransactions(ctx); err != nil {
		rt.logger.Warn("transaction sweep failed", "error", err)
	} else if n > 0 {
		rt.logger.Info("expired transactions swept", "count", n)
	}

	sc := rt.cfg.Snapshots
	if sc.MaxAge == 0 && sc.MaxPerDocument == 0 {
		return
	}
	if n, err := rt.engine.PruneSnapshots(ctx, sc.MaxAge, sc.MaxPerDocument); err != nil {
		rt.logger.Warn("snapshot prune failed", "error", err)
	} else if n > 0 {
		rt.logger.Info("snapshots pruned", "count", n)
	}
}
