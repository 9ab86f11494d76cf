// Package cli implements the servalguard command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
)

// Version is reported by the MCP server and stamped on telemetry.
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // path to servalguard.yaml; empty uses defaults
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "servalguard",
		Short: "Mutation safety engine for spreadsheet documents",
		Long: `servalguard guards writes to collaborative spreadsheets with optimistic
preconditions, effect-scope limits, pre-mutation snapshots, idempotent
transaction ids and tiered diffs.

It runs as an MCP server (serve), replays YAML scenarios (scenario), and
manages fingerprints, snapshots and the transaction registry.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			setupLogging(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to configuration file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))
	cmd.AddCommand(NewFingerprintCommand(opts))
	cmd.AddCommand(NewSnapshotsCommand(opts))
	cmd.AddCommand(NewTxnCommand(opts))
	cmd.AddCommand(NewPolicyCommand(opts))

	return cmd
}

// setupLogging installs a text handler on w as the default logger.
func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// commandEnv is what every RunE needs: a context, the global options and
// a formatter on the command's writers.
type commandEnv struct {
	ctx  context.Context
	opts *RootOptions
	out  *OutputFormatter
}

func newEnv(opts *RootOptions, cmd *cobra.Command) *commandEnv {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return &commandEnv{
		ctx:  ctx,
		opts: opts,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}
}
