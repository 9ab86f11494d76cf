package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/khill1269/servalsheets-sub001/internal/sheet"
	"github.com/khill1269/servalsheets-sub001/internal/snapshot"
)

type snapshotList []snapshot.Snapshot

func (l snapshotList) renderText(w io.Writer) {
	if len(l) == 0 {
		fmt.Fprintln(w, "No snapshots.")
		return
	}
	for _, s := range l {
		fmt.Fprintf(w, "%s  %s  %s  copy=%s\n",
			s.ID, s.CreatedAt.Format(time.RFC3339), s.DocumentRef.String(), s.ExternalCopyRef)
	}
}

type restoreResult struct {
	SnapshotID string            `json:"snapshotId"`
	Restored   sheet.DocumentRef `json:"restored"`
}

func (r restoreResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "Snapshot %s restored as %s\n", r.SnapshotID, r.Restored.String())
}

type countResult struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}

func (r countResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "%s: %d\n", r.Action, r.Count)
}

// NewSnapshotsCommand creates the snapshots command group.
func NewSnapshotsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List, restore, delete and prune snapshots",
		Long: `Manage pre-mutation snapshots.

Snapshots live in the configured registry (snapshots.registry); use the
sqlite registry to manage them across processes.`,
	}
	cmd.AddCommand(newSnapshotsListCommand(rootOpts))
	cmd.AddCommand(newSnapshotsRestoreCommand(rootOpts))
	cmd.AddCommand(newSnapshotsDeleteCommand(rootOpts))
	cmd.AddCommand(newSnapshotsPruneCommand(rootOpts))
	return cmd
}

func newSnapshotsListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [spreadsheet-id]",
		Short: "List snapshots, oldest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := newEnv(opts, cmd)
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			return withRuntime(env, func(rt *runtime) error {
				snaps, err := rt.engine.ListSnapshots(env.ctx, id)
				if err != nil {
					return env.out.Fail("failed to list snapshots", err)
				}
				if snaps == nil {
					snaps = []snapshot.Snapshot{}
				}
				return env.out.Success(snapshotList(snaps))
			})
		},
	}
}

func newSnapshotsRestoreCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <snapshot-id>",
		Short: "Restore a snapshot as a new document",
		Long: `Restore a snapshot as a new document. The original document and the
snapshot are left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := newEnv(opts, cmd)
			return withRuntime(env, func(rt *runtime) error {
				ref, err := rt.engine.RestoreSnapshot(env.ctx, args[0])
				if err != nil {
					return env.out.Fail("failed to restore snapshot", err)
				}
				return env.out.Success(restoreResult{SnapshotID: args[0], Restored: ref})
			})
		},
	}
}

func newSnapshotsDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <snapshot-id>...",
		Short: "Delete snapshots and their document copies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := newEnv(opts, cmd)
			return withRuntime(env, func(rt *runtime) error {
				for i, id := range args {
					if err := rt.engine.DeleteSnapshot(env.ctx, id); err != nil {
						env.out.VerboseLog("deleted %d of %d before failing", i, len(args))
						return env.out.Fail("failed to delete snapshot "+id, err)
					}
				}
				return env.out.Success(countResult{Action: "deleted", Count: len(args)})
			})
		},
	}
}

type pruneOptions struct {
	*RootOptions
	MaxAge         time.Duration
	MaxPerDocument int
}

func newSnapshotsPruneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &pruneOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Apply snapshot retention",
		Long: `Delete snapshots older than --max-age and, per document, all but the
newest --max-per-document. Unset flags fall back to snapshots.max_age and
snapshots.max_per_document from the configuration; zero disables a rule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := newEnv(opts.RootOptions, cmd)
			return withRuntime(env, func(rt *runtime) error {
				maxAge, maxPer := rt.cfg.Snapshots.MaxAge, rt.cfg.Snapshots.MaxPerDocument
				if cmd.Flags().Changed("max-age") {
					maxAge = opts.MaxAge
				}
				if cmd.Flags().Changed("max-per-document") {
					maxPer = opts.MaxPerDocument
				}
				if maxAge < 0 || maxPer < 0 {
					return NewExitError(ExitCommandError, "--max-age and --max-per-document must be non-negative")
				}
				n, err := rt.engine.PruneSnapshots(env.ctx, maxAge, maxPer)
				if err != nil {
					return env.out.Fail(fmt.Sprintf("prune failed after deleting %d", n), err)
				}
				return env.out.Success(countResult{Action: "pruned", Count: n})
			})
		},
	}
	cmd.Flags().DurationVar(&opts.MaxAge, "max-age", 0, "delete snapshots older than this")
	cmd.Flags().IntVar(&opts.MaxPerDocument, "max-per-document", 0, "keep at most this many snapshots per document")
	return cmd
}
