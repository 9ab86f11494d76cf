package cli

import (
	"github.com/spf13/cobra"
)

// NewTxnCommand creates the txn command group.
func NewTxnCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "txn",
		Short: "Transaction registry maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "gc",
		Short: "Evict expired transaction ids",
		Long: `Evict transaction entries whose TTL has passed. Until evicted, a retry
with an expired id is refused with TRANSACTION_EXPIRED; after eviction the
id can be reused.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := newEnv(rootOpts, cmd)
			return withRuntime(env, func(rt *runtime) error {
				n, err := rt.engine.SweepTransactions(env.ctx)
				if err != nil {
					return env.out.Fail("transaction sweep failed", err)
				}
				return env.out.Success(countResult{Action: "evicted", Count: n})
			})
		},
	})
	return cmd
}
