package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/khill1269/servalsheets-sub001/internal/actions"
	"github.com/khill1269/servalsheets-sub001/internal/policy"
)

// PolicyReport is the resolved rule per action kind.
type PolicyReport struct {
	Dir   string                 `json:"dir"`
	Rules map[string]policy.Rule `json:"rules"`
}

func (r PolicyReport) renderText(w io.Writer) {
	fmt.Fprintf(w, "✓ %s\n", r.Dir)
	kinds := make([]string, 0, len(r.Rules))
	for k := range r.Rules {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		rule := r.Rules[k]
		fmt.Fprintf(w, "  %-12s", k)
		if es := rule.EffectScope; es != nil {
			if es.MaxCellsAffected > 0 {
				fmt.Fprintf(w, " maxCells=%d", es.MaxCellsAffected)
			}
			if es.MaxRowsAffected != nil {
				fmt.Fprintf(w, " maxRows=%d", *es.MaxRowsAffected)
			}
			if es.MaxColumnsAffected != nil {
				fmt.Fprintf(w, " maxColumns=%d", *es.MaxColumnsAffected)
			}
			if es.RequireExplicitRange {
				fmt.Fprint(w, " explicitRange")
			}
		}
		if rule.AutoSnapshot {
			fmt.Fprint(w, " autoSnapshot")
		}
		if rule.Verbosity != "" {
			fmt.Fprintf(w, " verbosity=%s", rule.Verbosity)
		}
		fmt.Fprintln(w)
	}
}

// NewPolicyCommand creates the policy command group.
func NewPolicyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect CUE safety policies",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <policy-dir>",
		Short: "Validate a policy directory and print the resolved rules",
		Long: `Load every .cue file in a directory, validate it against the policy
schema and print the defaults each action kind resolves to.

Example:
  servalguard policy check ./policies
  servalguard policy check ./policies --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := newEnv(rootOpts, cmd)
			p, err := policy.Load(args[0])
			if err != nil {
				var perr *policy.Error
				if errors.As(err, &perr) && perr.Pos.IsValid() {
					details := map[string]any{
						"file":   perr.Pos.Filename(),
						"line":   perr.Pos.Line(),
						"column": perr.Pos.Column(),
					}
					if werr := env.out.Error(CodeBadPolicy, perr.Error(), details); werr != nil {
						return werr
					}
					return WrapExitError(ExitFailure, "invalid policy", err)
				}
				return env.out.Fail("failed to load policy", err)
			}

			report := PolicyReport{Dir: args[0], Rules: map[string]policy.Rule{}}
			for _, kind := range []string{actions.KindWriteRange, actions.KindClearRange, actions.KindInsertRows, actions.KindDeleteRows} {
				report.Rules[kind] = p.Rule(kind)
			}
			return env.out.Success(report)
		},
	})
	return cmd
}
