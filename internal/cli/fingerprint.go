package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/khill1269/servalsheets-sub001/internal/docstore"
	"github.com/khill1269/servalsheets-sub001/internal/fingerprint"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// FingerprintOptions holds flags for the fingerprint command.
type FingerprintOptions struct {
	*RootOptions
	Sheet         string
	ChecksumRange string
}

type fingerprintView fingerprint.Fingerprint

func (f fingerprintView) renderText(w io.Writer) {
	fmt.Fprintf(w, "title:          %s\n", f.Title)
	fmt.Fprintf(w, "rows x columns: %d x %d\n", f.RowCount, f.ColumnCount)
	fmt.Fprintf(w, "checksum range: %s\n", f.ChecksumRange)
	fmt.Fprintf(w, "checksum:       %s\n", f.Checksum)
	fmt.Fprintf(w, "first row:      %s\n", strings.Join(f.FirstRowValues, " | "))
}

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FingerprintOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fingerprint <spreadsheet-id>",
		Short: "Observe a sheet fingerprint",
		Long: `Observe the current fingerprint of a sheet: title, dimensions, first-row
values and a checksum over the sheet (or --range).

Pass the JSON output as safety.expectedState to guard a later mutation.

Example:
  servalguard fingerprint budget --sheet Costs --format json
  servalguard fingerprint budget --range "Costs!A1:D20"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFingerprint(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Sheet, "sheet", "", "sheet title (default: first sheet)")
	cmd.Flags().StringVar(&opts.ChecksumRange, "range", "", "A1 range the checksum covers (default: whole sheet)")

	return cmd
}

func runFingerprint(opts *FingerprintOptions, spreadsheetID string, cmd *cobra.Command) error {
	env := newEnv(opts.RootOptions, cmd)

	var rng *sheet.GridRange
	if opts.ChecksumRange != "" {
		r, err := sheet.ParseA1(opts.ChecksumRange)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --range", err)
		}
		rng = &r
	}

	return withRuntime(env, func(rt *runtime) error {
		ref := sheet.DocumentRef{SpreadsheetID: spreadsheetID, Sheet: opts.Sheet}
		fp, err := rt.engine.Fingerprints().Observe(env.ctx, ref, rng)
		if errors.Is(err, docstore.ErrNotFound) {
			if werr := env.out.Error(CodeNotFound, err.Error(), nil); werr != nil {
				return werr
			}
			return WrapExitError(ExitFailure, "not found", err)
		}
		if err != nil {
			return env.out.Fail("failed to observe "+ref.String(), err)
		}
		return env.out.Success(fingerprintView(fp))
	})
}
