package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/khill1269/servalsheets-sub001/internal/docstore/memstore"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// AssertionError is returned when a final-state assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, actual %s", e.Type, e.Expected, e.Actual)
}

// checkExpect compares a step record against its expect clause.
func checkExpect(result *Result, i int, step Step, rec StepRecord) {
	x := step.Expect
	if x == nil {
		return
	}
	var failures []string
	fail := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	wantOutcome := OutcomeOK
	if x.Error != "" {
		wantOutcome = string(x.Error)
	}
	if rec.Outcome != wantOutcome {
		fail("outcome: expected %s, got %s", wantOutcome, rec.Outcome)
	}
	if x.Field != "" && (rec.Error == nil || rec.Error.Field != x.Field) {
		got := ""
		if rec.Error != nil {
			got = rec.Error.Field
		}
		fail("field: expected %s, got %q", x.Field, got)
	}
	if x.Writes != nil && rec.Writes != *x.Writes {
		fail("writes: expected %d, got %d", *x.Writes, rec.Writes)
	}

	r := rec.Report
	needReport := x.CellsAffected != nil || x.Reversible != nil || x.DryRun != nil || x.DiffTier != "" || x.ScopeExceeded != ""
	if needReport && r == nil {
		fail("report: expected one, step produced none")
	}
	if r != nil {
		if x.CellsAffected != nil && r.CellsAffected != *x.CellsAffected {
			fail("cellsAffected: expected %d, got %d", *x.CellsAffected, r.CellsAffected)
		}
		if x.Reversible != nil && r.Reversible != *x.Reversible {
			fail("reversible: expected %t, got %t", *x.Reversible, r.Reversible)
		}
		if x.DryRun != nil && r.DryRun != *x.DryRun {
			fail("dryRun: expected %t, got %t", *x.DryRun, r.DryRun)
		}
		if x.DiffTier != "" {
			switch {
			case r.Diff == nil:
				fail("diff: expected tier %s, got no diff", x.DiffTier)
			case r.Diff.Tier != x.DiffTier:
				fail("diff: expected tier %s, got %s", x.DiffTier, r.Diff.Tier)
			}
		}
		if x.ScopeExceeded != "" && (r.ScopeExceeded == nil || r.ScopeExceeded.Limit != x.ScopeExceeded) {
			fail("scopeExceeded: expected %s", x.ScopeExceeded)
		}
	}

	for _, f := range failures {
		result.AddError(fmt.Sprintf("steps[%d]: %s", i, f))
	}
}

// check evaluates one final-state assertion.
func (h *Harness) check(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertCells:
		return h.checkCells(a)
	case AssertRowCount:
		ref := sheet.DocumentRef{SpreadsheetID: a.Document}
		if a.Range != "" {
			rng, err := sheet.ParseA1(a.Range)
			if err != nil {
				return err
			}
			ref.Sheet = rng.Sheet
		}
		meta, err := h.store.Metadata(ctx, ref)
		if err != nil {
			return err
		}
		if meta.RowCount != *a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprint(*a.Count), Actual: fmt.Sprint(meta.RowCount)}
		}
	case AssertWrites:
		if got := h.store.Calls(memstore.OpApplyBatch); got != *a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprint(*a.Count), Actual: fmt.Sprint(got)}
		}
	case AssertSnapshots:
		snaps, err := h.engine.ListSnapshots(ctx, a.Document)
		if err != nil {
			return err
		}
		if len(snaps) != *a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprint(*a.Count), Actual: fmt.Sprint(len(snaps))}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func (h *Harness) checkCells(a Assertion) error {
	rng, err := sheet.ParseA1(a.Range)
	if err != nil {
		return err
	}
	want, err := sheet.GridFromAny(a.Values)
	if err != nil {
		return err
	}
	full, err := h.store.Grid(sheet.DocumentRef{SpreadsheetID: a.Document, Sheet: rng.Sheet})
	if err != nil {
		return err
	}
	got := full.Sub(rng.Extent(full.Rows(), full.Cols()))
	if !got.Equal(want) {
		return &AssertionError{Type: a.Type, Expected: render(want), Actual: render(got)}
	}
	return nil
}

func render(g sheet.Grid) string {
	rows := make([]string, 0, len(g))
	for _, row := range g.Normalize() {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = v.Display()
		}
		rows = append(rows, "["+strings.Join(cells, ", ")+"]")
	}
	return "[" + strings.Join(rows, " ") + "]"
}
