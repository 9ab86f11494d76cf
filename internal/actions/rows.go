package actions

import (
	"context"
	"fmt"

	"github.com/khill1269/servalsheets-sub001/internal/docstore"
	"github.com/khill1269/servalsheets-sub001/internal/engine"
	"github.com/khill1269/servalsheets-sub001/internal/fingerprint"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// InsertRows inserts Count empty rows before row Start (zero-based) of
// Doc's sheet. Rows at and below Start shift down.
type InsertRows struct {
	Doc   sheet.DocumentRef
	Start int
	Count int
}

func (InsertRows) sealed() {}

func (a InsertRows) Kind() string              { return KindInsertRows }
func (a InsertRows) Target() sheet.DocumentRef { return a.Doc }
func (a InsertRows) IsDestructive() bool       { return false }

func (a InsertRows) Range() sheet.GridRange {
	return sheet.RowSpan(a.Doc.Sheet, a.Start, a.Start+a.Count)
}

func (a InsertRows) RowSpan() (int, int) { return a.Start, a.Start + a.Count }

func (a InsertRows) Validate() error {
	if a.Start < 0 || a.Count <= 0 {
		return fmt.Errorf("insert_rows: invalid start %d, count %d", a.Start, a.Count)
	}
	return nil
}

func (a InsertRows) Descriptor() map[string]any {
	return map[string]any{"sheet": a.Doc.Sheet, "startIndex": a.Start, "count": a.Count}
}

func (a InsertRows) PredictScope(observed fingerprint.Fingerprint) engine.Scope {
	return engine.Scope{Cells: a.Count * observed.ColumnCount, Rows: a.Count, Columns: observed.ColumnCount}
}

// DiffRange covers every row that moves: from Start to the new bottom edge.
func (a InsertRows) DiffRange(observed fingerprint.Fingerprint) sheet.GridRange {
	return sheet.NewRange(a.Doc.Sheet, a.Start, observed.RowCount+a.Count, 0, observed.ColumnCount)
}

func (a InsertRows) Simulate(before sheet.Grid, origin sheet.Rect) sheet.Grid {
	offset := a.Start - origin.Row
	out := make(sheet.Grid, 0, len(before)+a.Count)
	for r := 0; r < offset && r < len(before); r++ {
		out = append(out, append([]sheet.Value(nil), before[r]...))
	}
	for range a.Count {
		out = append(out, nil)
	}
	for r := max(offset, 0); r < len(before); r++ {
		out = append(out, append([]sheet.Value(nil), before[r]...))
	}
	return out
}

func (a InsertRows) Apply(ctx context.Context, w docstore.Writer) (engine.ApplyOutcome, error) {
	res, err := w.ApplyBatch(ctx, a.Doc, []docstore.Request{
		docstore.InsertDimension{Sheet: a.Doc.Sheet, Dimension: docstore.Rows, Start: a.Start, Count: a.Count},
	})
	if err != nil {
		return engine.ApplyOutcome{}, fmt.Errorf("insert_rows at %d: %w", a.Start, err)
	}
	return outcome(res), nil
}

// DeleteRows deletes rows [Start, End) of Doc's sheet. Rows below End
// shift up.
type DeleteRows struct {
	Doc   sheet.DocumentRef
	Start int
	End   int
}

func (DeleteRows) sealed() {}

func (a DeleteRows) Kind() string              { return KindDeleteRows }
func (a DeleteRows) Target() sheet.DocumentRef { return a.Doc }
func (a DeleteRows) IsDestructive() bool       { return true }

func (a DeleteRows) Range() sheet.GridRange {
	return sheet.RowSpan(a.Doc.Sheet, a.Start, a.End)
}

func (a DeleteRows) RowSpan() (int, int) { return a.Start, a.End }

func (a DeleteRows) Validate() error {
	if a.Start < 0 || a.End <= a.Start {
		return fmt.Errorf("delete_rows: invalid span [%d, %d)", a.Start, a.End)
	}
	return nil
}

func (a DeleteRows) Descriptor() map[string]any {
	return map[string]any{"sheet": a.Doc.Sheet, "startIndex": a.Start, "endIndex": a.End}
}

func (a DeleteRows) PredictScope(observed fingerprint.Fingerprint) engine.Scope {
	n := a.End - a.Start
	return engine.Scope{Cells: n * observed.ColumnCount, Rows: n, Columns: observed.ColumnCount}
}

// DiffRange covers the deleted rows and everything that moves up.
func (a DeleteRows) DiffRange(observed fingerprint.Fingerprint) sheet.GridRange {
	return sheet.NewRange(a.Doc.Sheet, a.Start, max(observed.RowCount, a.End), 0, observed.ColumnCount)
}

func (a DeleteRows) Simulate(before sheet.Grid, origin sheet.Rect) sheet.Grid {
	from := max(a.Start-origin.Row, 0)
	to := min(a.End-origin.Row, len(before))
	out := make(sheet.Grid, 0, len(before))
	for r, row := range before {
		if r >= from && r < to {
			continue
		}
		out = append(out, append([]sheet.Value(nil), row...))
	}
	return out
}

func (a DeleteRows) Apply(ctx context.Context, w docstore.Writer) (engine.ApplyOutcome, error) {
	res, err := w.ApplyBatch(ctx, a.Doc, []docstore.Request{
		docstore.DeleteDimension{Sheet: a.Doc.Sheet, Dimension: docstore.Rows, Start: a.Start, End: a.End},
	})
	if err != nil {
		return engine.ApplyOutcome{}, fmt.Errorf("delete_rows [%d, %d): %w", a.Start, a.End, err)
	}
	return outcome(res), nil
}
