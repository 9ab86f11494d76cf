package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/khill1269/servalsheets-sub001/internal/docstore"
	"github.com/khill1269/servalsheets-sub001/internal/engine"
	"github.com/khill1269/servalsheets-sub001/internal/fingerprint"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// WriteRange writes Values anchored at the top-left corner of Area. When
// Area is fully bounded the values must fit inside it. Writing past the
// sheet edge grows the sheet.
type WriteRange struct {
	Doc    sheet.DocumentRef
	Area   sheet.GridRange
	Values sheet.Grid
}

func (WriteRange) sealed() {}

func (a WriteRange) Kind() string { return KindWriteRange }

func (a WriteRange) Target() sheet.DocumentRef {
	doc, _ := scoped(a.Doc, a.Area)
	return doc
}

func (a WriteRange) Range() sheet.GridRange {
	_, rng := scoped(a.Doc, a.Area)
	return rng
}

// IsDestructive is false: a write replaces values but the engine cannot
// tell overwrites from fills without reading, and row and column structure
// is untouched.
func (a WriteRange) IsDestructive() bool { return false }

// Validate checks that there is something to write and that it fits.
func (a WriteRange) Validate() error {
	if a.Values.Rows() == 0 || a.Values.Cols() == 0 {
		return errors.New("write_range: no values")
	}
	if a.Area.Bounded() {
		rows := *a.Area.EndRow - *a.Area.StartRow
		cols := *a.Area.EndCol - *a.Area.StartCol
		if a.Values.Rows() > rows || a.Values.Cols() > cols {
			return fmt.Errorf("write_range: %dx%d values do not fit %s",
				a.Values.Rows(), a.Values.Cols(), a.Area.A1())
		}
	}
	return nil
}

// written is the rectangle the values land on.
func (a WriteRange) written() sheet.Rect {
	return sheet.Rect{
		Row:  start(a.Area.StartRow),
		Col:  start(a.Area.StartCol),
		Rows: a.Values.Rows(),
		Cols: a.Values.Cols(),
	}
}

func (a WriteRange) Descriptor() map[string]any {
	return map[string]any{
		"range":  a.Range().A1(),
		"values": encodeGrid(a.Values),
	}
}

func (a WriteRange) PredictScope(fingerprint.Fingerprint) engine.Scope {
	w := a.written()
	return engine.Scope{Cells: w.Cells(), Rows: w.Rows, Columns: w.Cols}
}

func (a WriteRange) DiffRange(fingerprint.Fingerprint) sheet.GridRange {
	return a.written().Range(a.Range().Sheet)
}

func (a WriteRange) Simulate(before sheet.Grid, origin sheet.Rect) sheet.Grid {
	out := before.Clone()
	w := a.written()
	for r := 0; r < w.Rows; r++ {
		for c := 0; c < w.Cols; c++ {
			out.Set(w.Row-origin.Row+r, w.Col-origin.Col+c, a.Values.At(r, c))
		}
	}
	return out
}

func (a WriteRange) Apply(ctx context.Context, w docstore.Writer) (engine.ApplyOutcome, error) {
	res, err := w.ApplyBatch(ctx, a.Target(), []docstore.Request{
		docstore.UpdateCells{Range: a.written().Range(a.Range().Sheet), Values: a.Values},
	})
	if err != nil {
		return engine.ApplyOutcome{}, fmt.Errorf("write_range %s: %w", a.Range().A1(), err)
	}
	return outcome(res), nil
}

func outcome(res docstore.ApplyResult) engine.ApplyOutcome {
	return engine.ApplyOutcome{
		Scope: engine.Scope{
			Cells:   res.UpdatedCells,
			Rows:    res.UpdatedRows,
			Columns: res.UpdatedColumns,
		},
		Affected: res.Affected,
	}
}

// encodeGrid renders values in their wire form for request fingerprints, so
// literal text and a formula with the same characters hash differently.
func encodeGrid(g sheet.Grid) [][]any {
	out := make([][]any, len(g))
	for r, row := range g {
		out[r] = make([]any, len(row))
		for c, v := range row {
			out[r][c] = sheet.Wire(v)
		}
	}
	return out
}
