package actions

import (
	"context"
	"fmt"

	"github.com/khill1269/servalsheets-sub001/internal/docstore"
	"github.com/khill1269/servalsheets-sub001/internal/engine"
	"github.com/khill1269/servalsheets-sub001/internal/fingerprint"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// ClearRange empties every cell in Area. Open bounds extend to the sheet
// edge, so an unbounded Area clears the whole sheet.
type ClearRange struct {
	Doc  sheet.DocumentRef
	Area sheet.GridRange
}

func (ClearRange) sealed() {}

func (a ClearRange) Kind() string { return KindClearRange }

func (a ClearRange) Target() sheet.DocumentRef {
	doc, _ := scoped(a.Doc, a.Area)
	return doc
}

func (a ClearRange) Range() sheet.GridRange {
	_, rng := scoped(a.Doc, a.Area)
	return rng
}

func (a ClearRange) IsDestructive() bool { return true }

func (a ClearRange) Validate() error { return nil }

func (a ClearRange) Descriptor() map[string]any {
	return map[string]any{"range": a.Range().A1()}
}

func (a ClearRange) PredictScope(observed fingerprint.Fingerprint) engine.Scope {
	rect := a.Area.Resolve(observed.RowCount, observed.ColumnCount)
	return engine.Scope{Cells: rect.Cells(), Rows: rect.Rows, Columns: rect.Cols}
}

func (a ClearRange) Simulate(before sheet.Grid, origin sheet.Rect) sheet.Grid {
	out := before.Clone()
	for r := range out {
		for c := range out[r] {
			out[r][c] = sheet.Empty{}
		}
	}
	return out
}

func (a ClearRange) Apply(ctx context.Context, w docstore.Writer) (engine.ApplyOutcome, error) {
	res, err := w.ApplyBatch(ctx, a.Target(), []docstore.Request{
		docstore.ClearRange{Range: a.Range()},
	})
	if err != nil {
		return engine.ApplyOutcome{}, fmt.Errorf("clear_range %s: %w", a.Range().A1(), err)
	}
	return outcome(res), nil
}
