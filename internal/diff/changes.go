package diff

import (
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// BuildChanges compares before and after, both relative to origin, and
// returns one CellChange per differing cell in row-major order.
func BuildChanges(sheetTitle string, origin sheet.Rect, before, after sheet.Grid) []CellChange {
	rows := max(before.Rows(), after.Rows())
	cols := max(before.Cols(), after.Cols())

	var changes []CellChange
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			b, a := before.At(r, c), after.At(r, c)
			if sheet.Equal(b, a) {
				continue
			}
			row, col := origin.Row+r, origin.Col+c
			changes = append(changes, CellChange{
				Cell:   sheet.CellRef{Sheet: sheetTitle, Row: row, Col: col}.A1(),
				Before: presentOrNil(b),
				After:  presentOrNil(a),
				Type:   classify(b, a),
				Row:    row,
				Col:    col,
			})
		}
	}
	return changes
}

// ApplyChanges writes every change's After value onto a copy of before and
// returns the normalized result. before is relative to origin.
func ApplyChanges(before sheet.Grid, origin sheet.Rect, changes []CellChange) sheet.Grid {
	out := before.Clone()
	for _, ch := range changes {
		var v sheet.Value = sheet.Empty{}
		if ch.After != nil {
			v = ch.After
		}
		out.Set(ch.Row-origin.Row, ch.Col-origin.Col, v)
	}
	return out.Normalize()
}

func presentOrNil(v sheet.Value) sheet.Value {
	if sheet.IsEmpty(v) {
		return nil
	}
	return v
}

func classify(before, after sheet.Value) ChangeType {
	if sheet.TagOf(before) == sheet.TagFormula || sheet.TagOf(after) == sheet.TagFormula {
		return ChangeFormula
	}
	return ChangeValue
}

// changedRows groups changes by absolute row, preserving row order.
func changedRows(changes []CellChange) (rows []int, byRow map[int][]CellChange) {
	byRow = make(map[int][]CellChange)
	for _, ch := range changes {
		if _, seen := byRow[ch.Row]; !seen {
			rows = append(rows, ch.Row)
		}
		byRow[ch.Row] = append(byRow[ch.Row], ch)
	}
	return rows, byRow
}
