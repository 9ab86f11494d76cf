package gsheets

import (
	"fmt"

	"google.golang.org/api/sheets/v4"

	"github.com/khill1269/servalsheets-sub001/internal/docstore"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

type callKind int

const (
	structural callKind = iota
	valueWrite
	valueClear
)

// call is one remote round trip. Structural requests go through
// spreadsheets.batchUpdate, writes through values.batchUpdate and clears
// through values.batchClear, because only the values endpoints report what
// they changed.
type call struct {
	kind     callKind
	requests []*sheets.Request
	data     []*sheets.ValueRange
	clears   []clearTarget

	// growth marks appends issued only so a following write fits; the
	// write reports those cells, the appends do not.
	growth bool

	// before holds rows and columns per sheet title as they were when the
	// call first touched the sheet.
	before map[string][2]int

	affected []sheet.GridRange
}

type clearTarget struct {
	a1         string
	title      string
	rows, cols int
	rect       sheet.Rect
}

// batch translates docstore requests into remote calls, tracking sheet
// dimensions as earlier requests change them. Consecutive requests of the
// same kind share one call.
type batch struct {
	doc      *sheets.Spreadsheet
	defSheet string
	dims     map[string][2]int
	calls    []*call

	// predicted is what the requests should change on an unshared sheet.
	// The result returned to callers comes from the service instead.
	predicted docstore.ApplyResult
}

func newBatch(doc *sheets.Spreadsheet, defaultSheet string) *batch {
	return &batch{doc: doc, defSheet: defaultSheet, dims: map[string][2]int{}}
}

// sheet resolves a title to its properties and current dimensions.
func (b *batch) sheet(title string) (*sheets.SheetProperties, int, int, error) {
	if title == "" {
		title = b.defSheet
	}
	p, err := findSheet(b.doc, title)
	if err != nil {
		return nil, 0, 0, err
	}
	if d, ok := b.dims[p.Title]; ok {
		return p, d[0], d[1], nil
	}
	m := metaOf(b.doc, p)
	return p, m.RowCount, m.ColumnCount, nil
}

func (b *batch) setDims(p *sheets.SheetProperties, rows, cols int) {
	b.dims[p.Title] = [2]int{rows, cols}
}

// push returns the open call for kind, starting a new one when the last
// call differs.
func (b *batch) push(kind callKind, growth bool) *call {
	if n := len(b.calls); n > 0 {
		if last := b.calls[n-1]; last.kind == kind && last.growth == growth {
			return last
		}
	}
	c := &call{kind: kind, growth: growth, before: map[string][2]int{}}
	b.calls = append(b.calls, c)
	return c
}

// structure queues a structural request against p, whose dimensions are
// rows x cols just before it runs.
func (b *batch) structure(p *sheets.SheetProperties, rows, cols int, growth bool, req *sheets.Request, affected ...sheet.GridRange) {
	c := b.push(structural, growth)
	if _, ok := c.before[p.Title]; !ok {
		c.before[p.Title] = [2]int{rows, cols}
	}
	c.requests = append(c.requests, req)
	c.affected = append(c.affected, affected...)
}

func (b *batch) add(req docstore.Request) error {
	switch r := req.(type) {
	case docstore.UpdateCells:
		return b.updateCells(r)
	case docstore.ClearRange:
		return b.clearRange(r)
	case docstore.InsertDimension:
		return b.insertDimension(r)
	case docstore.DeleteDimension:
		return b.deleteDimension(r)
	default:
		return fmt.Errorf("gsheets: unsupported request %T", req)
	}
}

func (b *batch) updateCells(r docstore.UpdateCells) error {
	p, rows, cols, err := b.sheet(r.Range.Sheet)
	if err != nil {
		return err
	}
	origin := r.Range.Extent(rows, cols)
	nr, nc := r.Values.Rows(), r.Values.Cols()
	if nr == 0 || nc == 0 {
		return nil
	}

	// Writes past the grid edge grow the sheet first; the values endpoint
	// rejects ranges outside the grid.
	if need := origin.Row + nr - rows; need > 0 {
		b.structure(p, rows, cols, true, appendDimension(p.SheetId, docstore.Rows, need))
		rows += need
	}
	if need := origin.Col + nc - cols; need > 0 {
		b.structure(p, rows, cols, true, appendDimension(p.SheetId, docstore.Columns, need))
		cols += need
	}
	b.setDims(p, rows, cols)

	values := make([][]any, nr)
	for i := range values {
		row := make([]any, nc)
		for j := range row {
			row[j] = cellInput(r.Values.At(i, j))
		}
		values[i] = row
	}
	written := sheet.Rect{Row: origin.Row, Col: origin.Col, Rows: nr, Cols: nc}
	c := b.push(valueWrite, false)
	c.data = append(c.data, &sheets.ValueRange{
		Range:          written.Range(p.Title).A1(),
		MajorDimension: "ROWS",
		Values:         values,
	})
	c.affected = append(c.affected, written.Range(p.Title))

	b.predicted.Add(docstore.ApplyResult{
		UpdatedCells:   written.Cells(),
		UpdatedRows:    nr,
		UpdatedColumns: nc,
	})
	return nil
}

func (b *batch) clearRange(r docstore.ClearRange) error {
	p, rows, cols, err := b.sheet(r.Range.Sheet)
	if err != nil {
		return err
	}
	rect := r.Range.Resolve(rows, cols)
	if rect.Cells() == 0 {
		return nil
	}
	c := b.push(valueClear, false)
	c.clears = append(c.clears, clearTarget{
		a1:    rect.Range(p.Title).A1(),
		title: p.Title,
		rows:  rows,
		cols:  cols,
		rect:  rect,
	})
	b.predicted.Add(docstore.ApplyResult{
		UpdatedCells:   rect.Cells(),
		UpdatedRows:    rect.Rows,
		UpdatedColumns: rect.Cols,
	})
	return nil
}

func (b *batch) insertDimension(r docstore.InsertDimension) error {
	p, rows, cols, err := b.sheet(r.Sheet)
	if err != nil {
		return err
	}
	if r.Count <= 0 {
		return fmt.Errorf("gsheets: insert count must be positive")
	}
	size := rows
	if r.Dimension == docstore.Columns {
		size = cols
	}
	if r.Start < 0 || r.Start > size {
		return fmt.Errorf("gsheets: insert at %d outside %d %s", r.Start, size, r.Dimension)
	}

	// Inserting at the very end is an append; the service rejects an
	// insert whose start index equals the dimension size.
	req := appendDimension(p.SheetId, r.Dimension, r.Count)
	if r.Start < size {
		req = &sheets.Request{InsertDimension: &sheets.InsertDimensionRequest{
			Range:             dimensionRange(p.SheetId, r.Dimension, r.Start, r.Start+r.Count),
			InheritFromBefore: r.Start > 0,
		}}
	}

	if r.Dimension == docstore.Columns {
		b.structure(p, rows, cols, false, req, sheet.NewRange(p.Title, 0, rows, r.Start, r.Start+r.Count))
		b.predicted.Add(dimensionChange([2]int{rows, cols}, [2]int{rows, cols + r.Count}))
		cols += r.Count
	} else {
		b.structure(p, rows, cols, false, req, sheet.NewRange(p.Title, r.Start, r.Start+r.Count, 0, cols))
		b.predicted.Add(dimensionChange([2]int{rows, cols}, [2]int{rows + r.Count, cols}))
		rows += r.Count
	}
	b.setDims(p, rows, cols)
	return nil
}

func (b *batch) deleteDimension(r docstore.DeleteDimension) error {
	p, rows, cols, err := b.sheet(r.Sheet)
	if err != nil {
		return err
	}
	size := rows
	if r.Dimension == docstore.Columns {
		size = cols
	}
	if r.Start < 0 || r.End <= r.Start || r.End > size {
		return fmt.Errorf("gsheets: delete [%d, %d) outside %d %s", r.Start, r.End, size, r.Dimension)
	}
	req := &sheets.Request{DeleteDimension: &sheets.DeleteDimensionRequest{
		Range: dimensionRange(p.SheetId, r.Dimension, r.Start, r.End),
	}}

	n := r.End - r.Start
	if r.Dimension == docstore.Columns {
		b.structure(p, rows, cols, false, req, sheet.NewRange(p.Title, 0, rows, r.Start, r.End))
		b.predicted.Add(dimensionChange([2]int{rows, cols}, [2]int{rows, cols - n}))
		cols -= n
	} else {
		b.structure(p, rows, cols, false, req, sheet.NewRange(p.Title, r.Start, r.End, 0, cols))
		b.predicted.Add(dimensionChange([2]int{rows, cols}, [2]int{rows - n, cols}))
		rows -= n
	}
	b.setDims(p, rows, cols)
	return nil
}

// dimensionChange counts the cells a sheet gained or lost going from
// before to after, both given as rows x cols. Rows are counted across the
// old column count and columns across the new row count.
func dimensionChange(before, after [2]int) docstore.ApplyResult {
	var res docstore.ApplyResult
	if dr := abs(after[0] - before[0]); dr > 0 {
		res.Add(docstore.ApplyResult{UpdatedCells: dr * before[1], UpdatedRows: dr, UpdatedColumns: before[1]})
	}
	if dc := abs(after[1] - before[1]); dc > 0 {
		res.Add(docstore.ApplyResult{UpdatedCells: dc * after[0], UpdatedRows: after[0], UpdatedColumns: dc})
	}
	return res
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func appendDimension(sheetID int64, dim docstore.Dimension, n int) *sheets.Request {
	return &sheets.Request{AppendDimension: &sheets.AppendDimensionRequest{
		SheetId:   sheetID,
		Dimension: string(dim),
		Length:    int64(n),
	}}
}

func dimensionRange(sheetID int64, dim docstore.Dimension, start, end int) *sheets.DimensionRange {
	return &sheets.DimensionRange{
		SheetId:         sheetID,
		Dimension:       string(dim),
		StartIndex:      int64(start),
		EndIndex:        int64(end),
		ForceSendFields: []string{"SheetId", "StartIndex"},
	}
}

// cellInput renders v for USER_ENTERED input. Text carries a leading
// apostrophe so the service stores it verbatim instead of parsing it; the
// apostrophe is not part of the stored value.
// Empty renders as "", which clears the cell.
func cellInput(v sheet.Value) any {
	switch val := v.(type) {
	case sheet.String:
		if val == "" {
			return ""
		}
		return "'" + string(val)
	case sheet.Number:
		return float64(val)
	case sheet.Bool:
		return bool(val)
	case sheet.Formula:
		return string(val)
	default:
		return ""
	}
}
