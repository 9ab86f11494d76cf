package docstore

import "github.com/khill1269/servalsheets-sub001/internal/sheet"

// Dimension selects rows or columns for structural requests.
type Dimension string

const (
	Rows    Dimension = "ROWS"
	Columns Dimension = "COLUMNS"
)

// Request is a sealed interface for batch requests. Only the types in this
// file implement it.
type Request interface {
	request()
}

// UpdateCells writes Values starting at the top-left corner of Range.
type UpdateCells struct {
	Range  sheet.GridRange
	Values sheet.Grid
}

// ClearRange clears every value in Range.
type ClearRange struct {
	Range sheet.GridRange
}

// InsertDimension inserts Count empty rows or columns before index Start.
type InsertDimension struct {
	Sheet     string
	Dimension Dimension
	Start     int
	Count     int
}

// DeleteDimension deletes rows or columns [Start, End).
type DeleteDimension struct {
	Sheet     string
	Dimension Dimension
	Start     int
	End       int
}

func (UpdateCells) request()     {}
func (ClearRange) request()      {}
func (InsertDimension) request() {}
func (DeleteDimension) request() {}
