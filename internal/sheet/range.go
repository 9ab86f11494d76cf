package sheet

import (
	"fmt"
	"strconv"
	"strings"
)

// GridRange addresses a rectangle on one sheet. Bounds are zero-based and
// end-exclusive; a nil bound is open and resolves to the sheet edge.
type GridRange struct {
	Sheet    string `json:"sheet,omitempty"`
	StartRow *int   `json:"startRow,omitempty"`
	EndRow   *int   `json:"endRow,omitempty"`
	StartCol *int   `json:"startCol,omitempty"`
	EndCol   *int   `json:"endCol,omitempty"`
}

// NewRange builds a fully bounded range.
func NewRange(sheetTitle string, startRow, endRow, startCol, endCol int) GridRange {
	return GridRange{
		Sheet:    sheetTitle,
		StartRow: intPtr(startRow),
		EndRow:   intPtr(endRow),
		StartCol: intPtr(startCol),
		EndCol:   intPtr(endCol),
	}
}

// RowSpan builds a range covering whole rows [start, end).
func RowSpan(sheetTitle string, start, end int) GridRange {
	return GridRange{Sheet: sheetTitle, StartRow: intPtr(start), EndRow: intPtr(end)}
}

func intPtr(n int) *int { return &n }

// Bounded reports whether all four bounds are set.
func (r GridRange) Bounded() bool {
	return r.StartRow != nil && r.EndRow != nil && r.StartCol != nil && r.EndCol != nil
}

// Unbounded reports whether no bound is set, i.e. the range is sheet-wide.
func (r GridRange) Unbounded() bool {
	return r.StartRow == nil && r.EndRow == nil && r.StartCol == nil && r.EndCol == nil
}

// Rect is a resolved rectangle with concrete coordinates.
type Rect struct {
	Row  int `json:"row"`
	Col  int `json:"col"`
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// Cells returns the number of cells in the rectangle.
func (r Rect) Cells() int {
	return r.Rows * r.Cols
}

// Resolve fills open bounds with the sheet edges (rows x cols) and clamps
// the result to the sheet. An inverted or out-of-sheet range resolves to an
// empty rectangle anchored at its start.
func (r GridRange) Resolve(rows, cols int) Rect {
	r0, r1 := bound(r.StartRow, 0), bound(r.EndRow, rows)
	c0, c1 := bound(r.StartCol, 0), bound(r.EndCol, cols)
	r1 = min(r1, rows)
	c1 = min(c1, cols)
	return Rect{Row: r0, Col: c0, Rows: max(r1-r0, 0), Cols: max(c1-c0, 0)}
}

// Extent resolves open bounds like Resolve but does not clamp explicit
// bounds to the sheet. Used when predicting writes that grow the grid.
func (r GridRange) Extent(rows, cols int) Rect {
	r0, r1 := bound(r.StartRow, 0), bound(r.EndRow, rows)
	c0, c1 := bound(r.StartCol, 0), bound(r.EndCol, cols)
	return Rect{Row: r0, Col: c0, Rows: max(r1-r0, 0), Cols: max(c1-c0, 0)}
}

func bound(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// Range converts a resolved rectangle back into a fully bounded GridRange.
func (r Rect) Range(sheetTitle string) GridRange {
	return NewRange(sheetTitle, r.Row, r.Row+r.Rows, r.Col, r.Col+r.Cols)
}

// CellRef identifies a single cell.
type CellRef struct {
	Sheet string
	Row   int
	Col   int
}

// A1 renders the cell as "Sheet!B3" (or "B3" without a sheet).
func (c CellRef) A1() string {
	cell := ColumnName(c.Col) + strconv.Itoa(c.Row+1)
	if c.Sheet == "" {
		return cell
	}
	return quoteSheet(c.Sheet) + "!" + cell
}

// ColumnName converts a zero-based column index into letters (0 → A, 26 → AA).
func ColumnName(col int) string {
	if col < 0 {
		return ""
	}
	var b []byte
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// columnIndex converts column letters into a zero-based index.
func columnIndex(letters string) (int, error) {
	n := 0
	for _, ch := range letters {
		if ch < 'A' || ch > 'Z' {
			return 0, fmt.Errorf("invalid column %q", letters)
		}
		n = n*26 + int(ch-'A'+1)
	}
	return n - 1, nil
}

// A1 renders the range in A1 notation. A sheet-wide range renders as the
// quoted sheet title alone.
func (r GridRange) A1() string {
	var cells string
	if !r.Unbounded() {
		start := endpoint(r.StartCol, r.StartRow, 0)
		end := endpoint(r.EndCol, r.EndRow, 1)
		if r.Bounded() && *r.EndRow-*r.StartRow == 1 && *r.EndCol-*r.StartCol == 1 {
			cells = start
		} else {
			cells = start + ":" + end
		}
	}
	switch {
	case r.Sheet == "":
		return cells
	case cells == "":
		return quoteSheet(r.Sheet)
	default:
		return quoteSheet(r.Sheet) + "!" + cells
	}
}

// endpoint renders one side of a range. Start bounds are inclusive, end
// bounds exclusive, so end adjusts by one.
func endpoint(col, row *int, adjust int) string {
	var s string
	if col != nil {
		s = ColumnName(*col - adjust)
	}
	if row != nil {
		s += strconv.Itoa(*row + 1 - adjust)
	}
	return s
}

func quoteSheet(title string) string {
	for _, ch := range title {
		if !(ch == '_' || ch >= '0' && ch <= '9' || ch >= 'A' && ch <= 'Z' || ch >= 'a' && ch <= 'z') {
			return "'" + strings.ReplaceAll(title, "'", "''") + "'"
		}
	}
	return title
}

// ParseA1 parses A1 notation: "Sheet1", "Sheet1!A1", "Sheet1!A1:C10",
// "Sheet1!A:C", "Sheet1!2:5", "'My Sheet'!B2:D" and the sheet-less forms.
func ParseA1(s string) (GridRange, error) {
	var r GridRange
	s = strings.TrimSpace(s)
	if s == "" {
		return r, fmt.Errorf("empty range")
	}

	cells := s
	if strings.HasPrefix(s, "'") {
		title, rest, err := parseQuotedSheet(s)
		if err != nil {
			return r, err
		}
		r.Sheet = title
		if rest == "" {
			return r, nil
		}
		if !strings.HasPrefix(rest, "!") {
			return r, fmt.Errorf("invalid range %q: expected '!' after sheet title", s)
		}
		cells = rest[1:]
	} else if i := strings.LastIndex(s, "!"); i >= 0 {
		r.Sheet = s[:i]
		cells = s[i+1:]
	} else if !looksLikeCells(s) {
		r.Sheet = s
		return r, nil
	}

	if cells == "" {
		return r, fmt.Errorf("invalid range %q: missing cells after '!'", s)
	}

	startPart, endPart, hasEnd := strings.Cut(cells, ":")
	sc, sr, err := parseEndpoint(startPart)
	if err != nil {
		return r, fmt.Errorf("invalid range %q: %w", s, err)
	}
	if !hasEnd {
		if sc == nil || sr == nil {
			return r, fmt.Errorf("invalid range %q: single cell needs column and row", s)
		}
		r.StartCol, r.EndCol = sc, intPtr(*sc+1)
		r.StartRow, r.EndRow = sr, intPtr(*sr+1)
		return r, nil
	}

	ec, er, err := parseEndpoint(endPart)
	if err != nil {
		return r, fmt.Errorf("invalid range %q: %w", s, err)
	}
	r.StartCol, r.StartRow = sc, sr
	if ec != nil {
		r.EndCol = intPtr(*ec + 1)
	}
	if er != nil {
		r.EndRow = intPtr(*er + 1)
	}
	if r.StartCol != nil && r.EndCol != nil && *r.EndCol <= *r.StartCol {
		return r, fmt.Errorf("invalid range %q: columns out of order", s)
	}
	if r.StartRow != nil && r.EndRow != nil && *r.EndRow <= *r.StartRow {
		return r, fmt.Errorf("invalid range %q: rows out of order", s)
	}
	return r, nil
}

// parseEndpoint splits "AB12" into column 27 and row 11; either part may be absent.
func parseEndpoint(p string) (col, row *int, err error) {
	p = strings.ToUpper(strings.ReplaceAll(p, "$", ""))
	if p == "" {
		return nil, nil, fmt.Errorf("empty endpoint")
	}
	i := 0
	for i < len(p) && p[i] >= 'A' && p[i] <= 'Z' {
		i++
	}
	if i > 0 {
		c, err := columnIndex(p[:i])
		if err != nil {
			return nil, nil, err
		}
		col = &c
	}
	if i < len(p) {
		n, err := strconv.Atoi(p[i:])
		if err != nil || n < 1 {
			return nil, nil, fmt.Errorf("invalid row in %q", p)
		}
		n--
		row = &n
	}
	return col, row, nil
}

func parseQuotedSheet(s string) (title, rest string, err error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != '\'' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		return b.String(), s[i+1:], nil
	}
	return "", "", fmt.Errorf("invalid range %q: unterminated sheet quote", s)
}

// looksLikeCells reports whether s is a bare cell reference such as "B2" or
// "A:C" rather than a sheet title. A lone endpoint must carry both a column
// and a row; column letters are limited to the three the store allows.
func looksLikeCells(s string) bool {
	parts := strings.Split(s, ":")
	if len(parts) > 2 {
		return false
	}
	for _, part := range parts {
		if strings.ToUpper(part) != part {
			return false
		}
		col, row, err := parseEndpoint(part)
		if err != nil {
			return false
		}
		if col != nil && *col > maxColumn {
			return false
		}
		if len(parts) == 1 && (col == nil || row == nil) {
			return false
		}
	}
	return true
}

// maxColumn is the index of column ZZZ.
const maxColumn = 18277
