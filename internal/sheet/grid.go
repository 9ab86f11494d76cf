package sheet

import "fmt"

// Grid is a row-major block of cell values. Rows may be ragged; missing
// cells read as Empty, matching how the remote store trims trailing blanks.
type Grid [][]Value

// NewGrid returns a rows x cols grid filled with Empty.
func NewGrid(rows, cols int) Grid {
	g := make(Grid, rows)
	for r := range g {
		g[r] = make([]Value, cols)
		for c := range g[r] {
			g[r][c] = Empty{}
		}
	}
	return g
}

// GridFromAny converts decoded JSON/YAML rows into a Grid.
func GridFromAny(rows [][]any) (Grid, error) {
	g := make(Grid, len(rows))
	for r, row := range rows {
		g[r] = make([]Value, len(row))
		for c, raw := range row {
			v, err := FromAny(raw)
			if err != nil {
				return nil, fmt.Errorf("cell %s: %w", CellRef{Row: r, Col: c}.A1(), err)
			}
			g[r][c] = v
		}
	}
	return g, nil
}

// Rows returns the number of rows.
func (g Grid) Rows() int {
	return len(g)
}

// Cols returns the length of the longest row.
func (g Grid) Cols() int {
	n := 0
	for _, row := range g {
		n = max(n, len(row))
	}
	return n
}

// At returns the value at (r, c), or Empty when out of bounds.
func (g Grid) At(r, c int) Value {
	if r < 0 || r >= len(g) || c < 0 || c >= len(g[r]) || g[r][c] == nil {
		return Empty{}
	}
	return g[r][c]
}

// Set stores v at (r, c), growing the grid as needed.
func (g *Grid) Set(r, c int, v Value) {
	for len(*g) <= r {
		*g = append(*g, nil)
	}
	row := (*g)[r]
	for len(row) <= c {
		row = append(row, Empty{})
	}
	row[c] = v
	(*g)[r] = row
}

// Clone returns a deep copy.
func (g Grid) Clone() Grid {
	out := make(Grid, len(g))
	for r, row := range g {
		out[r] = append([]Value(nil), row...)
	}
	return out
}

// Sub extracts the rectangle rect; cells outside g read as Empty.
func (g Grid) Sub(rect Rect) Grid {
	out := NewGrid(rect.Rows, rect.Cols)
	for r := 0; r < rect.Rows; r++ {
		for c := 0; c < rect.Cols; c++ {
			out[r][c] = g.At(rect.Row+r, rect.Col+c)
		}
	}
	return out
}

// Normalize trims trailing empty cells from every row and trailing empty rows.
func (g Grid) Normalize() Grid {
	out := make(Grid, 0, len(g))
	for _, row := range g {
		end := len(row)
		for end > 0 && IsEmpty(row[end-1]) {
			end--
		}
		out = append(out, append([]Value(nil), row[:end]...))
	}
	end := len(out)
	for end > 0 && len(out[end-1]) == 0 {
		end--
	}
	return out[:end]
}

// Equal reports whether g and o hold the same content once normalized.
func (g Grid) Equal(o Grid) bool {
	rows := max(g.Rows(), o.Rows())
	cols := max(g.Cols(), o.Cols())
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if !Equal(g.At(r, c), o.At(r, c)) {
				return false
			}
		}
	}
	return true
}
