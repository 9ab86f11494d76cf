package fingerprint

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

func gridOf(cells []string, cols int) sheet.Grid {
	g := sheet.NewGrid((len(cells)+cols-1)/cols, cols)
	for i, s := range cells {
		v, _ := sheet.FromAny(s)
		g[i/cols][i%cols] = v
	}
	return g
}

// Property: any single-cell change inside the rectangle changes the checksum.
func TestChecksumDetectsSingleCellChange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("single cell mutation changes checksum", prop.ForAll(
		func(cells []string, idx int, replacement string) bool {
			const cols = 3
			g := gridOf(cells, cols)
			rows := g.Rows()
			if rows == 0 {
				return true
			}
			idx %= rows * cols
			r, c := idx/cols, idx%cols

			mutated := g.Clone()
			next := sheet.Value(sheet.String(replacement + "~"))
			if sheet.Equal(next, g.At(r, c)) {
				next = sheet.Number(float64(len(replacement)))
			}
			mutated[r][c] = next

			return Checksum(g, rows, cols) != Checksum(mutated, rows, cols)
		},
		gen.SliceOfN(6, gen.AlphaString()),
		gen.IntRange(0, 1000),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// Property: cells outside the hashed rectangle never affect the checksum.
func TestChecksumIgnoresCellsOutsideRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("mutation outside range keeps checksum", prop.ForAll(
		func(cells []string, extra string) bool {
			g := gridOf(cells, 2)
			rows := g.Rows()

			widened := g.Clone()
			widened.Set(0, 5, sheet.String(extra+"!"))
			widened.Set(rows+3, 0, sheet.String(extra+"?"))

			return Checksum(g, rows, 2) == Checksum(widened, rows, 2)
		},
		gen.SliceOfN(4, gen.AlphaString()),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// Property: the checksum is a pure function of the grid.
func TestChecksumDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("checksum is deterministic", prop.ForAll(
		func(cells []string) bool {
			g := gridOf(cells, 4)
			return Checksum(g, g.Rows(), 4) == Checksum(g.Clone(), g.Rows(), 4)
		},
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t)
}
