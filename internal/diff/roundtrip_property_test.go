package diff

import (
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

var textCells = []string{"a", "b", "Rent", "=A1", "=SUM(A1:A3)"}

// genGrid generates 4x3 grids. Cells are encoded as strings so every
// generator shares one result type: "" is empty, "#n" a number, "?b" a
// bool, "=..." a formula. No cell generator filters, so nothing is
// discarded.
func genGrid() gopter.Gen {
	cell := gen.OneGenOf(
		gen.Const(""),
		gen.IntRange(0, len(textCells)-1).Map(func(i int) string { return textCells[i] }),
		gen.IntRange(-50, 50).Map(func(n int) string { return "#" + strconv.Itoa(n) }),
		gen.Bool().Map(func(b bool) string { return "?" + strconv.FormatBool(b) }),
	)
	return gen.SliceOfN(4, gen.SliceOfN(3, cell)).Map(func(rows [][]string) sheet.Grid {
		g := make(sheet.Grid, len(rows))
		for r, row := range rows {
			for _, raw := range row {
				g[r] = append(g[r], decodeCell(raw))
			}
		}
		return g
	})
}

func decodeCell(raw string) sheet.Value {
	switch {
	case strings.HasPrefix(raw, "#"):
		n, _ := strconv.Atoi(raw[1:])
		return sheet.Number(float64(n))
	case strings.HasPrefix(raw, "?"):
		return sheet.Bool(raw == "?true")
	case strings.HasPrefix(raw, "="):
		return sheet.Formula(raw)
	case raw == "":
		return sheet.Empty{}
	default:
		return sheet.String(raw)
	}
}

// Property: applying every change of a FULL diff onto before yields after.
func TestFullDiffRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ApplyChanges(before, BuildChanges(before, after)) == after", prop.ForAll(
		func(before, after sheet.Grid, row, col int) bool {
			origin := sheet.Rect{Row: row, Col: col}
			c := NewComputer(DefaultConfig(), seeded())
			d := c.Compute(Input{
				Requested:      TierFull,
				EstimatedCells: 12,
				Sheet:          "S",
				Origin:         origin,
				BeforeGrid:     before,
				AfterGrid:      after,
			})
			if d.Tier != TierFull {
				return false
			}
			return ApplyChanges(before, origin, d.Full.Changes).Equal(after)
		},
		genGrid(),
		genGrid(),
		gen.IntRange(0, 100),
		gen.IntRange(0, 30),
	))

	properties.TestingRun(t)
}
