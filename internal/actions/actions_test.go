package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khill1269/servalsheets-sub001/internal/docstore/memstore"
	"github.com/khill1269/servalsheets-sub001/internal/engine"
	"github.com/khill1269/servalsheets-sub001/internal/fingerprint"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

var docRef = sheet.DocumentRef{SpreadsheetID: "doc1", Sheet: "Data"}

// seeded returns a 10x4 sheet where cell (r, c) holds r*10+c.
func seeded(t *testing.T) *memstore.Store {
	t.Helper()
	g := sheet.NewGrid(10, 4)
	for r := range g {
		for c := range g[r] {
			g[r][c] = sheet.Number(float64(r*10 + c))
		}
	}
	s := memstore.New()
	s.AddDocument("doc1", "Book", memstore.SheetSpec{Title: "Data", Values: g})
	return s
}

func allActions() []Action {
	return []Action{
		WriteRange{Doc: docRef, Area: sheet.NewRange("Data", 1, 3, 1, 3), Values: sheet.Grid{
			{sheet.String("x"), sheet.String("y")},
			{sheet.Bool(true), sheet.Formula("=A1")},
		}},
		WriteRange{Doc: docRef, Area: sheet.GridRange{StartRow: ptr(9), StartCol: ptr(3)}, Values: sheet.Grid{
			{sheet.String("grow"), sheet.String("wide")},
			{sheet.String("tall")},
		}},
		ClearRange{Doc: docRef, Area: sheet.NewRange("Data", 0, 2, 0, 4)},
		ClearRange{Doc: docRef, Area: sheet.GridRange{Sheet: "Data", StartCol: ptr(1), EndCol: ptr(3)}},
		InsertRows{Doc: docRef, Start: 2, Count: 3},
		InsertRows{Doc: docRef, Start: 10, Count: 1},
		DeleteRows{Doc: docRef, Start: 4, End: 7},
		DeleteRows{Doc: docRef, Start: 0, End: 10},
	}
}

func ptr(n int) *int { return &n }

func TestPredictScope_MatchesStore(t *testing.T) {
	for _, a := range allActions() {
		t.Run(a.Kind()+" "+a.Range().A1(), func(t *testing.T) {
			ctx := context.Background()
			s := seeded(t)
			fp, err := fingerprint.NewService(s).Observe(ctx, a.Target(), nil)
			require.NoError(t, err)

			predicted := a.PredictScope(fp)
			out, err := a.Apply(ctx, s)
			require.NoError(t, err)
			assert.Equal(t, predicted, out.Scope)
		})
	}
}

func TestSimulate_MatchesStore(t *testing.T) {
	for _, a := range allActions() {
		t.Run(a.Kind()+" "+a.Range().A1(), func(t *testing.T) {
			ctx := context.Background()
			s := seeded(t)
			fp, err := fingerprint.NewService(s).Observe(ctx, a.Target(), nil)
			require.NoError(t, err)

			rng := a.Range()
			if dr, ok := a.(engine.DiffRanger); ok {
				rng = dr.DiffRange(fp)
			}
			origin := rng.Extent(fp.RowCount, fp.ColumnCount)

			full, err := s.Grid(docRef)
			require.NoError(t, err)
			before := full.Sub(origin)

			sim, ok := a.(engine.Simulator)
			require.True(t, ok, "every action simulates")
			predicted := sim.Simulate(before, origin)

			_, err = a.Apply(ctx, s)
			require.NoError(t, err)
			after, err := s.Grid(docRef)
			require.NoError(t, err)

			assert.True(t, after.Sub(origin).Equal(predicted),
				"simulated %v, store has %v", predicted, after.Sub(origin))
		})
	}
}

func TestDestructive(t *testing.T) {
	assert.False(t, WriteRange{}.IsDestructive())
	assert.True(t, ClearRange{}.IsDestructive())
	assert.False(t, InsertRows{}.IsDestructive())
	assert.True(t, DeleteRows{}.IsDestructive())
}

func TestRangeTakesSheetFromDocument(t *testing.T) {
	a := ClearRange{Doc: docRef, Area: sheet.NewRange("", 0, 1, 0, 1)}
	assert.Equal(t, "Data", a.Range().Sheet)

	b := ClearRange{Doc: sheet.DocumentRef{SpreadsheetID: "doc1"}, Area: sheet.NewRange("Other", 0, 1, 0, 1)}
	assert.Equal(t, "Other", b.Target().Sheet)
}

func TestDescriptorIdentifiesRequest(t *testing.T) {
	a := WriteRange{Doc: docRef, Area: sheet.NewRange("Data", 0, 1, 0, 1), Values: sheet.Grid{{sheet.Number(1)}}}
	b := WriteRange{Doc: docRef, Area: sheet.NewRange("Data", 0, 1, 0, 1), Values: sheet.Grid{{sheet.String("1")}}}

	fa, err := engine.RequestFingerprint(a, engine.SafetyOptions{})
	require.NoError(t, err)
	fb, err := engine.RequestFingerprint(b, engine.SafetyOptions{})
	require.NoError(t, err)
	again, err := engine.RequestFingerprint(a, engine.SafetyOptions{TransactionID: "t-1"})
	require.NoError(t, err)

	assert.NotEqual(t, fa, fb, "number and string differ")
	assert.Equal(t, fa, again, "transaction id is not part of the request")

	text := WriteRange{Doc: docRef, Area: sheet.NewRange("Data", 0, 1, 0, 1), Values: sheet.Grid{{sheet.String("=A1")}}}
	formula := WriteRange{Doc: docRef, Area: sheet.NewRange("Data", 0, 1, 0, 1), Values: sheet.Grid{{sheet.Formula("=A1")}}}
	ft, err := engine.RequestFingerprint(text, engine.SafetyOptions{})
	require.NoError(t, err)
	ff, err := engine.RequestFingerprint(formula, engine.SafetyOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, ft, ff, "literal text and formula differ")
}

func TestFromSpec(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		want    Action
		wantErr string
	}{
		{
			name: "write range",
			spec: Spec{Kind: KindWriteRange, SpreadsheetID: "doc1", Range: "Data!B2:C2", Values: [][]any{{"a", 2.5}}},
			want: WriteRange{
				Doc:    sheet.DocumentRef{SpreadsheetID: "doc1"},
				Area:   sheet.NewRange("Data", 1, 2, 1, 3),
				Values: sheet.Grid{{sheet.String("a"), sheet.Number(2.5)}},
			},
		},
		{
			name: "clear whole sheet",
			spec: Spec{Kind: KindClearRange, SpreadsheetID: "doc1", Sheet: "Data"},
			want: ClearRange{Doc: docRef},
		},
		{
			name: "insert rows",
			spec: Spec{Kind: KindInsertRows, SpreadsheetID: "doc1", Sheet: "Data", StartIndex: 3, Count: 2},
			want: InsertRows{Doc: docRef, Start: 3, Count: 2},
		},
		{
			name: "delete rows",
			spec: Spec{Kind: KindDeleteRows, SpreadsheetID: "doc1", Sheet: "Data", StartIndex: 3, EndIndex: 5},
			want: DeleteRows{Doc: docRef, Start: 3, End: 5},
		},
		{
			name:    "unknown kind",
			spec:    Spec{Kind: "sort_range", SpreadsheetID: "doc1"},
			wantErr: "unknown action kind",
		},
		{
			name:    "missing document",
			spec:    Spec{Kind: KindClearRange},
			wantErr: "spreadsheetId is required",
		},
		{
			name:    "write without range",
			spec:    Spec{Kind: KindWriteRange, SpreadsheetID: "doc1", Values: [][]any{{"a"}}},
			wantErr: "range is required",
		},
		{
			name:    "values do not fit",
			spec:    Spec{Kind: KindWriteRange, SpreadsheetID: "doc1", Range: "A1:A1", Values: [][]any{{"a", "b"}}},
			wantErr: "do not fit",
		},
		{
			name:    "sheet mismatch",
			spec:    Spec{Kind: KindClearRange, SpreadsheetID: "doc1", Sheet: "Data", Range: "Other!A1:B2"},
			wantErr: "does not match",
		},
		{
			name:    "empty delete span",
			spec:    Spec{Kind: KindDeleteRows, SpreadsheetID: "doc1", StartIndex: 4, EndIndex: 4},
			wantErr: "invalid span",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromSpec(tt.spec)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromSpec_UnknownKindIsSentinel(t *testing.T) {
	_, err := FromSpec(Spec{Kind: "merge_cells", SpreadsheetID: "doc1"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}
