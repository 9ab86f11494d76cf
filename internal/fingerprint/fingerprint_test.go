package fingerprint

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khill1269/servalsheets-sub001/internal/docstore"
	"github.com/khill1269/servalsheets-sub001/internal/docstore/memstore"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

func newStore() (*memstore.Store, sheet.DocumentRef) {
	s := memstore.New()
	s.AddDocument("doc", "Budget", memstore.SheetSpec{
		Title: "Data",
		Rows:  5,
		Cols:  3,
		Values: sheet.Grid{
			{sheet.String("name"), sheet.String("qty"), sheet.Empty{}},
			{sheet.String("apple"), sheet.Number(3), sheet.Formula("=B2*2")},
			{sheet.String("pear"), sheet.Number(4), sheet.Bool(true)},
		},
	})
	return s, sheet.DocumentRef{SpreadsheetID: "doc", Sheet: "Data"}
}

func TestObserve_FullSheet(t *testing.T) {
	s, ref := newStore()
	svc := NewService(s)

	fp, err := svc.Observe(context.Background(), ref, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, fp.RowCount)
	assert.Equal(t, 3, fp.ColumnCount)
	assert.Equal(t, "Data", fp.Title)
	assert.Equal(t, "Data", fp.ChecksumRange)
	assert.Equal(t, []string{"name", "qty"}, fp.FirstRowValues)
	assert.Len(t, fp.Checksum, 64)
}

func TestObserve_Deterministic(t *testing.T) {
	s, ref := newStore()
	svc := NewService(s)

	a, err := svc.Observe(context.Background(), ref, nil)
	require.NoError(t, err)
	b, err := svc.Observe(context.Background(), ref, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestObserve_ChecksumRange(t *testing.T) {
	s, ref := newStore()
	svc := NewService(s)
	ctx := context.Background()
	rng := sheet.NewRange("", 0, 2, 0, 2)

	before, err := svc.Observe(ctx, ref, &rng)
	require.NoError(t, err)
	assert.Equal(t, "Data!A1:B2", before.ChecksumRange)

	// Outside the range: C3.
	_, err = s.ApplyBatch(ctx, ref, []docstore.Request{docstore.UpdateCells{
		Range: sheet.NewRange("Data", 2, 3, 2, 3), Values: sheet.Grid{{sheet.String("changed")}},
	}})
	require.NoError(t, err)
	after, err := svc.Observe(ctx, ref, &rng)
	require.NoError(t, err)
	assert.Equal(t, before.Checksum, after.Checksum)

	// Inside the range: B2.
	_, err = s.ApplyBatch(ctx, ref, []docstore.Request{docstore.UpdateCells{
		Range: sheet.NewRange("Data", 1, 2, 1, 2), Values: sheet.Grid{{sheet.Number(30)}},
	}})
	require.NoError(t, err)
	after, err = svc.Observe(ctx, ref, &rng)
	require.NoError(t, err)
	assert.NotEqual(t, before.Checksum, after.Checksum)
}

func TestObserve_FirstRowIgnoresChecksumRange(t *testing.T) {
	s, ref := newStore()
	svc := NewService(s)
	ctx := context.Background()

	whole, err := svc.Observe(ctx, ref, nil)
	require.NoError(t, err)
	reads := s.Calls(memstore.OpReadCells)

	body := sheet.NewRange("", 1, 3, 0, 2)
	fp, err := svc.Observe(ctx, ref, &body)
	require.NoError(t, err)
	assert.Equal(t, "Data!A2:B3", fp.ChecksumRange)
	assert.Equal(t, whole.FirstRowValues, fp.FirstRowValues)
	assert.Equal(t, reads+2, s.Calls(memstore.OpReadCells))

	// A range holding all of row 0 needs no second read.
	top := sheet.NewRange("", 0, 2, 0, 3)
	reads = s.Calls(memstore.OpReadCells)
	fp, err = svc.Observe(ctx, ref, &top)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "qty"}, fp.FirstRowValues)
	assert.Equal(t, reads+1, s.Calls(memstore.OpReadCells))
}

func TestObserve_ReadsOnlyMetadataForEmptySheet(t *testing.T) {
	s := memstore.New()
	s.AddDocument("doc", "Empty", memstore.SheetSpec{Title: "Blank"})
	svc := NewService(s)

	fp, err := svc.Observe(context.Background(), sheet.DocumentRef{SpreadsheetID: "doc"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, fp.RowCount)
	assert.Equal(t, []string{}, fp.FirstRowValues)
	assert.Equal(t, 0, s.Calls(memstore.OpReadCells))
}

func TestObserve_NotFound(t *testing.T) {
	s, _ := newStore()
	svc := NewService(s)

	_, err := svc.Observe(context.Background(), sheet.DocumentRef{SpreadsheetID: "nope"}, nil)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestObserve_TransportError(t *testing.T) {
	s, ref := newStore()
	s.FailNext(memstore.OpReadCells, &docstore.StatusError{Op: "read", Code: 503, Message: "unavailable"})
	svc := NewService(s)

	_, err := svc.Observe(context.Background(), ref, nil)
	var se *docstore.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 503, se.Code)
}

func TestChecksum_RaggedEqualsPadded(t *testing.T) {
	ragged := sheet.Grid{{sheet.String("a")}, {}}
	padded := sheet.Grid{{sheet.String("a"), sheet.Empty{}}, {sheet.Empty{}, sheet.Empty{}}}
	assert.Equal(t, Checksum(ragged, 2, 2), Checksum(padded, 2, 2))
}

func TestChecksum_TypeTagged(t *testing.T) {
	str := sheet.Grid{{sheet.String("1")}}
	num := sheet.Grid{{sheet.Number(1)}}
	boolean := sheet.Grid{{sheet.Bool(true)}}
	assert.NotEqual(t, Checksum(str, 1, 1), Checksum(num, 1, 1))
	assert.NotEqual(t, Checksum(num, 1, 1), Checksum(boolean, 1, 1))
}

func TestChecksum_DimensionsMatter(t *testing.T) {
	g := sheet.Grid{{sheet.String("a"), sheet.String("b")}}
	assert.NotEqual(t, Checksum(g, 1, 2), Checksum(g, 2, 1))
	assert.NotEqual(t, Checksum(g, 1, 2), Checksum(g, 1, 3))
}

func TestChecksum_CellBoundaries(t *testing.T) {
	a := sheet.Grid{{sheet.String("ab"), sheet.String("c")}}
	b := sheet.Grid{{sheet.String("a"), sheet.String("bc")}}
	assert.NotEqual(t, Checksum(a, 1, 2), Checksum(b, 1, 2))
}

func TestChecksum_NFCEquivalent(t *testing.T) {
	composed := sheet.Grid{{sheet.String("caf\u00e9")}}
	decomposed := sheet.Grid{{sheet.String("cafe\u0301")}}
	assert.Equal(t, Checksum(composed, 1, 1), Checksum(decomposed, 1, 1))
}

func TestChecksum_NegativeZero(t *testing.T) {
	negZero := sheet.Grid{{sheet.Number(math.Copysign(0, -1))}}
	assert.Equal(t, Checksum(sheet.Grid{{sheet.Number(0)}}, 1, 1), Checksum(negZero, 1, 1))
}

func TestHashWithDomain_Separation(t *testing.T) {
	assert.NotEqual(t, HashWithDomain("foo", []byte("bar")), HashWithDomain("foob", []byte("ar")))
	assert.NotEqual(t, HashWithDomain(DomainChecksum, nil), HashWithDomain(DomainRequest, nil))
}

func TestCanonicalRange(t *testing.T) {
	tests := []struct {
		in, sheet, want string
	}{
		{"A1:B2", "Data", "Data!A1:B2"},
		{"Data!$A$1:$B$2", "Other", "Data!A1:B2"},
		{"'My Sheet'!C3", "", "'My Sheet'!C3"},
		{"Data", "", "Data"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalRange(tt.in, tt.sheet))
		})
	}
}
