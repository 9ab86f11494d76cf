package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khill1269/servalsheets-sub001/internal/docstore"
	"github.com/khill1269/servalsheets-sub001/internal/docstore/memstore"
	"github.com/khill1269/servalsheets-sub001/internal/idgen"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
	"github.com/khill1269/servalsheets-sub001/internal/testutil"
)

type fixture struct {
	store *memstore.Store
	reg   *MemoryRegistry
	clock *testutil.FixedClock
	mgr   *Manager
	ref   sheet.DocumentRef
}

func newFixture() *fixture {
	s := memstore.New()
	s.AddDocument("doc", "Budget", memstore.SheetSpec{
		Title:  "Data",
		Values: sheet.Grid{{sheet.String("a"), sheet.Number(1)}},
	})
	s.AddDocument("other", "Other", memstore.SheetSpec{Title: "Sheet1", Rows: 1, Cols: 1})
	reg := NewMemoryRegistry()
	clk := testutil.NewFixedClock(time.Time{})
	return &fixture{
		store: s,
		reg:   reg,
		clock: clk,
		mgr:   NewManager(s, reg, clk, idgen.NewSequence("snap")),
		ref:   sheet.DocumentRef{SpreadsheetID: "doc", Sheet: "Data"},
	}
}

func TestWant_Triggered(t *testing.T) {
	tests := []struct {
		want Want
		fire bool
	}{
		{Want{}, false},
		{Want{AutoSnapshot: true}, false},
		{Want{Destructive: true}, false},
		{Want{AutoSnapshot: true, Destructive: true}, true},
		{Want{Force: true}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.fire, tt.want.Triggered(), "%+v", tt.want)
	}
}

func TestMaybeSnapshot_NotTriggered(t *testing.T) {
	f := newFixture()
	s, err := f.mgr.MaybeSnapshot(context.Background(), f.ref, Want{AutoSnapshot: true})
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, 0, f.store.Calls(memstore.OpCopy))
}

func TestMaybeSnapshot_Creates(t *testing.T) {
	f := newFixture()
	s, err := f.mgr.MaybeSnapshot(context.Background(), f.ref, Want{AutoSnapshot: true, Destructive: true})
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, "snap-1", s.ID)
	assert.Equal(t, testutil.Epoch, s.CreatedAt)
	assert.Equal(t, f.ref, s.DocumentRef)
	assert.True(t, f.store.HasCopy(s.ExternalCopyRef))

	got, err := f.reg.Get(context.Background(), "snap-1")
	require.NoError(t, err)
	assert.Equal(t, *s, got)
}

func TestCreate_CopyFailure(t *testing.T) {
	f := newFixture()
	f.store.FailNext(memstore.OpCopy, &docstore.StatusError{Op: "copy", Code: 500, Message: "boom"})

	_, err := f.mgr.Create(context.Background(), f.ref)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCreateFailed)

	var se *docstore.StatusError
	assert.ErrorAs(t, err, &se)
}

type failingRegistry struct {
	*MemoryRegistry
}

func (failingRegistry) Put(context.Context, Snapshot) error {
	return errors.New("disk full")
}

func TestCreate_RegistryFailureDeletesCopy(t *testing.T) {
	f := newFixture()
	mgr := NewManager(f.store, failingRegistry{NewMemoryRegistry()}, f.clock, idgen.NewSequence("snap"))

	_, err := mgr.Create(context.Background(), f.ref)
	assert.ErrorIs(t, err, ErrCreateFailed)
	assert.Equal(t, 1, f.store.Calls(memstore.OpDeleteCopy))
}

func TestRestore(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	s, err := f.mgr.Create(ctx, f.ref)
	require.NoError(t, err)

	_, err = f.store.ApplyBatch(ctx, f.ref, []docstore.Request{docstore.ClearRange{Range: sheet.GridRange{Sheet: "Data"}}})
	require.NoError(t, err)

	restored, err := f.mgr.Restore(ctx, s.ID)
	require.NoError(t, err)
	assert.NotEqual(t, f.ref.SpreadsheetID, restored.SpreadsheetID)
	assert.Equal(t, "Data", restored.Sheet)

	g, err := f.store.Grid(restored)
	require.NoError(t, err)
	assert.Equal(t, sheet.String("a"), g[0][0])
}

func TestRestore_Unknown(t *testing.T) {
	f := newFixture()
	_, err := f.mgr.Restore(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRestore_Failure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s, err := f.mgr.Create(ctx, f.ref)
	require.NoError(t, err)

	f.store.FailNext(memstore.OpRestore, errors.New("drive down"))
	_, err = f.mgr.Restore(ctx, s.ID)
	assert.ErrorIs(t, err, ErrRestoreFailed)
}

func TestDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s, err := f.mgr.Create(ctx, f.ref)
	require.NoError(t, err)

	require.NoError(t, f.mgr.Delete(ctx, s.ID))
	assert.False(t, f.store.HasCopy(s.ExternalCopyRef))
	_, err = f.reg.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, f.mgr.Delete(ctx, s.ID), ErrNotFound)
}

func TestDelete_CopyAlreadyGone(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s, err := f.mgr.Create(ctx, f.ref)
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteCopy(ctx, s.ExternalCopyRef))

	assert.NoError(t, f.mgr.Delete(ctx, s.ID))
}

func TestList(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.mgr.Create(ctx, f.ref)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.mgr.Create(ctx, sheet.DocumentRef{SpreadsheetID: "other"})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.mgr.Create(ctx, f.ref)
	require.NoError(t, err)

	docSnaps, err := f.mgr.List(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, docSnaps, 2)
	assert.Equal(t, "snap-1", docSnaps[0].ID)
	assert.Equal(t, "snap-3", docSnaps[1].ID)

	all, err := f.mgr.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPrune(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := f.mgr.Create(ctx, f.ref)
		require.NoError(t, err)
		f.clock.Advance(time.Hour)
	}
	_, err := f.mgr.Create(ctx, sheet.DocumentRef{SpreadsheetID: "other"})
	require.NoError(t, err)

	// snap-1 is 4h old; keep at most 2 per document.
	n, err := f.mgr.Prune(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	left, err := f.mgr.List(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "snap-3", left[0].ID)

	n, err = f.mgr.Prune(ctx, 90*time.Minute, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "snap-3 is 2h old")

	all, err := f.mgr.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
