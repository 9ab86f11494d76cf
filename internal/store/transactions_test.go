package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khill1269/servalsheets-sub001/internal/testutil"
	"github.com/khill1269/servalsheets-sub001/internal/txn"
)

func pendingTx(id string, now time.Time) *txn.Transaction {
	return &txn.Transaction{
		ID:                 id,
		RequestFingerprint: "fp-" + id,
		State:              txn.StatePending,
		CreatedAt:          now,
		ExpiresAt:          now.Add(10 * time.Minute),
	}
}

func TestTransactions_CreateGetUpdate(t *testing.T) {
	reg := createTestStore(t).Transactions()
	ctx := context.Background()
	now := testutil.Epoch

	got, err := reg.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err := reg.Create(ctx, pendingTx("a", now))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.Create(ctx, pendingTx("a", now))
	require.NoError(t, err)
	assert.False(t, ok, "second create must not overwrite")

	got, err = reg.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "fp-a", got.RequestFingerprint)
	assert.Equal(t, txn.StatePending, got.State)
	assert.True(t, got.CreatedAt.Equal(now))
	assert.Nil(t, got.Report)

	got.State = txn.StateCommitted
	got.Report = []byte(`{"cellsAffected":1}`)
	got.ResultHash = txn.ReportHash(got.Report)
	require.NoError(t, reg.Update(ctx, got))

	again, err := reg.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, txn.StateCommitted, again.State)
	assert.Equal(t, got.Report, again.Report)
	assert.Equal(t, got.ResultHash, again.ResultHash)
}

func TestTransactions_UpdateMissing(t *testing.T) {
	reg := createTestStore(t).Transactions()
	err := reg.Update(context.Background(), pendingTx("nope", testutil.Epoch))
	assert.ErrorIs(t, err, txn.ErrNotFound)
}

func TestTransactions_DeleteAndExpire(t *testing.T) {
	reg := createTestStore(t).Transactions()
	ctx := context.Background()
	now := testutil.Epoch

	for i, id := range []string{"a", "b", "c"} {
		_, err := reg.Create(ctx, pendingTx(id, now.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	require.NoError(t, reg.Delete(ctx, "a"))
	require.NoError(t, reg.Delete(ctx, "a"), "deleting a missing entry is not an error")

	n, err := reg.DeleteExpired(ctx, now.Add(11*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := reg.Get(ctx, "c")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestTransactions_SurviveReopen(t *testing.T) {
	path := t.TempDir() + "/txn.db"
	ctx := context.Background()
	clk := testutil.NewFixedClock(time.Time{})

	s1, err := Open(path)
	require.NoError(t, err)
	c1 := txn.NewCoordinator(s1.Transactions(), clk, time.Minute)
	ticket, d, err := c1.Admit(ctx, "tx", "fp")
	require.NoError(t, err)
	require.Equal(t, txn.Fresh, d.Outcome)
	require.NoError(t, ticket.Commit(ctx, []byte("report")))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	c2 := txn.NewCoordinator(s2.Transactions(), clk, time.Minute)

	d, err = c2.Lookup(ctx, "tx", "fp")
	require.NoError(t, err)
	assert.Equal(t, txn.Replay, d.Outcome)
	assert.Equal(t, "report", string(d.Report))

	d, err = c2.Lookup(ctx, "tx", "other")
	require.NoError(t, err)
	assert.Equal(t, txn.Conflict, d.Outcome)
}
