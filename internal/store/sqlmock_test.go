package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khill1269/servalsheets-sub001/internal/snapshot"
	"github.com/khill1269/servalsheets-sub001/internal/testutil"
	"github.com/khill1269/servalsheets-sub001/internal/txn"
)

func mockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewWithDB(db), mock
}

func TestTransactions_CreateDriverError(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs("a", "fp-a", "", sqlmock.AnyArg(), "pending", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(errors.New("disk I/O error"))

	_, err := s.Transactions().Create(context.Background(), pendingTx("a", testutil.Epoch))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create transaction a")
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestTransactions_CreateConflictReportsFalse(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectExec("INSERT INTO transactions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.Transactions().Create(context.Background(), pendingTx("a", testutil.Epoch))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransactions_GetScanError(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM transactions").
		WithArgs("a").
		WillReturnError(errors.New("database is locked"))

	_, err := s.Transactions().Get(context.Background(), "a")
	assert.ErrorContains(t, err, "database is locked")
}

func TestTransactions_GetDecodesRow(t *testing.T) {
	s, mock := mockStore(t)
	created := testutil.Epoch
	rows := sqlmock.NewRows([]string{"id", "request_fingerprint", "result_hash", "report", "state", "created_at", "expires_at"}).
		AddRow("a", "fp", "h", []byte("r"), "committed", created.UnixNano(), created.Add(time.Minute).UnixNano())
	mock.ExpectQuery("SELECT (.+) FROM transactions").WithArgs("a").WillReturnRows(rows)

	tx, err := s.Transactions().Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, txn.StateCommitted, tx.State)
	assert.True(t, tx.ExpiresAt.Equal(created.Add(time.Minute)))
}

func TestTransactions_DeleteExpiredError(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectExec("DELETE FROM transactions WHERE expires_at").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows unavailable")))

	_, err := s.Transactions().DeleteExpired(context.Background(), testutil.Epoch)
	assert.ErrorContains(t, err, "rows unavailable")
}

func TestSnapshots_ListRowError(t *testing.T) {
	s, mock := mockStore(t)
	rows := sqlmock.NewRows([]string{"id", "spreadsheet_id", "sheet", "external_copy_ref", "created_at"}).
		AddRow("s1", "doc", "", "copy", int64(1)).
		RowError(0, errors.New("corrupt page"))
	mock.ExpectQuery("SELECT (.+) FROM snapshots").WillReturnRows(rows)

	_, err := s.Snapshots().List(context.Background(), "doc")
	assert.ErrorContains(t, err, "corrupt page")
}

func TestSnapshots_PutError(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectExec("INSERT INTO snapshots").WillReturnError(errors.New("readonly database"))

	err := s.Snapshots().Put(context.Background(), snap("s1", "doc", testutil.Epoch))
	assert.ErrorContains(t, err, "put snapshot s1")
	assert.NotErrorIs(t, err, snapshot.ErrNotFound)
}
