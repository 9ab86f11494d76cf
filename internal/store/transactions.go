package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/khill1269/servalsheets-sub001/internal/txn"
)

// TransactionRegistry implements txn.Registry on the transactions table.
type TransactionRegistry struct {
	db *sql.DB
}

var _ txn.Registry = (*TransactionRegistry)(nil)

// Get implements txn.Registry.
func (r *TransactionRegistry) Get(ctx context.Context, id string) (*txn.Transaction, error) {
	var (
		tx        txn.Transaction
		state     string
		createdAt int64
		expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, request_fingerprint, result_hash, report, state, created_at, expires_at
		FROM transactions
		WHERE id = ?
	`, id).Scan(&tx.ID, &tx.RequestFingerprint, &tx.ResultHash, &tx.Report, &state, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	tx.State = txn.State(state)
	tx.CreatedAt = fromNanos(createdAt)
	tx.ExpiresAt = fromNanos(expiresAt)
	return &tx, nil
}

// Create implements txn.Registry. Uses ON CONFLICT(id) DO NOTHING so
// concurrent processes agree on a single winner.
func (r *TransactionRegistry) Create(ctx context.Context, tx *txn.Transaction) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions
		(id, request_fingerprint, result_hash, report, state, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		tx.ID,
		tx.RequestFingerprint,
		tx.ResultHash,
		tx.Report,
		string(tx.State),
		toNanos(tx.CreatedAt),
		toNanos(tx.ExpiresAt),
	)
	if err != nil {
		return false, fmt.Errorf("create transaction %s: %w", tx.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create transaction %s: %w", tx.ID, err)
	}
	return n == 1, nil
}

// Update implements txn.Registry.
func (r *TransactionRegistry) Update(ctx context.Context, tx *txn.Transaction) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET request_fingerprint = ?, result_hash = ?, report = ?, state = ?, created_at = ?, expires_at = ?
		WHERE id = ?
	`,
		tx.RequestFingerprint,
		tx.ResultHash,
		tx.Report,
		string(tx.State),
		toNanos(tx.CreatedAt),
		toNanos(tx.ExpiresAt),
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", tx.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", tx.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update transaction %s: %w", tx.ID, txn.ErrNotFound)
	}
	return nil
}

// Delete implements txn.Registry.
func (r *TransactionRegistry) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}

// DeleteExpired implements txn.Registry.
func (r *TransactionRegistry) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE expires_at <= ?`, toNanos(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired transactions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired transactions: %w", err)
	}
	return int(n), nil
}
