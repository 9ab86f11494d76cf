package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/khill1269/servalsheets-sub001/internal/snapshot"
)

// SnapshotRegistry implements snapshot.Registry on the snapshots table.
type SnapshotRegistry struct {
	db *sql.DB
}

var _ snapshot.Registry = (*SnapshotRegistry)(nil)

// Put implements snapshot.Registry. Re-registering an id replaces it.
func (r *SnapshotRegistry) Put(ctx context.Context, s snapshot.Snapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, spreadsheet_id, sheet, external_copy_ref, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			spreadsheet_id = excluded.spreadsheet_id,
			sheet = excluded.sheet,
			external_copy_ref = excluded.external_copy_ref,
			created_at = excluded.created_at
	`,
		s.ID,
		s.DocumentRef.SpreadsheetID,
		s.DocumentRef.Sheet,
		s.ExternalCopyRef,
		toNanos(s.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", s.ID, err)
	}
	return nil
}

// Get implements snapshot.Registry.
func (r *SnapshotRegistry) Get(ctx context.Context, id string) (snapshot.Snapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, spreadsheet_id, sheet, external_copy_ref, created_at
		FROM snapshots
		WHERE id = ?
	`, id)
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Snapshot{}, fmt.Errorf("snapshot %s: %w", id, snapshot.ErrNotFound)
	}
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("get snapshot %s: %w", id, err)
	}
	return s, nil
}

// List implements snapshot.Registry.
func (r *SnapshotRegistry) List(ctx context.Context, spreadsheetID string) ([]snapshot.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, spreadsheet_id, sheet, external_copy_ref, created_at
		FROM snapshots
		WHERE ? = '' OR spreadsheet_id = ?
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`, spreadsheetID, spreadsheetID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := []snapshot.Snapshot{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return out, nil
}

// Delete implements snapshot.Registry.
func (r *SnapshotRegistry) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("snapshot %s: %w", id, snapshot.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (snapshot.Snapshot, error) {
	var (
		s         snapshot.Snapshot
		createdAt int64
	)
	err := row.Scan(&s.ID, &s.DocumentRef.SpreadsheetID, &s.DocumentRef.Sheet, &s.ExternalCopyRef, &createdAt)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	s.CreatedAt = fromNanos(createdAt)
	return s, nil
}
