package engine

import (
	"context"
	"errors"
	"time"

	"github.com/khill1269/servalsheets-sub001/internal/sheet"
	"github.com/khill1269/servalsheets-sub001/internal/snapshot"
)

// RestoreSnapshot materializes a snapshot as a new document. A failure is
// terminal for the restore only; the snapshot stays registered.
func (e *Engine) RestoreSnapshot(ctx context.Context, id string) (sheet.DocumentRef, error) {
	ref, err := e.snapshots.Restore(ctx, id)
	if err != nil {
		return sheet.DocumentRef{}, snapshotError(id, err)
	}
	return ref, nil
}

// GetSnapshot returns one registered snapshot.
func (e *Engine) GetSnapshot(ctx context.Context, id string) (snapshot.Snapshot, error) {
	s, err := e.snapshots.Get(ctx, id)
	if err != nil {
		return snapshot.Snapshot{}, snapshotError(id, err)
	}
	return s, nil
}

// ListSnapshots returns the snapshots of spreadsheetID, or all of them when
// it is empty, oldest first.
func (e *Engine) ListSnapshots(ctx context.Context, spreadsheetID string) ([]snapshot.Snapshot, error) {
	snaps, err := e.snapshots.List(ctx, spreadsheetID)
	if err != nil {
		return nil, classifyStoreError("list snapshots", err)
	}
	return snaps, nil
}

// DeleteSnapshot removes a snapshot and its external copy.
func (e *Engine) DeleteSnapshot(ctx context.Context, id string) error {
	if err := e.snapshots.Delete(ctx, id); err != nil {
		return snapshotError(id, err)
	}
	return nil
}

// PruneSnapshots applies retention and returns how many snapshots were
// deleted.
func (e *Engine) PruneSnapshots(ctx context.Context, maxAge time.Duration, maxPerDocument int) (int, error) {
	n, err := e.snapshots.Prune(ctx, maxAge, maxPerDocument)
	if err != nil {
		return n, classifyStoreError("prune snapshots", err)
	}
	return n, nil
}

// SweepTransactions evicts expired transaction entries.
func (e *Engine) SweepTransactions(ctx context.Context) (int, error) {
	n, err := e.txns.Sweep(ctx)
	if err != nil {
		return n, registryError("sweep transactions", err)
	}
	return n, nil
}

func snapshotError(id string, err error) *EngineError {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return cancelled(err)
	case errors.Is(err, snapshot.ErrNotFound):
		e := newError(KindSnapshotNotFound, "snapshot %s not found", id)
		e.Err = err
		return e
	case errors.Is(err, snapshot.ErrRestoreFailed):
		e := classifyStoreError("restore", err)
		cause := e.Kind
		e.Kind = KindSnapshotRestoreFailed
		e.Message = "restore of snapshot " + id + " failed"
		if e.Details == nil {
			e.Details = map[string]any{}
		}
		e.Details["cause"] = string(cause)
		return e
	}
	return classifyStoreError("snapshot "+id, err)
}
