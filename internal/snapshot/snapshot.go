// Package snapshot creates, lists, restores and prunes independent document
// copies used to roll back destructive mutations.
//
// A Snapshot outlives the request that created it. It is removed only by an
// explicit Delete or by retention (Prune).
package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

var (
	// ErrNotFound is returned for an unknown snapshot id.
	ErrNotFound = errors.New("snapshot: not found")

	// ErrCreateFailed wraps failures to copy or register a snapshot.
	ErrCreateFailed = errors.New("snapshot: create failed")

	// ErrRestoreFailed wraps failures to restore from a copy.
	ErrRestoreFailed = errors.New("snapshot: restore failed")
)

// Snapshot is a registered document copy.
type Snapshot struct {
	ID              string            `json:"id"`
	CreatedAt       time.Time         `json:"createdAt"`
	DocumentRef     sheet.DocumentRef `json:"documentRef"`
	ExternalCopyRef string            `json:"externalCopyRef"`
}

// Registry stores snapshot records.
//
// Implementations: MemoryRegistry and store.Store (SQLite).
type Registry interface {
	Put(ctx context.Context, s Snapshot) error

	// Get returns ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (Snapshot, error)

	// List returns snapshots of spreadsheetID (all when empty), oldest first.
	List(ctx context.Context, spreadsheetID string) ([]Snapshot, error)

	// Delete returns ErrNotFound for an unknown id.
	Delete(ctx context.Context, id string) error
}

// Want describes whether a mutation asks for a snapshot.
type Want struct {
	AutoSnapshot bool
	Force        bool
	Destructive  bool
}

// Triggered reports whether a snapshot should be taken: auto snapshots
// apply to destructive actions only, forced ones always.
func (w Want) Triggered() bool {
	return w.Force || (w.AutoSnapshot && w.Destructive)
}
