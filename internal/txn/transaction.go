package txn

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long a transaction entry is honoured.
const DefaultTTL = 10 * time.Minute

// State is the lifecycle state of a transaction entry.
type State string

const (
	StatePending    State = "pending"
	StateCommitted  State = "committed"
	StateConflicted State = "conflicted"
	StateExpired    State = "expired"
)

// Transaction is one registry entry.
type Transaction struct {
	ID                 string    `json:"transactionId"`
	RequestFingerprint string    `json:"requestFingerprint"`
	ResultHash         string    `json:"resultHash,omitempty"`
	Report             []byte    `json:"report,omitempty"`
	State              State     `json:"state"`
	CreatedAt          time.Time `json:"createdAt"`
	ExpiresAt          time.Time `json:"expiresAt"`
}

// Expired reports whether the entry's TTL has elapsed at now.
func (t *Transaction) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Clone returns a deep copy.
func (t *Transaction) Clone() *Transaction {
	cp := *t
	cp.Report = append([]byte(nil), t.Report...)
	return &cp
}

// ErrNotFound is returned by Registry.Update for a missing entry.
var ErrNotFound = errors.New("txn: not found")

// Registry stores transaction entries.
//
// Implementations: MemoryRegistry, RedisRegistry, and store.Store (SQLite).
type Registry interface {
	// Get returns the entry for id, or (nil, nil) when absent.
	Get(ctx context.Context, id string) (*Transaction, error)

	// Create inserts tx if no entry with its id exists. It reports whether
	// the insert happened.
	Create(ctx context.Context, tx *Transaction) (bool, error)

	// Update replaces an existing entry.
	Update(ctx context.Context, tx *Transaction) error

	// Delete removes the entry for id. Deleting a missing entry is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes entries whose ExpiresAt is not after now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
