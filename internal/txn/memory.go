package txn

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRegistry is a process-local Registry. Entries do not survive restarts.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[string]*Transaction
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[string]*Transaction)}
}

// Get implements Registry.
func (r *MemoryRegistry) Get(_ context.Context, id string) (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.entries[id]
	if !ok {
		return nil, nil
	}
	return tx.Clone(), nil
}

// Create implements Registry.
func (r *MemoryRegistry) Create(_ context.Context, tx *Transaction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[tx.ID]; ok {
		return false, nil
	}
	r.entries[tx.ID] = tx.Clone()
	return true, nil
}

// Update implements Registry.
func (r *MemoryRegistry) Update(_ context.Context, tx *Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[tx.ID]; !ok {
		return fmt.Errorf("transaction %s: %w", tx.ID, ErrNotFound)
	}
	r.entries[tx.ID] = tx.Clone()
	return nil
}

// Delete implements Registry.
func (r *MemoryRegistry) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	return nil
}

// DeleteExpired implements Registry.
func (r *MemoryRegistry) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, tx := range r.entries {
		if tx.Expired(now) {
			delete(r.entries, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of entries.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
