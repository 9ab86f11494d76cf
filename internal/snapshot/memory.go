package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRegistry is a process-local Registry.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryRegistry struct {
	mu    sync.Mutex
	items map[string]Snapshot
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{items: make(map[string]Snapshot)}
}

// Put implements Registry.
func (r *MemoryRegistry) Put(_ context.Context, s Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[s.ID] = s
	return nil
}

// Get implements Registry.
func (r *MemoryRegistry) Get(_ context.Context, id string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	return s, nil
}

// List implements Registry.
func (r *MemoryRegistry) List(_ context.Context, spreadsheetID string) ([]Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Snapshot{}
	for _, s := range r.items {
		if spreadsheetID == "" || s.DocumentRef.SpreadsheetID == spreadsheetID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete implements Registry.
func (r *MemoryRegistry) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	delete(r.items, id)
	return nil
}
