package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/khill1269/servalsheets-sub001/internal/clock"
	"github.com/khill1269/servalsheets-sub001/internal/docstore"
	"github.com/khill1269/servalsheets-sub001/internal/idgen"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// Manager creates and manages snapshots.
//
// Thread-safety: all methods are safe for concurrent use when the copier
// and registry are.
type Manager struct {
	copier docstore.Copier
	reg    Registry
	clock  clock.Clock
	ids    idgen.Generator
	logger *slog.Logger
}

// NewManager creates a Manager. Nil clock and generator use the defaults.
func NewManager(copier docstore.Copier, reg Registry, clk clock.Clock, ids idgen.Generator) *Manager {
	return &Manager{
		copier: copier,
		reg:    reg,
		clock:  clock.OrSystem(clk),
		ids:    idgen.OrDefault(ids),
		logger: slog.Default().With("component", "snapshot"),
	}
}

// MaybeSnapshot creates a snapshot when want is triggered and returns nil
// otherwise.
func (m *Manager) MaybeSnapshot(ctx context.Context, ref sheet.DocumentRef, want Want) (*Snapshot, error) {
	if !want.Triggered() {
		return nil, nil
	}
	s, err := m.Create(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create copies the document and registers the copy.
func (m *Manager) Create(ctx context.Context, ref sheet.DocumentRef) (Snapshot, error) {
	copyID, err := m.copier.CopyDocument(ctx, ref)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: copy %s: %w", ErrCreateFailed, ref, err)
	}

	s := Snapshot{
		ID:              m.ids.Generate(),
		CreatedAt:       m.clock.Now(),
		DocumentRef:     ref,
		ExternalCopyRef: copyID,
	}
	if err := m.reg.Put(ctx, s); err != nil {
		if derr := m.copier.DeleteCopy(context.WithoutCancel(ctx), copyID); derr != nil {
			m.logger.Warn("orphaned snapshot copy", "copy", copyID, "error", derr)
		}
		return Snapshot{}, fmt.Errorf("%w: register %s: %w", ErrCreateFailed, s.ID, err)
	}

	m.logger.Info("snapshot created", "snapshot_id", s.ID, "document", ref.String(), "copy", copyID)
	return s, nil
}

// Get returns a registered snapshot.
func (m *Manager) Get(ctx context.Context, id string) (Snapshot, error) {
	return m.reg.Get(ctx, id)
}

// Restore materializes the snapshot as a new document and returns its
// reference. The snapshot stays registered.
func (m *Manager) Restore(ctx context.Context, id string) (sheet.DocumentRef, error) {
	s, err := m.reg.Get(ctx, id)
	if err != nil {
		return sheet.DocumentRef{}, err
	}
	ref, err := m.copier.RestoreFromCopy(ctx, s.ExternalCopyRef)
	if err != nil {
		return sheet.DocumentRef{}, fmt.Errorf("%w: snapshot %s: %w", ErrRestoreFailed, id, err)
	}
	if ref.Sheet == "" {
		ref.Sheet = s.DocumentRef.Sheet
	}
	m.logger.Info("snapshot restored", "snapshot_id", id, "restored", ref.String())
	return ref, nil
}

// Delete removes the external copy and the registry record. A copy that is
// already gone is not an error.
func (m *Manager) Delete(ctx context.Context, id string) error {
	s, err := m.reg.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := m.copier.DeleteCopy(ctx, s.ExternalCopyRef); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("snapshot %s: delete copy: %w", id, err)
	}
	if err := m.reg.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Info("snapshot deleted", "snapshot_id", id)
	return nil
}

// List returns snapshots of spreadsheetID (all when empty), oldest first.
func (m *Manager) List(ctx context.Context, spreadsheetID string) ([]Snapshot, error) {
	return m.reg.List(ctx, spreadsheetID)
}

// Prune deletes snapshots older than maxAge and, per document, all but the
// newest maxPerDocument. A zero limit disables that rule. It returns how
// many snapshots were deleted.
func (m *Manager) Prune(ctx context.Context, maxAge time.Duration, maxPerDocument int) (int, error) {
	all, err := m.reg.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("snapshot prune: %w", err)
	}

	byDoc := make(map[string][]Snapshot)
	var order []string
	for _, s := range all {
		id := s.DocumentRef.SpreadsheetID
		if _, ok := byDoc[id]; !ok {
			order = append(order, id)
		}
		byDoc[id] = append(byDoc[id], s)
	}

	cutoff := m.clock.Now().Add(-maxAge)
	deleted := 0
	for _, doc := range order {
		snaps := byDoc[doc]
		for i, s := range snaps {
			keep := len(snaps) - i
			tooOld := maxAge > 0 && s.CreatedAt.Before(cutoff)
			tooMany := maxPerDocument > 0 && keep > maxPerDocument
			if !tooOld && !tooMany {
				continue
			}
			if err := m.Delete(ctx, s.ID); err != nil {
				return deleted, fmt.Errorf("snapshot prune: %w", err)
			}
			deleted++
		}
	}
	return deleted, nil
}
