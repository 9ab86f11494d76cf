package engine

import (
	"context"

	"github.com/khill1269/servalsheets-sub001/internal/diff"
	"github.com/khill1269/servalsheets-sub001/internal/docstore"
	"github.com/khill1269/servalsheets-sub001/internal/fingerprint"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// SafetyOptions are the per-request safety controls. The zero value means
// no precondition, no scope limits, no snapshot and no idempotency.
type SafetyOptions struct {
	DryRun        bool                  `json:"dryRun,omitempty"`
	ExpectedState *fingerprint.Expected `json:"expectedState,omitempty"`
	TransactionID string                `json:"transactionId,omitempty"`
	AutoSnapshot  bool                  `json:"autoSnapshot,omitempty"`
	ForceSnapshot bool                  `json:"forceSnapshot,omitempty"`
	EffectScope   *EffectScope          `json:"effectScope,omitempty"`
	Verbosity     diff.Verbosity        `json:"verbosity,omitempty"`
}

// EffectScope bounds how much a single mutation may touch.
// MaxCellsAffected <= 0 disables the cell ceiling.
type EffectScope struct {
	MaxCellsAffected     int  `json:"maxCellsAffected"`
	MaxRowsAffected      *int `json:"maxRowsAffected,omitempty"`
	MaxColumnsAffected   *int `json:"maxColumnsAffected,omitempty"`
	RequireExplicitRange bool `json:"requireExplicitRange,omitempty"`
}

// Scope is a predicted or actual effect size.
type Scope struct {
	Cells   int `json:"cells"`
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

// ScopeViolation records a limit that a mutation exceeded after the fact.
type ScopeViolation struct {
	Limit   string `json:"limit"`
	Actual  int    `json:"actual"`
	Allowed int    `json:"allowed"`
}

// MutationReport describes the effect of a guarded mutation.
type MutationReport struct {
	CellsAffected    int             `json:"cellsAffected"`
	RowsAffected     *int            `json:"rowsAffected,omitempty"`
	ColumnsAffected  *int            `json:"columnsAffected,omitempty"`
	Diff             *diff.Diff      `json:"diff,omitempty"`
	Reversible       bool            `json:"reversible"`
	RevertSnapshotID string          `json:"revertSnapshotId,omitempty"`
	DryRun           bool            `json:"dryRun,omitempty"`
	ScopeExceeded    *ScopeViolation `json:"scopeExceeded,omitempty"`
}

func newReport(s Scope) *MutationReport {
	r := &MutationReport{CellsAffected: s.Cells}
	if s.Rows > 0 {
		r.RowsAffected = &s.Rows
	}
	if s.Columns > 0 {
		r.ColumnsAffected = &s.Columns
	}
	return r
}

// ApplyOutcome is what an action reports after writing.
type ApplyOutcome struct {
	Scope    Scope
	Affected []sheet.GridRange
}

// MutationAction is one requested change to a document. Implementations
// are closed over in package actions; the engine only sees this contract.
type MutationAction interface {
	// Target is the document (and sheet) the action writes to.
	Target() sheet.DocumentRef

	// Kind names the action, e.g. "write_range".
	Kind() string

	// Range is the range as the caller declared it, before resolution.
	Range() sheet.GridRange

	// Descriptor is a JSON-compatible description of the action's inputs.
	// It feeds the request fingerprint, so equal descriptors mean equal
	// requests.
	Descriptor() map[string]any

	// PredictScope estimates the effect against the observed sheet.
	PredictScope(observed fingerprint.Fingerprint) Scope

	// Apply performs the write.
	Apply(ctx context.Context, w docstore.Writer) (ApplyOutcome, error)

	// IsDestructive reports whether the action removes content.
	IsDestructive() bool
}

// DiffRanger is implemented by actions whose diff region differs from
// their declared range (row inserts shift everything below them).
type DiffRanger interface {
	DiffRange(observed fingerprint.Fingerprint) sheet.GridRange
}

// Simulator is implemented by actions that can compute their effect on a
// grid without writing. before covers origin; the result covers the same
// origin and may be larger.
type Simulator interface {
	Simulate(before sheet.Grid, origin sheet.Rect) sheet.Grid
}

// RowSpanner is implemented by actions that address whole rows by index.
// Their declared range has open column bounds but is still explicit.
type RowSpanner interface {
	RowSpan() (start, end int)
}

// MutationGuard is the single inbound entry point.
type MutationGuard interface {
	Guard(ctx context.Context, action MutationAction, opts SafetyOptions) (*MutationReport, error)
}
