package harness

import (
	"github.com/khill1269/servalsheets-sub001/internal/diff"
	"github.com/khill1269/servalsheets-sub001/internal/engine"
	"github.com/khill1269/servalsheets-sub001/internal/fingerprint"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Steps is the transcript, one record per step.
	Steps []StepRecord `json:"steps"`

	// Errors lists failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{Pass: true, Steps: []StepRecord{}, Errors: []string{}}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// StepRecord is the transcript entry of one step. It holds no checksums or
// timestamps, so transcripts are stable across runs.
type StepRecord struct {
	Step     int              `json:"step"`
	Name     string           `json:"name,omitempty"`
	Kind     string           `json:"kind"`
	Action   string           `json:"action,omitempty"`
	Outcome  string           `json:"outcome"`
	Writes   int              `json:"writes"`
	Report   *ReportView      `json:"report,omitempty"`
	Error    *ErrorView       `json:"error,omitempty"`
	Observed *FingerprintView `json:"observed,omitempty"`
	Restored string           `json:"restored,omitempty"`
}

// OutcomeOK marks a step that did not fail.
const OutcomeOK = "ok"

// ReportView is a MutationReport with the diff reduced to its summary and
// cell changes.
type ReportView struct {
	CellsAffected    int                    `json:"cellsAffected"`
	RowsAffected     *int                   `json:"rowsAffected,omitempty"`
	ColumnsAffected  *int                   `json:"columnsAffected,omitempty"`
	Reversible       bool                   `json:"reversible"`
	RevertSnapshotID string                 `json:"revertSnapshotId,omitempty"`
	DryRun           bool                   `json:"dryRun,omitempty"`
	ScopeExceeded    *engine.ScopeViolation `json:"scopeExceeded,omitempty"`
	Diff             *DiffView              `json:"diff,omitempty"`
}

// DiffView is the stable part of a diff. METADATA fingerprints are left
// out; SAMPLE changes are listed first rows, last rows, then random rows.
type DiffView struct {
	Tier    diff.Tier         `json:"tier"`
	Summary any               `json:"summary"`
	Changes []diff.CellChange `json:"changes,omitempty"`
}

// ErrorView is the stable part of an EngineError.
type ErrorView struct {
	Code          engine.Kind          `json:"code"`
	Field         string               `json:"field,omitempty"`
	Limit         string               `json:"limit,omitempty"`
	Predicted     int                  `json:"predicted,omitempty"`
	Allowed       int                  `json:"allowed,omitempty"`
	Retryable     bool                 `json:"retryable"`
	RetryStrategy engine.RetryStrategy `json:"retryStrategy"`
}

// FingerprintView is a fingerprint without its checksum.
type FingerprintView struct {
	Title          string   `json:"title"`
	RowCount       int      `json:"rowCount"`
	ColumnCount    int      `json:"columnCount"`
	ChecksumRange  string   `json:"checksumRange"`
	FirstRowValues []string `json:"firstRowValues"`
}

func viewReport(r *engine.MutationReport) *ReportView {
	if r == nil {
		return nil
	}
	return &ReportView{
		CellsAffected:    r.CellsAffected,
		RowsAffected:     r.RowsAffected,
		ColumnsAffected:  r.ColumnsAffected,
		Reversible:       r.Reversible,
		RevertSnapshotID: r.RevertSnapshotID,
		DryRun:           r.DryRun,
		ScopeExceeded:    r.ScopeExceeded,
		Diff:             viewDiff(r.Diff),
	}
}

func viewDiff(d *diff.Diff) *DiffView {
	if d == nil {
		return nil
	}
	v := &DiffView{Tier: d.Tier}
	switch d.Tier {
	case diff.TierMetadata:
		v.Summary = d.Metadata.Summary
	case diff.TierSample:
		v.Summary = d.Sample.Summary
		s := d.Sample.Samples
		v.Changes = append(append(append(v.Changes, s.FirstRows...), s.LastRows...), s.RandomRows...)
	case diff.TierFull:
		v.Summary = d.Full.Summary
		v.Changes = d.Full.Changes
	}
	return v
}

func viewError(ee *engine.EngineError) *ErrorView {
	return &ErrorView{
		Code:          ee.Kind,
		Field:         ee.Field,
		Limit:         ee.Limit,
		Predicted:     ee.Predicted,
		Allowed:       ee.Allowed,
		Retryable:     ee.Retryable,
		RetryStrategy: ee.RetryStrategy,
	}
}

func viewFingerprint(fp fingerprint.Fingerprint) *FingerprintView {
	return &FingerprintView{
		Title:          fp.Title,
		RowCount:       fp.RowCount,
		ColumnCount:    fp.ColumnCount,
		ChecksumRange:  fp.ChecksumRange,
		FirstRowValues: fp.FirstRowValues,
	}
}
