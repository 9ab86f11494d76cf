// Package docstore defines the only operations the mutation safety engine
// requires from the remote document store.
//
// The store offers no transactions, no locking and no compare-and-swap.
// Every safety property the engine provides is built on top of these six
// calls:
//
//	Metadata / ReadCells  - observation (fingerprints, diffs)
//	ApplyBatch            - the single write path
//	CopyDocument          - snapshot creation
//	RestoreFromCopy       - snapshot restore
//	DeleteCopy            - snapshot cleanup
//
// Implementations: memstore (in-process reference store) and gsheets
// (Google Sheets v4 + Drive v3).
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// ErrNotFound is returned when the document, sheet or copy does not exist.
// The engine treats it as a structural precondition failure.
var ErrNotFound = errors.New("docstore: not found")

// SheetMeta is the dimension metadata of one sheet.
type SheetMeta struct {
	SpreadsheetTitle string
	SheetID          int64
	SheetTitle       string
	RowCount         int
	ColumnCount      int
}

// Reader observes document state. Implementations must be side-effect free.
type Reader interface {
	// Metadata returns the dimensions of ref's sheet (the first sheet when
	// ref.Sheet is empty).
	Metadata(ctx context.Context, ref sheet.DocumentRef) (SheetMeta, error)

	// ReadCells returns the values in rng, relative to the range origin.
	ReadCells(ctx context.Context, ref sheet.DocumentRef, rng sheet.GridRange) (sheet.Grid, error)
}

// Writer applies batched requests.
type Writer interface {
	ApplyBatch(ctx context.Context, ref sheet.DocumentRef, reqs []Request) (ApplyResult, error)
}

// Copier manages independent document copies used as snapshots.
type Copier interface {
	// CopyDocument creates an independent copy and returns its id.
	CopyDocument(ctx context.Context, ref sheet.DocumentRef) (string, error)

	// RestoreFromCopy materializes a new document from copyID and returns
	// its reference. The copy itself is left untouched.
	RestoreFromCopy(ctx context.Context, copyID string) (sheet.DocumentRef, error)

	// DeleteCopy removes a copy.
	DeleteCopy(ctx context.Context, copyID string) error
}

// Store is the full outbound contract.
type Store interface {
	Reader
	Writer
	Copier
}

// ApplyResult reports what the store actually changed.
type ApplyResult struct {
	UpdatedCells   int
	UpdatedRows    int
	UpdatedColumns int

	// Affected lists the ranges the store reports as touched.
	Affected []sheet.GridRange
}

// Add accumulates another result into r.
func (r *ApplyResult) Add(o ApplyResult) {
	r.UpdatedCells += o.UpdatedCells
	r.UpdatedRows += o.UpdatedRows
	r.UpdatedColumns += o.UpdatedColumns
	r.Affected = append(r.Affected, o.Affected...)
}

// StatusError is a transport-level failure carrying the remote status code.
// The engine classifies it into a retry strategy; it never retries itself.
type StatusError struct {
	Op         string
	Code       int
	Message    string
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: status %d: %s: %v", e.Op, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *StatusError) Unwrap() error {
	return e.Err
}
