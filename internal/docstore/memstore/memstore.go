// Package memstore is an in-process implementation of docstore.Store.
//
// It backs the scenario harness, the demo server and every engine test. On
// top of faithful grid semantics it offers what a remote store cannot:
//
//   - Call-count instrumentation per operation (Calls), so tests can prove
//     that ApplyBatch was never invoked.
//   - Fault injection (FailNext) for transport and snapshot failure paths.
//   - An optional request quota (WithRateLimit) that answers 429 exactly the
//     way the remote store does when a caller exhausts its quota.
//
// ApplyBatch is atomic: requests are applied to a clone that replaces the
// document only if every request succeeds.
package memstore

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/khill1269/servalsheets-sub001/internal/docstore"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// Op names an instrumented store operation.
type Op string

const (
	OpMetadata   Op = "metadata"
	OpReadCells  Op = "read_cells"
	OpApplyBatch Op = "apply_batch"
	OpCopy       Op = "copy_document"
	OpRestore    Op = "restore_from_copy"
	OpDeleteCopy Op = "delete_copy"
)

// SheetSpec describes one sheet when seeding a document.
// Rows and Cols are grown to fit Values when smaller.
type SheetSpec struct {
	Title  string
	Rows   int
	Cols   int
	Values sheet.Grid
}

type sheetData struct {
	id    int64
	title string
	rows  int
	cols  int
	cells sheet.Grid
}

type document struct {
	id     string
	title  string
	sheets []*sheetData
}

func (d *document) clone() *document {
	out := &document{id: d.id, title: d.title, sheets: make([]*sheetData, len(d.sheets))}
	for i, sh := range d.sheets {
		cp := *sh
		cp.cells = sh.cells.Clone()
		out.sheets[i] = &cp
	}
	return out
}

func (d *document) sheet(title string) (*sheetData, error) {
	if len(d.sheets) == 0 {
		return nil, fmt.Errorf("document %s has no sheets: %w", d.id, docstore.ErrNotFound)
	}
	if title == "" {
		return d.sheets[0], nil
	}
	for _, sh := range d.sheets {
		if sh.title == title {
			return sh, nil
		}
	}
	return nil, fmt.Errorf("sheet %q in %s: %w", title, d.id, docstore.ErrNotFound)
}

// Store is an in-memory document store.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	docs    map[string]*document
	copies  map[string]*document
	nextID  int
	calls   map[Op]int
	faults  map[Op][]error
	limiter *rate.Limiter
	latency time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithRateLimit enables a token-bucket quota shared by all operations.
// Requests beyond the quota fail with status 429.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(s *Store) {
		s.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithLatency delays every operation, honouring context cancellation.
func WithLatency(d time.Duration) Option {
	return func(s *Store) {
		s.latency = d
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		docs:   make(map[string]*document),
		copies: make(map[string]*document),
		calls:  make(map[Op]int),
		faults: make(map[Op][]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddDocument seeds a document. Existing documents with the same id are replaced.
func (s *Store) AddDocument(id, title string, sheets ...SheetSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := &document{id: id, title: title}
	for i, spec := range sheets {
		cells := spec.Values.Clone()
		doc.sheets = append(doc.sheets, &sheetData{
			id:    int64(i),
			title: spec.Title,
			rows:  max(spec.Rows, cells.Rows()),
			cols:  max(spec.Cols, cells.Cols()),
			cells: cells,
		})
	}
	s.docs[id] = doc
}

// Calls returns how many times op has been invoked, including failed calls.
func (s *Store) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// FailNext makes the next invocation of op return err.
// Multiple calls queue errors in order.
func (s *Store) FailNext(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], err)
}

// Grid returns a copy of the full grid of ref's sheet, for assertions.
func (s *Store) Grid(ref sheet.DocumentRef) (sheet.Grid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[ref.SpreadsheetID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", ref.SpreadsheetID, docstore.ErrNotFound)
	}
	sh, err := doc.sheet(ref.Sheet)
	if err != nil {
		return nil, err
	}
	return sh.cells.Sub(sheet.Rect{Rows: sh.rows, Cols: sh.cols}), nil
}

// RenameSheet changes a sheet title, simulating a concurrent structural edit.
func (s *Store) RenameSheet(ref sheet.DocumentRef, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[ref.SpreadsheetID]
	if !ok {
		return fmt.Errorf("document %s: %w", ref.SpreadsheetID, docstore.ErrNotFound)
	}
	sh, err := doc.sheet(ref.Sheet)
	if err != nil {
		return err
	}
	sh.title = title
	return nil
}

// enter records the call and applies latency, quota and injected faults.
// Must be called without s.mu held.
func (s *Store) enter(ctx context.Context, op Op) error {
	s.mu.Lock()
	s.calls[op]++
	var fault error
	if q := s.faults[op]; len(q) > 0 {
		fault, s.faults[op] = q[0], q[1:]
	}
	latency := s.latency
	limiter := s.limiter
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fault != nil {
		return fault
	}
	if limiter != nil && !limiter.Allow() {
		return &docstore.StatusError{
			Op:         string(op),
			Code:       http.StatusTooManyRequests,
			Message:    "quota exceeded",
			RetryAfter: time.Duration(float64(time.Second) / float64(max(limiter.Limit(), 1e-9))),
		}
	}
	return nil
}

func (s *Store) doc(id string) (*document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, docstore.ErrNotFound)
	}
	return doc, nil
}

// Metadata implements docstore.Reader.
func (s *Store) Metadata(ctx context.Context, ref sheet.DocumentRef) (docstore.SheetMeta, error) {
	if err := s.enter(ctx, OpMetadata); err != nil {
		return docstore.SheetMeta{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.doc(ref.SpreadsheetID)
	if err != nil {
		return docstore.SheetMeta{}, err
	}
	sh, err := doc.sheet(ref.Sheet)
	if err != nil {
		return docstore.SheetMeta{}, err
	}
	return docstore.SheetMeta{
		SpreadsheetTitle: doc.title,
		SheetID:          sh.id,
		SheetTitle:       sh.title,
		RowCount:         sh.rows,
		ColumnCount:      sh.cols,
	}, nil
}

// ReadCells implements docstore.Reader. The returned grid covers the
// resolved rectangle exactly; cells beyond the sheet edge are omitted.
func (s *Store) ReadCells(ctx context.Context, ref sheet.DocumentRef, rng sheet.GridRange) (sheet.Grid, error) {
	if err := s.enter(ctx, OpReadCells); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.doc(ref.SpreadsheetID)
	if err != nil {
		return nil, err
	}
	title := rng.Sheet
	if title == "" {
		title = ref.Sheet
	}
	sh, err := doc.sheet(title)
	if err != nil {
		return nil, err
	}
	return sh.cells.Sub(rng.Resolve(sh.rows, sh.cols)), nil
}

// ApplyBatch implements docstore.Writer. Either every request is applied
// or none is.
func (s *Store) ApplyBatch(ctx context.Context, ref sheet.DocumentRef, reqs []docstore.Request) (docstore.ApplyResult, error) {
	if err := s.enter(ctx, OpApplyBatch); err != nil {
		return docstore.ApplyResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.doc(ref.SpreadsheetID)
	if err != nil {
		return docstore.ApplyResult{}, err
	}
	work := doc.clone()

	var total docstore.ApplyResult
	for i, req := range reqs {
		res, err := applyRequest(work, ref, req)
		if err != nil {
			return docstore.ApplyResult{}, fmt.Errorf("request %d: %w", i, err)
		}
		total.Add(res)
	}
	s.docs[ref.SpreadsheetID] = work
	return total, nil
}

func applyRequest(doc *document, ref sheet.DocumentRef, req docstore.Request) (docstore.ApplyResult, error) {
	sheetTitle := func(title string) string {
		if title == "" {
			return ref.Sheet
		}
		return title
	}

	switch r := req.(type) {
	case docstore.UpdateCells:
		sh, err := doc.sheet(sheetTitle(r.Range.Sheet))
		if err != nil {
			return docstore.ApplyResult{}, err
		}
		origin := r.Range.Extent(sh.rows, sh.cols)
		for dr, row := range r.Values {
			for dc, v := range row {
				if v == nil {
					v = sheet.Empty{}
				}
				sh.cells.Set(origin.Row+dr, origin.Col+dc, v)
			}
		}
		rows, cols := r.Values.Rows(), r.Values.Cols()
		sh.rows = max(sh.rows, origin.Row+rows)
		sh.cols = max(sh.cols, origin.Col+cols)
		written := sheet.Rect{Row: origin.Row, Col: origin.Col, Rows: rows, Cols: cols}
		return docstore.ApplyResult{
			UpdatedCells:   written.Cells(),
			UpdatedRows:    rows,
			UpdatedColumns: cols,
			Affected:       []sheet.GridRange{written.Range(sh.title)},
		}, nil

	case docstore.ClearRange:
		sh, err := doc.sheet(sheetTitle(r.Range.Sheet))
		if err != nil {
			return docstore.ApplyResult{}, err
		}
		rect := r.Range.Resolve(sh.rows, sh.cols)
		for dr := 0; dr < rect.Rows; dr++ {
			for dc := 0; dc < rect.Cols; dc++ {
				if !sheet.IsEmpty(sh.cells.At(rect.Row+dr, rect.Col+dc)) {
					sh.cells.Set(rect.Row+dr, rect.Col+dc, sheet.Empty{})
				}
			}
		}
		return docstore.ApplyResult{
			UpdatedCells:   rect.Cells(),
			UpdatedRows:    rect.Rows,
			UpdatedColumns: rect.Cols,
			Affected:       []sheet.GridRange{rect.Range(sh.title)},
		}, nil

	case docstore.InsertDimension:
		sh, err := doc.sheet(sheetTitle(r.Sheet))
		if err != nil {
			return docstore.ApplyResult{}, err
		}
		return insertDimension(sh, r)

	case docstore.DeleteDimension:
		sh, err := doc.sheet(sheetTitle(r.Sheet))
		if err != nil {
			return docstore.ApplyResult{}, err
		}
		return deleteDimension(sh, r)

	default:
		return docstore.ApplyResult{}, badRequest(fmt.Sprintf("unsupported request %T", req))
	}
}

func insertDimension(sh *sheetData, r docstore.InsertDimension) (docstore.ApplyResult, error) {
	if r.Count <= 0 {
		return docstore.ApplyResult{}, badRequest("insert count must be positive")
	}
	switch r.Dimension {
	case docstore.Rows:
		if r.Start < 0 || r.Start > sh.rows {
			return docstore.ApplyResult{}, badRequest(fmt.Sprintf("row %d outside sheet of %d rows", r.Start, sh.rows))
		}
		if r.Start < len(sh.cells) {
			blank := make(sheet.Grid, r.Count)
			cells := append(sheet.Grid{}, sh.cells[:r.Start]...)
			cells = append(cells, blank...)
			sh.cells = append(cells, sh.cells[r.Start:]...)
		}
		sh.rows += r.Count
		return docstore.ApplyResult{
			UpdatedCells:   r.Count * sh.cols,
			UpdatedRows:    r.Count,
			UpdatedColumns: sh.cols,
			Affected:       []sheet.GridRange{sheet.NewRange(sh.title, r.Start, r.Start+r.Count, 0, sh.cols)},
		}, nil

	case docstore.Columns:
		if r.Start < 0 || r.Start > sh.cols {
			return docstore.ApplyResult{}, badRequest(fmt.Sprintf("column %d outside sheet of %d columns", r.Start, sh.cols))
		}
		for i, row := range sh.cells {
			if r.Start >= len(row) {
				continue
			}
			out := append([]sheet.Value{}, row[:r.Start]...)
			for n := 0; n < r.Count; n++ {
				out = append(out, sheet.Empty{})
			}
			sh.cells[i] = append(out, row[r.Start:]...)
		}
		sh.cols += r.Count
		return docstore.ApplyResult{
			UpdatedCells:   r.Count * sh.rows,
			UpdatedRows:    sh.rows,
			UpdatedColumns: r.Count,
			Affected:       []sheet.GridRange{sheet.NewRange(sh.title, 0, sh.rows, r.Start, r.Start+r.Count)},
		}, nil

	default:
		return docstore.ApplyResult{}, badRequest(fmt.Sprintf("unknown dimension %q", r.Dimension))
	}
}

func deleteDimension(sh *sheetData, r docstore.DeleteDimension) (docstore.ApplyResult, error) {
	if r.End <= r.Start || r.Start < 0 {
		return docstore.ApplyResult{}, badRequest(fmt.Sprintf("invalid span [%d, %d)", r.Start, r.End))
	}
	switch r.Dimension {
	case docstore.Rows:
		if r.End > sh.rows {
			return docstore.ApplyResult{}, badRequest(fmt.Sprintf("rows [%d, %d) outside sheet of %d rows", r.Start, r.End, sh.rows))
		}
		n := r.End - r.Start
		if r.Start < len(sh.cells) {
			end := min(r.End, len(sh.cells))
			sh.cells = append(sh.cells[:r.Start:r.Start], sh.cells[end:]...)
		}
		sh.rows -= n
		return docstore.ApplyResult{
			UpdatedCells:   n * sh.cols,
			UpdatedRows:    n,
			UpdatedColumns: sh.cols,
			Affected:       []sheet.GridRange{sheet.NewRange(sh.title, r.Start, r.End, 0, sh.cols)},
		}, nil

	case docstore.Columns:
		if r.End > sh.cols {
			return docstore.ApplyResult{}, badRequest(fmt.Sprintf("columns [%d, %d) outside sheet of %d columns", r.Start, r.End, sh.cols))
		}
		n := r.End - r.Start
		for i, row := range sh.cells {
			if r.Start >= len(row) {
				continue
			}
			end := min(r.End, len(row))
			sh.cells[i] = append(row[:r.Start:r.Start], row[end:]...)
		}
		sh.cols -= n
		return docstore.ApplyResult{
			UpdatedCells:   n * sh.rows,
			UpdatedRows:    sh.rows,
			UpdatedColumns: n,
			Affected:       []sheet.GridRange{sheet.NewRange(sh.title, 0, sh.rows, r.Start, r.End)},
		}, nil

	default:
		return docstore.ApplyResult{}, badRequest(fmt.Sprintf("unknown dimension %q", r.Dimension))
	}
}

func badRequest(msg string) error {
	return &docstore.StatusError{Op: string(OpApplyBatch), Code: http.StatusBadRequest, Message: msg}
}

// CopyDocument implements docstore.Copier.
func (s *Store) CopyDocument(ctx context.Context, ref sheet.DocumentRef) (string, error) {
	if err := s.enter(ctx, OpCopy); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.doc(ref.SpreadsheetID)
	if err != nil {
		return "", err
	}
	s.nextID++
	id := fmt.Sprintf("copy-%d", s.nextID)
	cp := doc.clone()
	cp.id = id
	s.copies[id] = cp
	return id, nil
}

// RestoreFromCopy implements docstore.Copier. The restored document is a
// new document; the copy remains available for further restores.
func (s *Store) RestoreFromCopy(ctx context.Context, copyID string) (sheet.DocumentRef, error) {
	if err := s.enter(ctx, OpRestore); err != nil {
		return sheet.DocumentRef{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.copies[copyID]
	if !ok {
		return sheet.DocumentRef{}, fmt.Errorf("copy %s: %w", copyID, docstore.ErrNotFound)
	}
	s.nextID++
	restored := cp.clone()
	restored.id = fmt.Sprintf("restored-%d", s.nextID)
	restored.title = cp.title + " (restored)"
	s.docs[restored.id] = restored
	return sheet.DocumentRef{SpreadsheetID: restored.id}, nil
}

// DeleteCopy implements docstore.Copier.
func (s *Store) DeleteCopy(ctx context.Context, copyID string) error {
	if err := s.enter(ctx, OpDeleteCopy); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.copies[copyID]; !ok {
		return fmt.Errorf("copy %s: %w", copyID, docstore.ErrNotFound)
	}
	delete(s.copies, copyID)
	return nil
}

// HasCopy reports whether copyID exists, for assertions.
func (s *Store) HasCopy(copyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.copies[copyID]
	return ok
}

var _ docstore.Store = (*Store)(nil)
