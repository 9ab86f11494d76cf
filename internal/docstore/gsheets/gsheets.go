// Package gsheets implements docstore.Store on Google Sheets v4 and Drive v3.
//
// Observation uses spreadsheets.get (sheet properties) and values.get with
// FORMULA rendering, so formulas come back as their text and numbers as
// serial values. ApplyBatch sends cell writes through values.batchUpdate,
// clears through values.batchClear and structural requests through
// spreadsheets.batchUpdate, one call per run of same-kind requests. Each
// call is atomic on the service; a batch mixing kinds is not. Snapshots are
// Drive file copies.
//
// Remote failures become *docstore.StatusError carrying the HTTP status and
// any Retry-After hint; 404 wraps docstore.ErrNotFound.
package gsheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/khill1269/servalsheets-sub001/internal/docstore"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

const (
	opMetadata   = "metadata"
	opReadCells  = "read_cells"
	opApplyBatch = "apply_batch"
	opCopy       = "copy_document"
	opRestore    = "restore_from_copy"
	opDeleteCopy = "delete_copy"
)

// Store talks to the remote spreadsheet service.
//
// Thread-safety: safe for concurrent use; the API clients are.
type Store struct {
	sheets  *sheets.Service
	drive   *drive.Service
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ docstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithRateLimit paces outgoing calls client-side so the remote quota is
// exhausted less often.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(s *Store) {
		s.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithLogger sets the logger. Default: slog.Default() tagged component=gsheets.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a Store. clientOpts are passed to both API clients, e.g.
// option.WithCredentialsFile.
func New(ctx context.Context, clientOpts []option.ClientOption, opts ...Option) (*Store, error) {
	sh, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gsheets: sheets client: %w", err)
	}
	dr, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gsheets: drive client: %w", err)
	}
	return NewWithServices(sh, dr, opts...), nil
}

// NewWithServices wraps existing API clients.
func NewWithServices(sh *sheets.Service, dr *drive.Service, opts ...Option) *Store {
	s := &Store{
		sheets: sh,
		drive:  dr,
		logger: slog.Default().With("component", "gsheets"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// document fetches sheet properties for every sheet of id.
func (s *Store) document(ctx context.Context, id string) (*sheets.Spreadsheet, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	doc, err := s.sheets.Spreadsheets.Get(id).
		Fields("spreadsheetId", "properties.title", "sheets.properties").
		Context(ctx).Do()
	if err != nil {
		return nil, classify(opMetadata, err)
	}
	return doc, nil
}

func findSheet(doc *sheets.Spreadsheet, title string) (*sheets.SheetProperties, error) {
	for _, sh := range doc.Sheets {
		if sh.Properties == nil {
			continue
		}
		if title == "" || sh.Properties.Title == title {
			return sh.Properties, nil
		}
	}
	if title == "" {
		return nil, fmt.Errorf("document %s has no sheets: %w", doc.SpreadsheetId, docstore.ErrNotFound)
	}
	return nil, fmt.Errorf("sheet %q in %s: %w", title, doc.SpreadsheetId, docstore.ErrNotFound)
}

func metaOf(doc *sheets.Spreadsheet, p *sheets.SheetProperties) docstore.SheetMeta {
	m := docstore.SheetMeta{SheetID: p.SheetId, SheetTitle: p.Title}
	if doc.Properties != nil {
		m.SpreadsheetTitle = doc.Properties.Title
	}
	if g := p.GridProperties; g != nil {
		m.RowCount = int(g.RowCount)
		m.ColumnCount = int(g.ColumnCount)
	}
	return m
}

// Metadata implements docstore.Reader.
func (s *Store) Metadata(ctx context.Context, ref sheet.DocumentRef) (docstore.SheetMeta, error) {
	doc, err := s.document(ctx, ref.SpreadsheetID)
	if err != nil {
		return docstore.SheetMeta{}, err
	}
	p, err := findSheet(doc, ref.Sheet)
	if err != nil {
		return docstore.SheetMeta{}, err
	}
	return metaOf(doc, p), nil
}

// ReadCells implements docstore.Reader.
func (s *Store) ReadCells(ctx context.Context, ref sheet.DocumentRef, rng sheet.GridRange) (sheet.Grid, error) {
	if rng.Sheet == "" {
		rng.Sheet = ref.Sheet
	}
	if rng.Sheet == "" {
		meta, err := s.Metadata(ctx, ref)
		if err != nil {
			return nil, err
		}
		rng.Sheet = meta.SheetTitle
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	vr, err := s.sheets.Spreadsheets.Values.Get(ref.SpreadsheetID, rng.A1()).
		ValueRenderOption("FORMULA").
		DateTimeRenderOption("SERIAL_NUMBER").
		MajorDimension("ROWS").
		Context(ctx).Do()
	if err != nil {
		return nil, classify(opReadCells, err)
	}
	g, err := sheet.GridFromAny(vr.Values)
	if err != nil {
		return nil, fmt.Errorf("gsheets: read %s: %w", rng.A1(), err)
	}
	return g, nil
}

// ApplyBatch implements docstore.Writer. Every request is validated before
// anything is sent. Counts in the result are the ones the service reports:
// values.batchUpdate totals for writes, the cleared ranges for clears, and
// the dimension change of the updated spreadsheet for structural requests.
func (s *Store) ApplyBatch(ctx context.Context, ref sheet.DocumentRef, reqs []docstore.Request) (docstore.ApplyResult, error) {
	doc, err := s.document(ctx, ref.SpreadsheetID)
	if err != nil {
		return docstore.ApplyResult{}, err
	}
	b := newBatch(doc, ref.Sheet)
	for i, req := range reqs {
		if err := b.add(req); err != nil {
			return docstore.ApplyResult{}, fmt.Errorf("request %d: %w", i, err)
		}
	}

	var res docstore.ApplyResult
	for i, c := range b.calls {
		r, err := s.send(ctx, ref.SpreadsheetID, c)
		if err != nil {
			if i > 0 {
				s.logger.Warn("batch partially applied", "document", ref.String(), "calls_done", i, "calls", len(b.calls))
			}
			return docstore.ApplyResult{}, err
		}
		res.Add(r)
	}
	if res.UpdatedCells != b.predicted.UpdatedCells {
		s.logger.Info("service reported a different cell count",
			"document", ref.String(),
			"predicted", b.predicted.UpdatedCells,
			"reported", res.UpdatedCells)
	}
	s.logger.Debug("batch applied", "document", ref.String(), "calls", len(b.calls), "cells", res.UpdatedCells)
	return res, nil
}

func (s *Store) send(ctx context.Context, id string, c *call) (docstore.ApplyResult, error) {
	if err := s.wait(ctx); err != nil {
		return docstore.ApplyResult{}, err
	}
	switch c.kind {
	case valueWrite:
		return s.sendWrites(ctx, id, c)
	case valueClear:
		return s.sendClears(ctx, id, c)
	default:
		return s.sendStructural(ctx, id, c)
	}
}

func (s *Store) sendWrites(ctx context.Context, id string, c *call) (docstore.ApplyResult, error) {
	resp, err := s.sheets.Spreadsheets.Values.BatchUpdate(id, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             c.data,
	}).Context(ctx).Do()
	if err != nil {
		return docstore.ApplyResult{}, classify(opApplyBatch, err)
	}
	res := docstore.ApplyResult{
		UpdatedCells:   int(resp.TotalUpdatedCells),
		UpdatedRows:    int(resp.TotalUpdatedRows),
		UpdatedColumns: int(resp.TotalUpdatedColumns),
	}
	for _, u := range resp.Responses {
		if u == nil || u.UpdatedRange == "" {
			continue
		}
		if g, err := sheet.ParseA1(u.UpdatedRange); err == nil {
			res.Affected = append(res.Affected, g)
		}
	}
	if len(res.Affected) == 0 {
		res.Affected = c.affected
	}
	return res, nil
}

func (s *Store) sendClears(ctx context.Context, id string, c *call) (docstore.ApplyResult, error) {
	ranges := make([]string, len(c.clears))
	for i, t := range c.clears {
		ranges[i] = t.a1
	}
	resp, err := s.sheets.Spreadsheets.Values.BatchClear(id, &sheets.BatchClearValuesRequest{
		Ranges: ranges,
	}).Context(ctx).Do()
	if err != nil {
		return docstore.ApplyResult{}, classify(opApplyBatch, err)
	}

	// Cleared ranges come back in request order, clamped to the grid.
	var res docstore.ApplyResult
	for i, t := range c.clears {
		rect := t.rect
		if i < len(resp.ClearedRanges) {
			if g, err := sheet.ParseA1(resp.ClearedRanges[i]); err == nil {
				rect = g.Resolve(t.rows, t.cols)
			}
		}
		res.Add(docstore.ApplyResult{
			UpdatedCells:   rect.Cells(),
			UpdatedRows:    rect.Rows,
			UpdatedColumns: rect.Cols,
			Affected:       []sheet.GridRange{rect.Range(t.title)},
		})
	}
	return res, nil
}

func (s *Store) sendStructural(ctx context.Context, id string, c *call) (docstore.ApplyResult, error) {
	resp, err := s.sheets.Spreadsheets.BatchUpdate(id, &sheets.BatchUpdateSpreadsheetRequest{
		Requests:                     c.requests,
		IncludeSpreadsheetInResponse: true,
	}).Context(ctx).Do()
	if err != nil {
		return docstore.ApplyResult{}, classify(opApplyBatch, err)
	}
	if c.growth {
		return docstore.ApplyResult{}, nil
	}

	after := resp.UpdatedSpreadsheet
	if after == nil {
		if after, err = s.document(ctx, id); err != nil {
			return docstore.ApplyResult{}, err
		}
	}
	res := docstore.ApplyResult{Affected: c.affected}
	for title, before := range c.before {
		p, err := findSheet(after, title)
		if err != nil {
			return docstore.ApplyResult{}, fmt.Errorf("gsheets: after batch: %w", err)
		}
		m := metaOf(after, p)
		change := dimensionChange(before, [2]int{m.RowCount, m.ColumnCount})
		res.Add(change)
	}
	return res, nil
}

// CopyDocument implements docstore.Copier.
func (s *Store) CopyDocument(ctx context.Context, ref sheet.DocumentRef) (string, error) {
	name := ref.SpreadsheetID + " snapshot " + time.Now().UTC().Format(time.RFC3339)
	f, err := s.copyFile(ctx, opCopy, ref.SpreadsheetID, name)
	if err != nil {
		return "", err
	}
	return f.Id, nil
}

// RestoreFromCopy implements docstore.Copier. The restored document is a
// further copy, so the snapshot copy survives for later restores.
func (s *Store) RestoreFromCopy(ctx context.Context, copyID string) (sheet.DocumentRef, error) {
	f, err := s.copyFile(ctx, opRestore, copyID, copyID+" (restored)")
	if err != nil {
		return sheet.DocumentRef{}, err
	}
	return sheet.DocumentRef{SpreadsheetID: f.Id}, nil
}

// DeleteCopy implements docstore.Copier.
func (s *Store) DeleteCopy(ctx context.Context, copyID string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	if err := s.drive.Files.Delete(copyID).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
		return classify(opDeleteCopy, err)
	}
	return nil
}

func (s *Store) copyFile(ctx context.Context, op, id, name string) (*drive.File, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	f, err := s.drive.Files.Copy(id, &drive.File{Name: name}).
		SupportsAllDrives(true).
		Fields("id").
		Context(ctx).Do()
	if err != nil {
		return nil, classify(op, err)
	}
	return f, nil
}

// classify converts an API error. Errors without a status (network, DNS,
// cancellation) are returned as they are.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("gsheets %s: %w", op, err)
	}
	if gerr.Code == http.StatusNotFound {
		return fmt.Errorf("gsheets %s: %s: %w", op, gerr.Message, docstore.ErrNotFound)
	}
	return &docstore.StatusError{
		Op:         op,
		Code:       gerr.Code,
		Message:    gerr.Message,
		RetryAfter: retryAfter(gerr.Header),
		Err:        err,
	}
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
