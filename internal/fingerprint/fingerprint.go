package fingerprint

import (
	"context"
	"fmt"
	"strings"

	"github.com/khill1269/servalsheets-sub001/internal/docstore"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// Fingerprint is the observed state of one sheet. Every field is always set.
// FirstRowValues is row 0 of the sheet whatever ChecksumRange covers, so an
// expected header compares the same with or without a checksum range.
type Fingerprint struct {
	RowCount       int      `json:"rowCount"`
	ColumnCount    int      `json:"columnCount"`
	Title          string   `json:"title"`
	Checksum       string   `json:"checksum"`
	ChecksumRange  string   `json:"checksumRange"`
	FirstRowValues []string `json:"firstRowValues"`
}

// Observation is a Fingerprint together with the data it was computed from.
// The engine reuses Grid as the "before" side of a diff when the diff
// region lies inside Rect.
type Observation struct {
	Fingerprint Fingerprint
	Meta        docstore.SheetMeta
	Range       sheet.GridRange
	Rect        sheet.Rect
	Grid        sheet.Grid
}

// Service computes fingerprints through a docstore.Reader.
//
// Thread-safety: Service is stateless and safe for concurrent use.
type Service struct {
	reader docstore.Reader
}

// NewService creates a fingerprint service.
func NewService(r docstore.Reader) *Service {
	return &Service{reader: r}
}

// Observe returns the fingerprint of ref's sheet. When checksumRange is nil
// the checksum covers the whole sheet.
func (s *Service) Observe(ctx context.Context, ref sheet.DocumentRef, checksumRange *sheet.GridRange) (Fingerprint, error) {
	obs, err := s.Capture(ctx, ref, checksumRange)
	if err != nil {
		return Fingerprint{}, err
	}
	return obs.Fingerprint, nil
}

// Capture is Observe that also returns the metadata and cells it read.
func (s *Service) Capture(ctx context.Context, ref sheet.DocumentRef, checksumRange *sheet.GridRange) (*Observation, error) {
	meta, err := s.reader.Metadata(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: metadata for %s: %w", ref, err)
	}

	rng := sheet.GridRange{Sheet: meta.SheetTitle}
	if checksumRange != nil {
		rng = *checksumRange
		if rng.Sheet == "" {
			rng.Sheet = meta.SheetTitle
		}
	}
	rect := rng.Resolve(meta.RowCount, meta.ColumnCount)

	var grid sheet.Grid
	if rect.Cells() > 0 {
		cells, err := s.reader.ReadCells(ctx, ref.WithSheet(rng.Sheet), rect.Range(rng.Sheet))
		if err != nil {
			return nil, fmt.Errorf("fingerprint: read %s: %w", rng.A1(), err)
		}
		grid = cells.Sub(sheet.Rect{Rows: rect.Rows, Cols: rect.Cols})
	}

	header := grid
	if rng.Sheet != meta.SheetTitle || !coversFirstRow(rect, meta) {
		header = nil
		if meta.RowCount > 0 && meta.ColumnCount > 0 {
			first := sheet.NewRange(meta.SheetTitle, 0, 1, 0, meta.ColumnCount)
			header, err = s.reader.ReadCells(ctx, ref.WithSheet(meta.SheetTitle), first)
			if err != nil {
				return nil, fmt.Errorf("fingerprint: read %s: %w", first.A1(), err)
			}
		}
	}

	return &Observation{
		Fingerprint: Fingerprint{
			RowCount:       meta.RowCount,
			ColumnCount:    meta.ColumnCount,
			Title:          meta.SheetTitle,
			Checksum:       Checksum(grid, rect.Rows, rect.Cols),
			ChecksumRange:  rng.A1(),
			FirstRowValues: firstRowValues(header),
		},
		Meta:  meta,
		Range: rng,
		Rect:  rect,
		Grid:  grid,
	}, nil
}

// coversFirstRow reports whether a grid read at rect already holds all of
// row 0 of the sheet described by meta.
func coversFirstRow(rect sheet.Rect, meta docstore.SheetMeta) bool {
	if meta.RowCount == 0 || meta.ColumnCount == 0 {
		return true
	}
	return rect.Row == 0 && rect.Col == 0 && rect.Rows > 0 && rect.Cols >= meta.ColumnCount
}

// firstRowValues renders the first row of g, trailing empties trimmed.
func firstRowValues(g sheet.Grid) []string {
	out := []string{}
	if len(g) == 0 {
		return out
	}
	for _, v := range g[0] {
		out = append(out, v.Display())
	}
	end := len(out)
	for end > 0 && out[end-1] == "" {
		end--
	}
	return out[:end]
}

// CanonicalRange renders an A1 range in the form Observe reports, filling a
// missing sheet with defaultSheet. Unparseable input is returned trimmed.
func CanonicalRange(a1, defaultSheet string) string {
	r, err := sheet.ParseA1(a1)
	if err != nil {
		return strings.TrimSpace(a1)
	}
	if r.Sheet == "" {
		r.Sheet = defaultSheet
	}
	return r.A1()
}
