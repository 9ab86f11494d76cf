package fingerprint

import (
	"fmt"
	"slices"
)

// Field names reported in a Mismatch.
const (
	FieldTitle          = "title"
	FieldChecksumRange  = "checksumRange"
	FieldRowCount       = "rowCount"
	FieldColumnCount    = "columnCount"
	FieldChecksum       = "checksum"
	FieldFirstRowValues = "firstRowValues"
)

// Expected is a caller-declared fingerprint. Only Some fields are checked.
type Expected struct {
	Title          Opt[string]   `json:"title"`
	ChecksumRange  Opt[string]   `json:"checksumRange"`
	RowCount       Opt[int]      `json:"rowCount"`
	ColumnCount    Opt[int]      `json:"columnCount"`
	Checksum       Opt[string]   `json:"checksum"`
	FirstRowValues Opt[[]string] `json:"firstRowValues"`
}

// ExpectAll returns an Expected with every field of fp set.
func ExpectAll(fp Fingerprint) *Expected {
	return &Expected{
		Title:          Some(fp.Title),
		ChecksumRange:  Some(fp.ChecksumRange),
		RowCount:       Some(fp.RowCount),
		ColumnCount:    Some(fp.ColumnCount),
		Checksum:       Some(fp.Checksum),
		FirstRowValues: Some(slices.Clone(fp.FirstRowValues)),
	}
}

// Mismatch describes the first field that differs.
type Mismatch struct {
	Field    string
	Expected any
	Observed any

	// Structural is set when the sheet itself changed identity (renamed,
	// different range), as opposed to its content or size.
	Structural bool
}

func (m *Mismatch) String() string {
	return fmt.Sprintf("%s: expected %v, observed %v", m.Field, m.Expected, m.Observed)
}

// Compare checks expected against observed and returns the first mismatch,
// or nil. A nil expected always passes.
func Compare(expected *Expected, observed Fingerprint) *Mismatch {
	if expected == nil {
		return nil
	}
	if v, ok := expected.Title.Get(); ok && v != observed.Title {
		return &Mismatch{Field: FieldTitle, Expected: v, Observed: observed.Title, Structural: true}
	}
	if v, ok := expected.ChecksumRange.Get(); ok {
		want := CanonicalRange(v, observed.Title)
		if want != observed.ChecksumRange {
			return &Mismatch{Field: FieldChecksumRange, Expected: v, Observed: observed.ChecksumRange, Structural: true}
		}
	}
	if v, ok := expected.RowCount.Get(); ok && v != observed.RowCount {
		return &Mismatch{Field: FieldRowCount, Expected: v, Observed: observed.RowCount}
	}
	if v, ok := expected.ColumnCount.Get(); ok && v != observed.ColumnCount {
		return &Mismatch{Field: FieldColumnCount, Expected: v, Observed: observed.ColumnCount}
	}
	if v, ok := expected.Checksum.Get(); ok && v != observed.Checksum {
		return &Mismatch{Field: FieldChecksum, Expected: v, Observed: observed.Checksum}
	}
	if v, ok := expected.FirstRowValues.Get(); ok && !slices.Equal(v, observed.FirstRowValues) {
		return &Mismatch{Field: FieldFirstRowValues, Expected: v, Observed: observed.FirstRowValues}
	}
	return nil
}
