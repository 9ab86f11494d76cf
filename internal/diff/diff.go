package diff

import (
	"encoding/json"
	"fmt"

	"github.com/khill1269/servalsheets-sub001/internal/fingerprint"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// Tier is the granularity of a Diff.
type Tier string

const (
	TierMetadata Tier = "METADATA"
	TierSample   Tier = "SAMPLE"
	TierFull     Tier = "FULL"
)

// Verbosity is the caller-requested level of detail.
type Verbosity string

const (
	Minimal  Verbosity = "minimal"
	Standard Verbosity = "standard"
	Detailed Verbosity = "detailed"
)

// Tier maps a verbosity to the tier it requests. Unset means standard.
func (v Verbosity) Tier() Tier {
	switch v {
	case Minimal:
		return TierMetadata
	case Detailed:
		return TierFull
	default:
		return TierSample
	}
}

// Valid reports whether v is a known verbosity or unset.
func (v Verbosity) Valid() bool {
	switch v {
	case "", Minimal, Standard, Detailed:
		return true
	}
	return false
}

// ChangeType classifies a CellChange. The document store contract carries
// values and formulas only, so format and note are never produced here.
type ChangeType string

const (
	ChangeValue   ChangeType = "value"
	ChangeFormula ChangeType = "formula"
	ChangeFormat  ChangeType = "format"
	ChangeNote    ChangeType = "note"
)

// CellChange is one changed cell. Before is nil for an added cell, After is
// nil for a removed one.
type CellChange struct {
	Cell   string      `json:"cell"`
	Before sheet.Value `json:"before,omitempty"`
	After  sheet.Value `json:"after,omitempty"`
	Type   ChangeType  `json:"type"`

	// Row and Col are absolute zero-based coordinates of Cell.
	Row int `json:"-"`
	Col int `json:"-"`
}

// UnmarshalJSON restores typed values and coordinates from the wire form.
func (c *CellChange) UnmarshalJSON(data []byte) error {
	var wire struct {
		Cell   string     `json:"cell"`
		Before any        `json:"before"`
		After  any        `json:"after"`
		Type   ChangeType `json:"type"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	rng, err := sheet.ParseA1(wire.Cell)
	if err != nil || rng.StartRow == nil || rng.StartCol == nil {
		return fmt.Errorf("cell change: invalid cell %q", wire.Cell)
	}
	before, err := optionalValue(wire.Before)
	if err != nil {
		return fmt.Errorf("cell change %s: before: %w", wire.Cell, err)
	}
	after, err := optionalValue(wire.After)
	if err != nil {
		return fmt.Errorf("cell change %s: after: %w", wire.Cell, err)
	}
	*c = CellChange{
		Cell:   wire.Cell,
		Before: before,
		After:  after,
		Type:   wire.Type,
		Row:    *rng.StartRow,
		Col:    *rng.StartCol,
	}
	return nil
}

func optionalValue(raw any) (sheet.Value, error) {
	if raw == nil {
		return nil, nil
	}
	v, err := sheet.FromAny(raw)
	if err != nil || sheet.IsEmpty(v) {
		return nil, err
	}
	return v, nil
}

// MetadataSummary summarizes a METADATA diff.
type MetadataSummary struct {
	RowsChanged           int `json:"rowsChanged"`
	EstimatedCellsChanged int `json:"estimatedCellsChanged"`
}

// MetadataDiff is the cheapest tier: two fingerprints and an estimate.
type MetadataDiff struct {
	Before  fingerprint.Fingerprint `json:"before"`
	After   fingerprint.Fingerprint `json:"after"`
	Summary MetadataSummary         `json:"summary"`
}

// Samples groups sampled changes by where their row fell in the ordering
// of changed rows.
type Samples struct {
	FirstRows  []CellChange `json:"firstRows"`
	LastRows   []CellChange `json:"lastRows"`
	RandomRows []CellChange `json:"randomRows"`
}

// SampleSummary summarizes a SAMPLE diff.
type SampleSummary struct {
	RowsChanged  int `json:"rowsChanged"`
	CellsSampled int `json:"cellsSampled"`
}

// SampleDiff lists changes for a bounded selection of changed rows.
type SampleDiff struct {
	Samples Samples       `json:"samples"`
	Summary SampleSummary `json:"summary"`
}

// FullSummary summarizes a FULL diff. CellsAdded and CellsRemoved are
// subsets of CellsChanged.
type FullSummary struct {
	CellsChanged int `json:"cellsChanged"`
	CellsAdded   int `json:"cellsAdded"`
	CellsRemoved int `json:"cellsRemoved"`
}

// FullDiff lists every changed cell.
type FullDiff struct {
	Changes []CellChange `json:"changes"`
	Summary FullSummary  `json:"summary"`
}

// Diff is a tagged union on Tier. Exactly the member matching Tier is set.
type Diff struct {
	Tier     Tier
	Metadata *MetadataDiff
	Sample   *SampleDiff
	Full     *FullDiff
}

// MarshalJSON flattens the active member next to the tier tag.
func (d Diff) MarshalJSON() ([]byte, error) {
	switch d.Tier {
	case TierMetadata:
		return json.Marshal(struct {
			Tier Tier `json:"tier"`
			*MetadataDiff
		}{d.Tier, d.Metadata})
	case TierSample:
		return json.Marshal(struct {
			Tier Tier `json:"tier"`
			*SampleDiff
		}{d.Tier, d.Sample})
	case TierFull:
		return json.Marshal(struct {
			Tier Tier `json:"tier"`
			*FullDiff
		}{d.Tier, d.Full})
	default:
		return nil, fmt.Errorf("diff: unknown tier %q", d.Tier)
	}
}

// UnmarshalJSON decodes the member selected by the tier tag.
func (d *Diff) UnmarshalJSON(data []byte) error {
	var tag struct {
		Tier Tier `json:"tier"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	out := Diff{Tier: tag.Tier}
	var target any
	switch tag.Tier {
	case TierMetadata:
		out.Metadata = &MetadataDiff{}
		target = out.Metadata
	case TierSample:
		out.Sample = &SampleDiff{}
		target = out.Sample
	case TierFull:
		out.Full = &FullDiff{}
		target = out.Full
	default:
		return fmt.Errorf("diff: unknown tier %q", tag.Tier)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("diff: decode %s: %w", tag.Tier, err)
	}
	*d = out
	return nil
}
