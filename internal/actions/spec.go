package actions

import (
	"errors"
	"fmt"

	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// ErrUnknownKind is returned by FromSpec for a kind outside the closed set.
var ErrUnknownKind = errors.New("actions: unknown action kind")

// Spec is the kind-tagged wire form of an action, as MCP handlers and
// scenario files supply it. Row indices are zero-based.
type Spec struct {
	Kind          string  `json:"kind" yaml:"kind"`
	SpreadsheetID string  `json:"spreadsheetId" yaml:"spreadsheet_id"`
	Sheet         string  `json:"sheet,omitempty" yaml:"sheet,omitempty"`
	Range         string  `json:"range,omitempty" yaml:"range,omitempty"`
	Values        [][]any `json:"values,omitempty" yaml:"values,omitempty"`
	StartIndex    int     `json:"startIndex,omitempty" yaml:"start_index,omitempty"`
	EndIndex      int     `json:"endIndex,omitempty" yaml:"end_index,omitempty"`
	Count         int     `json:"count,omitempty" yaml:"count,omitempty"`
}

// FromSpec decodes and validates s.
func FromSpec(s Spec) (Action, error) {
	if s.SpreadsheetID == "" {
		return nil, errors.New("actions: spreadsheetId is required")
	}
	doc := sheet.DocumentRef{SpreadsheetID: s.SpreadsheetID, Sheet: s.Sheet}

	var a Action
	switch s.Kind {
	case KindWriteRange:
		rng, err := parseRange(s.Range, true)
		if err != nil {
			return nil, err
		}
		values, err := sheet.GridFromAny(s.Values)
		if err != nil {
			return nil, fmt.Errorf("actions: values: %w", err)
		}
		a = WriteRange{Doc: doc, Area: rng, Values: values}
	case KindClearRange:
		rng, err := parseRange(s.Range, false)
		if err != nil {
			return nil, err
		}
		a = ClearRange{Doc: doc, Area: rng}
	case KindInsertRows:
		a = InsertRows{Doc: doc, Start: s.StartIndex, Count: s.Count}
	case KindDeleteRows:
		a = DeleteRows{Doc: doc, Start: s.StartIndex, End: s.EndIndex}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := checkSheet(a); err != nil {
		return nil, err
	}
	return a, nil
}

// parseRange parses an A1 range. An empty string is the whole sheet unless
// required is set.
func parseRange(a1 string, required bool) (sheet.GridRange, error) {
	if a1 == "" {
		if required {
			return sheet.GridRange{}, errors.New("actions: range is required")
		}
		return sheet.GridRange{}, nil
	}
	rng, err := sheet.ParseA1(a1)
	if err != nil {
		return sheet.GridRange{}, fmt.Errorf("actions: %w", err)
	}
	return rng, nil
}

// checkSheet rejects a range that names a different sheet than the
// document reference.
func checkSheet(a Action) error {
	target, rng := a.Target(), a.Range()
	if target.Sheet != "" && rng.Sheet != "" && target.Sheet != rng.Sheet {
		return fmt.Errorf("actions: range sheet %q does not match sheet %q", rng.Sheet, target.Sheet)
	}
	return nil
}
