package memstore

import (
	"fmt"

	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// Seed is a document description used by configuration files and
// scenarios to populate a Store.
type Seed struct {
	ID     string      `yaml:"id"`
	Title  string      `yaml:"title"`
	Sheets []SeedSheet `yaml:"sheets"`
}

// SeedSheet is one sheet of a Seed. Values are plain YAML scalars; strings
// starting with "=" become formulas.
type SeedSheet struct {
	Title  string  `yaml:"title"`
	Rows   int     `yaml:"rows,omitempty"`
	Cols   int     `yaml:"cols,omitempty"`
	Values [][]any `yaml:"values,omitempty"`
}

// Load adds every seed to s.
func (s *Store) Load(seeds ...Seed) error {
	for _, seed := range seeds {
		if seed.ID == "" {
			return fmt.Errorf("seed: missing document id")
		}
		specs := make([]SheetSpec, 0, len(seed.Sheets))
		for _, sh := range seed.Sheets {
			g, err := sheet.GridFromAny(sh.Values)
			if err != nil {
				return fmt.Errorf("seed %s sheet %q: %w", seed.ID, sh.Title, err)
			}
			specs = append(specs, SheetSpec{Title: sh.Title, Rows: sh.Rows, Cols: sh.Cols, Values: g})
		}
		s.AddDocument(seed.ID, seed.Title, specs...)
	}
	return nil
}
