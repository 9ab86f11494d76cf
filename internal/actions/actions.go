// Package actions implements the closed set of mutations the engine guards:
// writing a range, clearing a range, inserting rows and deleting rows.
//
// Every variant implements engine.MutationAction in full. Handlers decode a
// kind-tagged Spec with FromSpec and hand the result to the engine; the
// engine never sees an action kind it does not know how to run.
package actions

import (
	"github.com/khill1269/servalsheets-sub001/internal/engine"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// Action kinds.
const (
	KindWriteRange = "write_range"
	KindClearRange = "clear_range"
	KindInsertRows = "insert_rows"
	KindDeleteRows = "delete_rows"
)

// Action is a sealed interface. Only WriteRange, ClearRange, InsertRows and
// DeleteRows implement it.
type Action interface {
	engine.MutationAction

	// Validate checks the action's own inputs, independent of the document.
	Validate() error

	sealed()
}

var (
	_ Action = WriteRange{}
	_ Action = ClearRange{}
	_ Action = InsertRows{}
	_ Action = DeleteRows{}
)

// scoped fills a range's missing sheet from doc and reports the document
// the range lives in.
func scoped(doc sheet.DocumentRef, rng sheet.GridRange) (sheet.DocumentRef, sheet.GridRange) {
	switch {
	case rng.Sheet == "":
		rng.Sheet = doc.Sheet
	case doc.Sheet == "":
		doc.Sheet = rng.Sheet
	}
	return doc, rng
}

func start(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
