// Package harness runs YAML scenarios against the mutation guard.
//
// Each scenario gets a fresh in-memory store seeded from its documents, a
// fixed clock starting at Epoch, sequential snapshot ids ("snap-1", ...)
// and a seeded diff sampler, so the same scenario always produces the same
// transcript. Steps interleave guarded mutations with interference a real
// collaborator would cause:
//
//	steps:
//	  - name: before
//	    observe: {document: budget, sheet: Costs}
//	  - edit: {kind: write_range, spreadsheet_id: budget, range: "Costs!A2", values: [[x]]}
//	  - guard: {kind: clear_range, spreadsheet_id: budget, range: "Costs!A1:B3"}
//	    options:
//	      expected_state: {from: before}
//	    expect: {error: VERSION_MISMATCH, writes: 0}
//
// Transcripts leave out checksums and timestamps; they are compared
// against golden files with goldie.
package harness
