// Package diff builds before/after change reports at one of three tiers.
//
// METADATA compares two fingerprints and estimates the size of the change.
// SAMPLE lists the changed cells of a bounded selection of changed rows.
// FULL lists every changed cell.
//
// The tier starts from the requested verbosity and is downgraded one step at
// a time while its estimated cost exceeds the configured budget, so a diff
// never forces unbounded extra reads on a large mutation. METADATA is the
// floor.
//
// For any FULL diff, ApplyChanges(before, changes) reproduces the after grid.
package diff
