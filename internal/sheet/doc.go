// Package sheet defines the spreadsheet data model shared by every layer of
// the mutation safety engine.
//
// # Values
//
// Cell contents are represented by the sealed Value interface. Only Empty,
// String, Number, Bool and Formula implement it, so every consumer (checksum
// serialization, diffing, the Sheets adapter) can switch over a closed set.
// Each type carries a one-byte tag used by the checksum serializer.
//
// # Ranges
//
// GridRange mirrors the remote store's notion of a range: a sheet title plus
// optional zero-based, end-exclusive row and column bounds. A missing bound
// means "open" (for example "Sheet1!A:C" has no row bounds). Resolve turns a
// GridRange into a concrete Rect against observed sheet dimensions.
//
// A1 notation is parsed and rendered by ParseA1 and GridRange.A1. Formula
// text is never parsed; formulas are opaque strings beginning with '='.
package sheet
