package engine

import (
	"github.com/khill1269/servalsheets-sub001/internal/fingerprint"
)

// Verify checks an expected fingerprint against the observed one. It
// returns nil when expected is nil or every set field matches, otherwise
// an error describing the first differing field.
//
// Title and checksumRange mismatches mean the caller is looking at a
// different sheet or region and yield PRECONDITION_FAILED; any other
// field yields VERSION_MISMATCH.
func Verify(expected *fingerprint.Expected, observed fingerprint.Fingerprint) *EngineError {
	m := fingerprint.Compare(expected, observed)
	if m == nil {
		return nil
	}
	kind := KindVersionMismatch
	if m.Structural {
		kind = KindPreconditionFailed
	}
	e := newError(kind, "expected %s does not match the document", m.Field)
	e.Field = m.Field
	e.Expected = m.Expected
	e.Observed = m.Observed
	return e
}
