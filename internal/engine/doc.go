// Package engine implements the mutation safety engine: a guard placed in
// front of every write to the remote document store.
//
// A guarded mutation moves through these stages:
//
//	TXN_LOOKUP → OBSERVE → PRECONDITION → RANGE/SCOPE
//	  → dry run:  SIMULATE → REPORT
//	  → otherwise: TXN_ADMIT → SNAPSHOT? → APPLY → SCOPE(post) → DIFF → COMMIT
//
// Every failure before APPLY leaves the document untouched. The store has
// no locks or compare-and-swap, so safety against concurrent editors comes
// from optimistic precondition checks: the caller states what it expects
// the sheet to look like and the engine refuses to write when the observed
// fingerprint differs. Requests sharing a transaction id are serialized so
// that a retry applies at most once and replays the cached report.
//
// All errors returned by Guard are *EngineError values carrying a Kind and
// a retry hint. The engine never retries on its own.
package engine
