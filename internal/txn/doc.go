// Package txn implements the transaction coordinator: idempotency and
// conflict detection keyed by a caller-supplied transaction id.
//
// Every guarded mutation that carries a transaction id goes through two
// checks:
//
//	Lookup  - unlocked peek before preconditions, so an identical retry of an
//	          already-committed request replays its cached report instead of
//	          failing the (now stale) precondition its own write invalidated.
//	Admit   - takes the per-id lock and registers a pending entry. The lock
//	          is held until Ticket.Commit or Ticket.Abort, so two racing
//	          requests with the same id never both observe Fresh.
//
// Outcomes:
//
//	Fresh     no entry; the request proceeds
//	Replay    committed entry with an identical request fingerprint
//	Conflict  pending entry (TRANSACTION_CONFLICT) or committed entry with a
//	          different request fingerprint (REPLAY_FAILED)
//	Expired   the entry outlived its TTL; it is evicted and the caller must
//	          re-verify state
//
// The per-id lock serializes one process. Across processes, Registry.Create
// is insert-if-absent, so only one of them registers the pending entry.
package txn
