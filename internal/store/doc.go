// Package store provides SQLite-backed durable registries for transactions
// and snapshots.
//
// Both registries live in one database file so a restarted process keeps
// honouring transaction ids (replay, conflict, expiry) and can still list
// and restore snapshots taken before the restart.
//
// # Ordering
//
// Listing queries order by created_at then id with COLLATE BINARY, so
// results are identical across runs regardless of insertion order.
//
// # Time
//
// Timestamps are stored as INTEGER Unix nanoseconds (UTC).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - user_version: schema migrations
package store
