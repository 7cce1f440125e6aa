// Package store provides the durable page index for the frontier.
//
// This package implements the PageStore, which persists:
//   - Page records keyed by URL identity (score, status, timestamps, link counts)
//   - The link-graph edge log consumed by the score engine
//   - Store metadata (format version, edge checkpoint)
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of a
// hand-rolled index format because:
//  1. No external dependencies - the store is a single file in the store directory
//  2. CGO-free implementation allows easy cross-compilation
//  3. Transactions give all-or-nothing batch visibility, so a crash mid-write
//     never leaves partial records
//  4. WAL mode lets long score-engine reads run against a consistent snapshot
//     without blocking live status updates
//
// All writes are serialized by the facade (single logical writer); the
// connection pool exists to let snapshot reads proceed concurrently.
package store
