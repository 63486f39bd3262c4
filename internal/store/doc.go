// Package store provides durable storage for campaign entities, state
// variables, conditions, effects, and the effect execution audit log.
//
// Two implementations ship: SQLite (WAL mode, embedded schema, pragma
// user_version migrations) for real deployments, and Memory for tests and
// ephemeral runs. Both enforce the same contracts:
//
//   - optimistic concurrency: versioned rows reject stale writes with
//     OPTIMISTIC_LOCK_CONFLICT instead of silently overwriting
//   - soft deletion: deleted rows keep their tombstone and drop out of
//     every listing used for evaluation and graph building
//   - append-only audit: execution records are inserted once and never
//     mutated; duplicate IDs are silently ignored for idempotent retries
package store
