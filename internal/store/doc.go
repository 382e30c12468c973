// Package store provides SQLite-backed durable storage for PyMD execution logs.
//
// The store is an append-only audit log with:
//   - Sessions: one row per engine session (document path and hash at start)
//   - Executions: one row per Execute call, hits included
//
// It is not a cache. Results are never read back into an engine; the log only
// answers "what ran, in which order, and what did it leave behind".
//
// # Ordering
//
// All ordering uses the seq INTEGER stamped by the engine's logical clock,
// never wall-clock time. Queries include ORDER BY seq ASC so reads are stable.
//
// # Encoding
//
//   - post_state: canonical CBOR of the snapshot (deterministic bytes)
//   - heavy_imports: canonical JSON array of module names
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
