// Package ir provides the shared data model for the block execution engine.
//
// This package contains type definitions, canonical encoding, and content
// hashing only. All other internal packages import ir; ir imports nothing
// internal. This keeps ir the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - Cache keys are content-addressed: SHA-256 over a domain prefix and the
//     canonical JSON of the key material, never over Go's %v formatting.
//   - A Snapshot is always sorted by binding name, so two environments with the
//     same name/string pairs produce the same key regardless of insertion order.
//   - All JSON tags use snake_case.
//   - Ordering uses logical sequence numbers; wall-clock time is only used for
//     elapsed-time reporting.
package ir
