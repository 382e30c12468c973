// Package engine implements the incremental execution and caching engine.
//
// The engine decides, for each block, whether it must evaluate the block or
// may reuse a memoized result, while keeping one document-scoped environment
// consistent across hits, misses, failures and explicit checkpoints.
//
// ARCHITECTURE:
//
// Single-Threaded, Synchronous:
// One block completes entirely (evaluation, capture, cache update, stats
// update) before the next begins. An Engine owns its environment, cache,
// checkpoints and counters, so none of them lock. A host must not share one
// Engine between concurrent callers.
//
// Execute Flow:
//  1. Snapshot the environment and derive the key for (index, text, snapshot).
//  2. Hit: merge the cached post-run bindings into the environment by
//     name-union and return a copy of the cached result.
//  3. Miss: report heavy imports, install mock input, evaluate against a
//     working copy plus helpers, merge non-reserved non-helper bindings back
//     on success, memoize the result (failures included), update stats.
//
// Cache keys cover the whole environment snapshot. Changing any binding
// invalidates every block that runs afterwards, whether or not it reads it.
//
// A block re-executed at the same position right after its own miss sees its
// own effects in the environment. The engine remembers the post-run digest
// of each position and treats that re-entry as a hit on the original key.
//
// Execute never returns an error and never panics: evaluation and validation
// failures are results, engine bugs are recovered into internal results.
package engine
