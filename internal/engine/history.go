package engine

import "github.com/treeleaves30760/PyMD/internal/ir"

// Unchanged is returned by FindFirstChangedBlock when every position matches.
const Unchanged = -1

// FirstChanged compares two ordered hash lists position by position. It
// returns the first differing index, min(len(prev), len(next)) when only the
// count differs, or Unchanged.
func FirstChanged(prev, next []string) int {
	n := min(len(prev), len(next))
	for i := 0; i < n; i++ {
		if prev[i] != next[i] {
			return i
		}
	}
	if len(prev) != len(next) {
		return n
	}
	return Unchanged
}

// BlockHashes fingerprints blocks by content only.
func BlockHashes(blocks []ir.ScriptBlock) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = ir.BlockHash(b)
	}
	return out
}

// FindFirstChangedBlock returns the resume point for blocks relative to the
// last recorded document. It does not update the history.
func (e *Engine) FindFirstChangedBlock(blocks []ir.ScriptBlock) int {
	return FirstChanged(e.history, BlockHashes(blocks))
}

// RecordBlocks stores blocks as the last seen document.
func (e *Engine) RecordBlocks(blocks []ir.ScriptBlock) {
	e.history = BlockHashes(blocks)
}
