package engine

import (
	"context"

	"github.com/treeleaves30760/PyMD/internal/cache"
	"github.com/treeleaves30760/PyMD/internal/ir"
)

// present memoizes the presentation of a display block. Display blocks never
// evaluate and never touch the environment, so their key is the text alone
// and their result carries no post-state.
func (e *Engine) present(ctx context.Context, block ir.ScriptBlock) ir.ExecutionResult {
	key := ir.DisplayKey(block.Source)

	if entry, ok := e.cache.Get(key); ok {
		e.stats.hit()
		res := entry.Result.Clone()
		res.CacheHit = true
		res.BlockIndex = block.Index
		e.record(ctx, block, res)
		return res
	}

	start := e.now()
	res := ir.ExecutionResult{
		BlockIndex: block.Index,
		Success:    true,
		Stdout:     e.presenter(block.Source),
		CacheKey:   key,
	}
	res.ElapsedMs = elapsedMs(start, e.now())
	e.stats.miss(res.ElapsedMs)
	e.cache.Put(&cache.Entry{Key: key, Result: res.Clone()})
	e.record(ctx, block, res)
	return res.Clone()
}
