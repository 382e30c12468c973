package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.starlark.net/starlark"

	"github.com/treeleaves30760/PyMD/internal/cache"
	"github.com/treeleaves30760/PyMD/internal/env"
	"github.com/treeleaves30760/PyMD/internal/evaluator"
	"github.com/treeleaves30760/PyMD/internal/ir"
	"github.com/treeleaves30760/PyMD/internal/mockinput"
)

// Execute runs or reuses one block and returns its result. It is total:
// failures in the block, in mock input, or in the engine itself come back as
// a result with Success false.
func (e *Engine) Execute(ctx context.Context, block ir.ScriptBlock) (res ir.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("execute panicked", "block", block.Index, "panic", r)
			res = ir.ExecutionResult{
				BlockIndex: block.Index,
				Error: &ir.ErrorDetail{
					Category: ir.CategoryInternal,
					Kind:     ir.KindInternal,
					Message:  fmt.Sprint(r),
					Trace:    string(debug.Stack()),
				},
				PostState: e.env.Snapshot(),
			}
		}
	}()

	if !block.Executable() {
		return e.present(ctx, block)
	}

	snap := e.env.Snapshot()
	key := ir.ExecKey(block.Index, block.Source, snap)

	if entry, ok := e.lookup(block, key, snap); ok {
		return e.hit(ctx, block, entry)
	}
	return e.miss(ctx, block, key)
}

// lookup finds a memoized entry by key, or by the settled run at this
// position when the environment already holds that run's effects.
func (e *Engine) lookup(block ir.ScriptBlock, key string, snap ir.Snapshot) (*cache.Entry, bool) {
	if entry, ok := e.cache.Get(key); ok {
		return entry, true
	}
	s, ok := e.settled[block.Index]
	if !ok || s.text != block.Source {
		return nil, false
	}
	if s.postDigest != ir.StateDigest(snap) {
		return nil, false
	}
	return e.cache.Get(s.key)
}

func (e *Engine) hit(ctx context.Context, block ir.ScriptBlock, entry *cache.Entry) ir.ExecutionResult {
	e.env.Apply(entry.State)
	e.stats.hit()

	res := entry.Result.Clone()
	res.CacheHit = true
	res.BlockIndex = block.Index

	e.logger.Debug("cache hit", "block", block.Index, "key", shortKey(entry.Key))
	e.record(ctx, block, res)
	return res
}

func (e *Engine) miss(ctx context.Context, block ir.ScriptBlock, key string) ir.ExecutionResult {
	start := e.now()

	heavy := ScanHeavyImports(block.Source, e.heavy)
	if len(heavy) > 0 && e.progress != nil {
		e.progress(block.Index, heavy)
	}

	res := ir.ExecutionResult{
		BlockIndex:   block.Index,
		CacheKey:     key,
		HeavyImports: heavy,
	}
	provider, err := mockinput.Install(block.Source, e.strictInput)
	if err != nil {
		res.Error = installError(err)
	} else {
		res.Stdout, res.Error = e.evaluate(ctx, block, key, provider)
	}
	res.Success = res.Error == nil
	res.PostState = e.env.Snapshot()
	res.ElapsedMs = elapsedMs(start, e.now())
	e.stats.miss(res.ElapsedMs)

	if res.Error != nil && res.Error.Kind == ir.KindCancelled {
		// Cancellation belongs to the host, not to the block.
		e.logger.Debug("cancelled result not cached", "block", block.Index)
		e.record(ctx, block, res)
		return res.Clone()
	}

	state := e.env.Capture()
	if len(state.Aliased) > 0 {
		e.logger.Debug("cached state shares values", "block", block.Index, "names", state.Aliased)
	}
	evicted := e.cache.Put(&cache.Entry{Key: key, Result: res.Clone(), State: state})
	if len(evicted) > 0 {
		e.logger.Debug("cache trimmed", "evicted", len(evicted), "size", e.cache.Len())
	}
	e.settled[block.Index] = settledRun{
		text:       block.Source,
		postDigest: ir.StateDigest(res.PostState),
		key:        key,
	}

	e.logger.Debug("cache miss",
		"block", block.Index,
		"key", shortKey(key),
		"success", res.Success,
		"elapsed_ms", res.ElapsedMs,
	)
	e.record(ctx, block, res)
	return res.Clone()
}

// evaluate runs the block against the live values plus helpers. Bindings
// the block creates or rebinds reach the environment only on success, tagged
// with the run's key; in-place mutation of shared values is visible either
// way.
func (e *Engine) evaluate(ctx context.Context, block ir.ScriptBlock, key string, provider *mockinput.Provider) (string, *ir.ErrorDetail) {
	live := e.env.Values()
	globals := make(starlark.StringDict, len(live)+len(e.helpers)+1)
	for name, v := range live {
		globals[name] = v
	}
	for name, v := range e.helpers {
		globals[name] = v
	}
	if provider != nil {
		globals[mockinput.BuiltinName] = provider.Builtin()
	}

	out := e.eval.Run(ctx, fmt.Sprintf("block-%d", block.Index), block.Source, globals)
	if out.Err != nil {
		return out.Stdout, out.Err
	}

	updated := make(map[string]starlark.Value, len(globals))
	for name, v := range globals {
		if env.IsReserved(name) || e.isHelper(name) {
			continue
		}
		if provider != nil && name == mockinput.BuiltinName {
			continue
		}
		updated[name] = v
	}
	e.env.Bind(updated, shortKey(key))
	return out.Stdout, nil
}

// installError converts a mock-input installation failure into a descriptor.
func installError(err error) *ir.ErrorDetail {
	var d evaluator.Detailer
	if errors.As(err, &d) {
		detail := d.Detail()
		return &detail
	}
	return &ir.ErrorDetail{
		Category: ir.CategoryValidation,
		Kind:     ir.KindInputMissing,
		Message:  err.Error(),
	}
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
