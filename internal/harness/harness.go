package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sort"
	"time"

	"go.starlark.net/starlark"

	"github.com/treeleaves30760/PyMD/internal/engine"
	"github.com/treeleaves30760/PyMD/internal/ir"
	"github.com/treeleaves30760/PyMD/internal/render"
	"github.com/treeleaves30760/PyMD/internal/store"
	"github.com/treeleaves30760/PyMD/internal/testutil"
)

// Harness holds one scenario's engine, renderer and execution log.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	renderer *render.Renderer
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database and engine
// 2. Execute steps in order, checking step expectations
// 3. Evaluate assertions
// 4. Return result with pass/fail, trace, and errors
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	sessions := testutil.NewFixedSessionGenerator(scenario.SessionID)
	clock := testutil.NewFakeClock(time.Millisecond)

	opts := []engine.Option{
		engine.WithNow(clock.Now),
		engine.WithLogger(logger),
		engine.WithRecorder(st),
		engine.WithSessionID(sessions.Generate()),
		engine.WithHelpers(render.Helpers()),
		engine.WithMaxSteps(scenario.Engine.MaxSteps),
		engine.WithStrictInput(scenario.Engine.StrictInput),
	}
	if scenario.Engine.Capacity != 0 {
		opts = append(opts, engine.WithCapacity(scenario.Engine.Capacity))
	}
	eng, err := engine.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	h := &Harness{
		store:    st,
		engine:   eng,
		renderer: render.New(eng, render.WithLogger(logger)),
		logger:   logger,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		event, err := h.runStep(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.Trace = append(result.Trace, event)
		for _, msg := range checkStep(i, step.Expect, event) {
			result.AddError(msg)
		}
	}

	if err := eng.RecordError(); err != nil {
		return nil, fmt.Errorf("execution log: %w", err)
	}
	result.Stats = eng.GetStats()
	result.Env = eng.Environment().Snapshot().Map()

	records, err := st.ReadExecutions(ctx, eng.SessionID())
	if err != nil {
		return nil, fmt.Errorf("failed to read execution log: %w", err)
	}
	for _, msg := range EvaluateAssertions(result, records, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) runStep(ctx context.Context, i int, step Step) (TraceEvent, error) {
	event := TraceEvent{Step: i, Op: step.Op()}

	switch event.Op {
	case OpExecute, OpDisplay:
		block := ir.ScriptBlock{Index: step.Index, Kind: ir.BlockExecute}
		if step.Execute != nil {
			block.Source = *step.Execute
		} else {
			block.Source = *step.Display
			block.Kind = ir.BlockDisplay
		}
		res := h.engine.Execute(ctx, block)
		event.Index = step.Index
		event.CacheHit = res.CacheHit
		event.Success = res.Success
		event.Stdout = res.Stdout
		if res.Error != nil {
			event.ErrorKind = res.Error.Kind
		}
		h.logger.Info("block executed", "step", i, "index", step.Index, "hit", res.CacheHit)

	case OpSet:
		names := make([]string, 0, len(step.Set))
		for name := range step.Set {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v, err := toStarlark(step.Set[name])
			if err != nil {
				return event, fmt.Errorf("set %q: %w", name, err)
			}
			if err := h.engine.Environment().Set(name, v); err != nil {
				return event, fmt.Errorf("set %q: %w", name, err)
			}
		}

	case OpCheckpoint:
		event.Index = *step.Checkpoint
		h.engine.SaveCheckpoint(*step.Checkpoint)

	case OpRestore:
		event.Index = *step.Restore
		event.Restored = h.engine.RestoreCheckpoint(*step.Restore)

	case OpClear:
		h.renderer.ClearAll()

	case OpRender:
		out, report, err := h.renderer.Render(ctx, *step.Render)
		if err != nil {
			return event, fmt.Errorf("render: %w", err)
		}
		event.Output = out
		event.Shortcut = report.Shortcut
		event.Success = report.Failures == 0
	}

	event.Env = h.engine.Environment().Snapshot().Map()
	return event, nil
}

// checkStep compares a step's trace event with its expectations.
func checkStep(i int, want *StepExpect, got TraceEvent) []string {
	if want == nil {
		return nil
	}
	var errs []string
	fail := func(field string, expected, actual any) {
		errs = append(errs, fmt.Sprintf("steps[%d].%s: expected %v, got %v", i, field, expected, actual))
	}

	if want.Success != nil && *want.Success != got.Success {
		fail("success", *want.Success, got.Success)
	}
	if want.CacheHit != nil && *want.CacheHit != got.CacheHit {
		fail("cache_hit", *want.CacheHit, got.CacheHit)
	}
	if want.Stdout != nil && *want.Stdout != got.Stdout {
		fail("stdout", fmt.Sprintf("%q", *want.Stdout), fmt.Sprintf("%q", got.Stdout))
	}
	if want.ErrorKind != "" && want.ErrorKind != got.ErrorKind {
		fail("error_kind", want.ErrorKind, got.ErrorKind)
	}
	if want.Env != nil && !maps.Equal(want.Env, got.Env) {
		fail("env", want.Env, got.Env)
	}
	if want.Restored != nil && *want.Restored != got.Restored {
		fail("restored", *want.Restored, got.Restored)
	}
	if want.Output != nil && *want.Output != got.Output {
		fail("output", fmt.Sprintf("%q", *want.Output), fmt.Sprintf("%q", got.Output))
	}
	if want.Shortcut != nil && *want.Shortcut != got.Shortcut {
		fail("shortcut", *want.Shortcut, got.Shortcut)
	}
	return errs
}

// toStarlark converts a YAML-parsed value to a Starlark value.
// Returns an error for null values since the environment cannot hold them.
func toStarlark(val any) (starlark.Value, error) {
	switch v := val.(type) {
	case nil:
		return nil, fmt.Errorf("null values are not supported")
	case string:
		return starlark.String(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case float64:
		return starlark.Float(v), nil
	case bool:
		return starlark.Bool(v), nil
	case []any:
		elems := make([]starlark.Value, len(v))
		for i, elem := range v {
			sv, err := toStarlark(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := starlark.NewDict(len(v))
		for _, k := range keys {
			sv, err := toStarlark(v[k])
			if err != nil {
				return nil, fmt.Errorf("dict[%q]: %w", k, err)
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported type %T", val)
	}
}
