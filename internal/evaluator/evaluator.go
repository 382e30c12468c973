// Package evaluator runs one block of Starlark source against a set of module
// globals and reports captured output and a classified error.
//
// Globals are seeded by the caller and updated in place, so a block can rebind
// a name from its own prior value. Nothing is frozen after a run.
package evaluator

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	"go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

// outputKey is the thread-local slot holding the capture buffer.
const outputKey = "pymd.output"

// Outcome is the result of one Run.
type Outcome struct {
	Stdout string
	Err    *ir.ErrorDetail
	Steps  uint64
}

// Evaluator compiles and runs blocks. It holds no per-run state and may be
// reused across blocks.
type Evaluator struct {
	fileOpts *syntax.FileOptions
	modules  map[string]starlark.StringDict
	maxSteps uint64
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithMaxSteps bounds the Starlark execution steps of a single run.
// Zero means unlimited.
func WithMaxSteps(n uint64) Option {
	return func(ev *Evaluator) {
		ev.maxSteps = n
	}
}

// WithModule makes members loadable as load("name", ...). A module registered
// under an existing name replaces it.
func WithModule(name string, members starlark.StringDict) Option {
	return func(ev *Evaluator) {
		ev.modules[name] = members
	}
}

// New creates an Evaluator with the math, json and time modules loadable.
func New(opts ...Option) *Evaluator {
	ev := &Evaluator{
		fileOpts: &syntax.FileOptions{
			Set:               true,
			While:             true,
			TopLevelControl:   true,
			GlobalReassign:    true,
			LoadBindsGlobally: true,
			Recursion:         true,
		},
		modules: map[string]starlark.StringDict{
			"math": moduleMembers(math.Module),
			"json": moduleMembers(json.Module),
			"time": moduleMembers(time.Module),
		},
	}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

// moduleMembers exposes a module both as itself and by member name, so that
// load("math", "math") and load("math", "sqrt") both work.
func moduleMembers(m *starlarkstruct.Module) starlark.StringDict {
	out := make(starlark.StringDict, len(m.Members)+1)
	for name, v := range m.Members {
		out[name] = v
	}
	out[m.Name] = m
	return out
}

// Modules returns the registered module names.
func (ev *Evaluator) Modules() []string {
	names := make([]string, 0, len(ev.modules))
	for name := range ev.modules {
		names = append(names, name)
	}
	return names
}

// Output returns the writer that captures output for the run executing on
// thread. Host builtins use it to emit text alongside print. Outside a run it
// returns io.Discard.
func Output(thread *starlark.Thread) io.Writer {
	if thread == nil {
		return io.Discard
	}
	if w, ok := thread.Local(outputKey).(io.Writer); ok {
		return w
	}
	return io.Discard
}

// Run parses and executes src with globals as its module globals.
//
// globals is mutated in place, including after a failure; callers that need
// the pre-run state must pass a copy. Cancelling ctx stops evaluation at the
// next step. Run never panics: a panic inside a host builtin is reported as an
// internal error.
func (ev *Evaluator) Run(ctx context.Context, name, src string, globals starlark.StringDict) (out Outcome) {
	var stdout strings.Builder
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			stdout.WriteString(msg)
			stdout.WriteByte('\n')
		},
		Load: ev.load,
	}
	thread.SetLocal(outputKey, io.Writer(&stdout))
	if ev.maxSteps > 0 {
		thread.SetMaxExecutionSteps(ev.maxSteps)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-stop:
		}
	}()

	defer func() {
		out.Stdout = stdout.String()
		out.Steps = thread.ExecutionSteps()
		if r := recover(); r != nil {
			out.Err = &ir.ErrorDetail{
				Category: ir.CategoryInternal,
				Kind:     ir.KindInternal,
				Message:  fmt.Sprint(r),
				Trace:    string(debug.Stack()),
			}
		}
	}()

	f, err := ev.fileOpts.Parse(name, src, 0)
	if err != nil {
		out.Err = Classify(err)
		return out
	}
	if err := starlark.ExecREPLChunk(f, thread, globals); err != nil {
		out.Err = Classify(err)
	}
	return out
}

func (ev *Evaluator) load(_ *starlark.Thread, module string) (starlark.StringDict, error) {
	members, ok := ev.modules[module]
	if !ok {
		return nil, fmt.Errorf("module %q not found", module)
	}
	return members, nil
}
