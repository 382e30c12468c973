package evaluator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

func run(t *testing.T, ev *Evaluator, src string, globals starlark.StringDict) Outcome {
	t.Helper()
	if globals == nil {
		globals = starlark.StringDict{}
	}
	return ev.Run(context.Background(), "block", src, globals)
}

func TestRunBindsGlobalsAndCapturesPrint(t *testing.T) {
	globals := starlark.StringDict{}
	out := run(t, New(), "x = 5\nprint('x is', x)", globals)

	require.Nil(t, out.Err)
	assert.Equal(t, "x is 5\n", out.Stdout)
	assert.Equal(t, "5", globals["x"].String())
	assert.Positive(t, out.Steps)
}

func TestRunRebindsFromPriorValue(t *testing.T) {
	globals := starlark.StringDict{"x": starlark.MakeInt(1)}
	out := run(t, New(), "x = x + 1", globals)

	require.Nil(t, out.Err)
	assert.Equal(t, "2", globals["x"].String())
}

func TestRunAllowsTopLevelControlFlow(t *testing.T) {
	globals := starlark.StringDict{}
	src := "total = 0\nfor i in range(4):\n    total += i\nif total > 5:\n    big = True\n"
	out := run(t, New(), src, globals)

	require.Nil(t, out.Err)
	assert.Equal(t, "6", globals["total"].String())
	assert.Equal(t, "True", globals["big"].String())
}

func TestRunLeavesGlobalsUnfrozen(t *testing.T) {
	globals := starlark.StringDict{}
	require.Nil(t, run(t, New(), "xs = [1]", globals).Err)
	require.Nil(t, run(t, New(), "xs.append(2)", globals).Err)
	assert.Equal(t, "[1, 2]", globals["xs"].String())
}

func TestRunKeepsOutputBeforeFailure(t *testing.T) {
	out := run(t, New(), "print('before')\n1/0\nprint('after')", nil)

	require.NotNil(t, out.Err)
	assert.Equal(t, "before\n", out.Stdout)
	assert.Equal(t, ir.KindDivisionByZero, out.Err.Kind)
	assert.Equal(t, ir.CategoryEvaluation, out.Err.Category)
	assert.NotEmpty(t, out.Err.Trace)
}

func TestRunLoadsBuiltinModules(t *testing.T) {
	globals := starlark.StringDict{}
	src := `load("math", "sqrt")
load("json", "json")
r = sqrt(16)
s = json.encode({"a": 1})
`
	out := run(t, New(), src, globals)

	require.Nil(t, out.Err)
	assert.Equal(t, "4.0", globals["r"].String())
	assert.Equal(t, `"{\"a\":1}"`, globals["s"].String())
}

func TestRunWithCustomModule(t *testing.T) {
	ev := New(WithModule("numpy", starlark.StringDict{"pi": starlark.Float(3.0)}))
	globals := starlark.StringDict{}
	out := run(t, ev, `load("numpy", "pi")`, globals)

	require.Nil(t, out.Err)
	assert.Equal(t, "3.0", globals["pi"].String())
	assert.Contains(t, ev.Modules(), "numpy")
}

func TestRunUnknownModule(t *testing.T) {
	out := run(t, New(), `load("pandas", "pd")`, nil)
	require.NotNil(t, out.Err)
	assert.Contains(t, out.Err.Message, "pandas")
}

func TestRunStepLimit(t *testing.T) {
	out := run(t, New(WithMaxSteps(1000)), "n = 0\nwhile True:\n    n += 1\n", nil)
	require.NotNil(t, out.Err)
	assert.Equal(t, ir.KindStepLimit, out.Err.Kind)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := New().Run(ctx, "block", "n = 0\nwhile True:\n    n += 1\n", starlark.StringDict{})
	require.NotNil(t, out.Err)
	assert.Equal(t, ir.KindCancelled, out.Err.Kind)
}

func TestRunRecoversBuiltinPanic(t *testing.T) {
	boom := starlark.NewBuiltin("boom", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
		panic("kaboom")
	})
	out := run(t, New(), "print('hi')\nboom()", starlark.StringDict{"boom": boom})

	require.NotNil(t, out.Err)
	assert.Equal(t, ir.CategoryInternal, out.Err.Category)
	assert.Equal(t, "kaboom", out.Err.Message)
	assert.Equal(t, "hi\n", out.Stdout)
}

func TestOutputWriterFeedsCapture(t *testing.T) {
	emit := starlark.NewBuiltin("emit", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		fmt.Fprintf(Output(thread), "<%s>", args[0].(starlark.String).GoString())
		return starlark.None, nil
	})
	out := run(t, New(), "emit('a')\nprint('b')", starlark.StringDict{"emit": emit})

	require.Nil(t, out.Err)
	assert.Equal(t, "<a>b\n", out.Stdout)
}

func TestOutputOutsideRunDiscards(t *testing.T) {
	w := Output(&starlark.Thread{})
	n, err := w.Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type validationErr struct{}

func (validationErr) Error() string { return "missing" }
func (validationErr) Detail() ir.ErrorDetail {
	return ir.ErrorDetail{Category: ir.CategoryValidation, Kind: ir.KindInputMissing, Message: "missing"}
}

func TestRunSurfacesDetailerFromBuiltin(t *testing.T) {
	ask := starlark.NewBuiltin("ask", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
		return nil, validationErr{}
	})
	out := run(t, New(), "v = ask()", starlark.StringDict{"ask": ask})

	require.NotNil(t, out.Err)
	assert.Equal(t, ir.CategoryValidation, out.Err.Category)
	assert.Equal(t, ir.KindInputMissing, out.Err.Kind)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind string
	}{
		{"syntax", "x = = 1", ir.KindSyntaxError},
		{"undefined", "y = nope + 1", ir.KindUndefinedName},
		{"type", "z = 'a' + 1", ir.KindTypeError},
		{"key", "d = {}\nv = d['k']", ir.KindKeyError},
		{"index", "v = [][3]", ir.KindIndexError},
		{"floored division", "v = 1 // 0", ir.KindDivisionByZero},
		{"fail", "fail('custom')", ir.KindEvalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := run(t, New(), tt.src, nil)
			require.NotNil(t, out.Err)
			assert.Equal(t, tt.kind, out.Err.Kind, out.Err.Message)
		})
	}

	assert.Nil(t, Classify(nil))
	assert.Equal(t, ir.KindEvalError, Classify(errors.New("odd")).Kind)
}
