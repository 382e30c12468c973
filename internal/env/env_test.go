package env

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

// brokenValue is a host value whose display form cannot be produced.
type brokenValue struct{ panics bool }

func (b brokenValue) String() string {
	if b.panics {
		panic("no display form")
	}
	return "broken"
}
func (b brokenValue) Type() string          { return "broken" }
func (b brokenValue) Freeze()               {}
func (b brokenValue) Truth() starlark.Bool  { return true }
func (b brokenValue) Hash() (uint32, error) { return 0, errors.New("unhashable") }

func (b brokenValue) SnapshotString() (string, error) {
	if b.panics {
		return b.String(), nil
	}
	return "", errors.New("opaque")
}

func TestIsReserved(t *testing.T) {
	assert.True(t, IsReserved("__builtins__"))
	assert.True(t, IsReserved("__x"))
	assert.True(t, IsReserved(""))
	assert.False(t, IsReserved("_x"))
	assert.False(t, IsReserved("x__"))
}

func TestSetRejectsReservedAndNil(t *testing.T) {
	e := New()
	require.Error(t, e.Set("__name__", starlark.String("m")))
	require.Error(t, e.Set("x", nil))
	require.NoError(t, e.Set("x", starlark.MakeInt(1)))
	assert.Equal(t, 1, e.Len())
}

func TestBindIsNameUnion(t *testing.T) {
	e := New()
	require.NoError(t, e.Set("a", starlark.MakeInt(1)))
	require.NoError(t, e.Set("b", starlark.MakeInt(2)))

	e.Bind(map[string]starlark.Value{
		"b":     starlark.MakeInt(20),
		"c":     starlark.MakeInt(30),
		"__tmp": starlark.MakeInt(99),
	}, "k1")

	assert.Equal(t, []string{"a", "b", "c"}, e.Names())
	v, _ := e.Get("b")
	assert.Equal(t, "20", v.String())
	v, _ = e.Get("a")
	assert.Equal(t, "1", v.String())
	assert.Empty(t, e.Origin("c"))
}

func TestBindStampsOpaqueValues(t *testing.T) {
	e := New()
	fn := starlark.NewBuiltin("fn", nil)

	e.Bind(map[string]starlark.Value{"fn": fn, "n": starlark.MakeInt(1)}, "k1")
	assert.Equal(t, "k1", e.Origin("fn"))
	assert.Equal(t, "<built-in function fn> @k1", e.Snapshot().Map()["fn"])

	e.Bind(map[string]starlark.Value{"fn": fn}, "k2")
	assert.Equal(t, "k1", e.Origin("fn"), "an unchanged value keeps its origin")

	e.Bind(map[string]starlark.Value{"fn": starlark.NewBuiltin("fn", nil)}, "k3")
	assert.Equal(t, "k3", e.Origin("fn"))

	e.Bind(map[string]starlark.Value{"fn": starlark.MakeInt(0)}, "k4")
	assert.Empty(t, e.Origin("fn"))
	assert.Equal(t, "0", e.Snapshot().Map()["fn"])
}

func TestSetStampsHostValues(t *testing.T) {
	e := New()
	require.NoError(t, e.Set("fn", starlark.NewBuiltin("fn", nil)))
	first := e.Snapshot()
	require.NoError(t, e.Set("fn", starlark.NewBuiltin("fn", nil)))

	assert.Equal(t, "host:2", e.Origin("fn"))
	assert.False(t, first.Equal(e.Snapshot()))

	e.Delete("fn")
	assert.Empty(t, e.Origin("fn"))
}

func TestIdentifies(t *testing.T) {
	fn := starlark.NewBuiltin("fn", nil)
	cyclic := starlark.NewList(nil)
	require.NoError(t, cyclic.Append(cyclic))
	withFn := starlark.NewDict(1)
	require.NoError(t, withFn.SetKey(starlark.String("f"), fn))
	plain := starlark.NewDict(1)
	require.NoError(t, plain.SetKey(starlark.String("xs"), starlark.NewList([]starlark.Value{starlark.MakeInt(1)})))

	cases := []struct {
		name string
		v    starlark.Value
		want bool
	}{
		{"none", starlark.None, true},
		{"string", starlark.String("s"), true},
		{"nested data", plain, true},
		{"cyclic list", cyclic, true},
		{"tuple of data", starlark.Tuple{starlark.MakeInt(1), starlark.Float(2)}, true},
		{"host stringifier", brokenValue{}, true},
		{"builtin", fn, false},
		{"dict holding a builtin", withFn, false},
		{"tuple holding a builtin", starlark.Tuple{starlark.None, fn}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Identifies(tc.v))
		})
	}
}

func TestRestoreRemovesAbsentNames(t *testing.T) {
	src := New()
	require.NoError(t, src.Set("z", starlark.None))
	st := src.Capture()

	e := New()
	require.NoError(t, e.Set("a", starlark.MakeInt(1)))
	e.Restore(st)
	assert.Equal(t, []string{"z"}, e.Names())
}

func TestBuildSnapshotSortedAndDropsFailures(t *testing.T) {
	e := New()
	require.NoError(t, e.Set("zeta", starlark.String("z")))
	require.NoError(t, e.Set("alpha", starlark.NewList([]starlark.Value{starlark.MakeInt(1)})))
	require.NoError(t, e.Set("opaque", brokenValue{}))
	require.NoError(t, e.Set("panicky", brokenValue{panics: true}))

	snap := e.Snapshot()
	assert.Equal(t, ir.Snapshot{
		{Name: "alpha", Repr: "[1]"},
		{Name: "zeta", Repr: `"z"`},
	}, snap)
}

func TestSnapshotOrderIndependence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("insertion order never changes the snapshot", prop.ForAll(
		func(names []string) bool {
			forward, backward := New(), New()
			for _, name := range names {
				_ = forward.Set(name, starlark.MakeInt(len(name)))
			}
			for i := len(names) - 1; i >= 0; i-- {
				_ = backward.Set(names[i], starlark.MakeInt(len(names[i])))
			}
			return forward.Snapshot().Equal(backward.Snapshot()) &&
				ir.StateDigest(forward.Snapshot()) == ir.StateDigest(backward.Snapshot())
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}

func TestCaptureReportsAliases(t *testing.T) {
	e := New()
	require.NoError(t, e.Set("xs", starlark.NewList([]starlark.Value{starlark.MakeInt(1)})))
	require.NoError(t, e.Set("fn", starlark.NewBuiltin("fn", nil)))

	st := e.Capture()
	assert.Equal(t, []string{"fn"}, st.Aliased)
	assert.Equal(t, e.Snapshot(), st.Snapshot())

	orig, _ := e.Get("xs")
	assert.NotSame(t, orig, st.Values["xs"])
	fn, _ := e.Get("fn")
	assert.Same(t, fn, st.Values["fn"])
}

func TestCaptureKeepsSharing(t *testing.T) {
	shared := starlark.NewList([]starlark.Value{starlark.MakeInt(1)})
	e := New()
	require.NoError(t, e.Set("a", shared))
	require.NoError(t, e.Set("b", starlark.NewList([]starlark.Value{shared})))

	st := e.Capture()
	a := st.Values["a"].(*starlark.List)
	b := st.Values["b"].(*starlark.List)
	assert.NotSame(t, shared, a)
	assert.Same(t, a, b.Index(0))
}

func TestApplyKeepsMatchingLiveValues(t *testing.T) {
	xs := starlark.NewList([]starlark.Value{starlark.MakeInt(1)})
	e := New()
	require.NoError(t, e.Set("xs", xs))
	require.NoError(t, e.Set("n", starlark.MakeInt(1)))
	st := e.Capture()

	require.NoError(t, e.Set("n", starlark.MakeInt(2)))
	require.NoError(t, e.Set("extra", starlark.True))
	e.Apply(st)

	v, _ := e.Get("xs")
	assert.Same(t, xs, v)
	assert.Equal(t, map[string]string{"xs": "[1]", "n": "1", "extra": "True"}, e.Snapshot().Map())

	require.NoError(t, xs.Append(starlark.MakeInt(2)))
	e.Apply(st)
	v, _ = e.Get("xs")
	assert.NotSame(t, xs, v)
	assert.Equal(t, "[1]", v.String())
}
