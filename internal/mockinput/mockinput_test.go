package mockinput

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

func TestParse(t *testing.T) {
	text := strings.Join([]string{
		`name = input("name? ")  # input: Ada`,
		`x = 1`,
		`age = input()`,
		`n = input("n") # input:   42  `,
	}, "\n")

	answers := Parse(text)
	require.Len(t, answers, 3)
	assert.Equal(t, Answer{Line: 1, Value: "Ada", Annotated: true}, answers[0])
	assert.Equal(t, Answer{Line: 3, Value: "", Annotated: false}, answers[1])
	assert.Equal(t, Answer{Line: 4, Value: "42", Annotated: true}, answers[2])
}

func TestInstallWithoutCall(t *testing.T) {
	p, err := Install("x = 1  # input: 3", false)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestInstallStrictReportsMissing(t *testing.T) {
	_, err := Install("a = input()  # input: 1\nb = input()", true)
	require.Error(t, err)

	var inputErr *Error
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, ir.KindInputMissing, inputErr.Kind)
	assert.Equal(t, 2, inputErr.Line)
	assert.Equal(t, ir.CategoryValidation, inputErr.Detail().Category)
}

func TestInstallLenientKeepsPlaceholder(t *testing.T) {
	p, err := Install("b = input()", false)
	require.NoError(t, err)

	v, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestNextExhausts(t *testing.T) {
	p, err := Install(`x = input()  # input: only`, false)
	require.NoError(t, err)

	v, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "only", v)
	assert.Equal(t, 0, p.Remaining())

	_, err = p.Next()
	var inputErr *Error
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, ir.KindInputExhausted, inputErr.Kind)
}

func TestBuiltinReturnsStringLiteral(t *testing.T) {
	p, err := Install(`x = input("n: ")  # input: 42`, false)
	require.NoError(t, err)

	thread := &starlark.Thread{Name: "test"}
	v, err := starlark.Call(thread, p.Builtin(), starlark.Tuple{starlark.String("n: ")}, nil)
	require.NoError(t, err)
	assert.Equal(t, starlark.String("42"), v)
	assert.Equal(t, "string", v.Type())
}

func TestAnswersFollowTextualOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("answers come back in line order and are never reused", prop.ForAll(
		func(values []string) bool {
			lines := make([]string, len(values))
			for i, v := range values {
				lines[i] = fmt.Sprintf("v%d = input()  # input: %s", i, v)
			}
			p, err := Install(strings.Join(lines, "\n"), true)
			if len(values) == 0 {
				return p == nil && err == nil
			}
			if err != nil {
				return false
			}
			for _, want := range values {
				got, err := p.Next()
				if err != nil || got != want {
					return false
				}
			}
			_, err = p.Next()
			return err != nil
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
