// Package mockinput supplies deterministic answers to blocking input calls.
//
// A block asks for input with input(prompt?). Answers are taken from
// "# input: <literal>" annotations on the same line as the call and are handed
// out in textual line order, one per call, never reused.
package mockinput

import (
	"fmt"
	"strings"

	"go.starlark.net/starlark"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

const (
	// CallToken is the text that marks a line as performing a blocking input call.
	CallToken = "input("
	// AnnotationToken introduces the literal answer for that call.
	AnnotationToken = "# input:"
	// BuiltinName is the binding name of the injected input function.
	BuiltinName = "input"
)

// Answer is one registered mock value.
type Answer struct {
	Line      int
	Value     string
	Annotated bool
}

// Error is a validation failure raised while installing or consuming answers.
type Error struct {
	Kind    string
	Line    int
	Message string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Detail converts the error into a result descriptor.
func (e *Error) Detail() ir.ErrorDetail {
	return ir.ErrorDetail{
		Category: ir.CategoryValidation,
		Kind:     e.Kind,
		Message:  e.Error(),
	}
}

// Needed reports whether text performs any blocking input call.
func Needed(text string) bool {
	return strings.Contains(text, CallToken)
}

// Parse scans text line by line and registers one answer per line containing
// a call. Annotated lines register the trimmed literal; other lines register an
// empty placeholder.
func Parse(text string) []Answer {
	var answers []Answer
	for i, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, CallToken) {
			continue
		}
		ans := Answer{Line: i + 1}
		if _, literal, ok := strings.Cut(line, AnnotationToken); ok {
			ans.Value = strings.TrimSpace(literal)
			ans.Annotated = true
		}
		answers = append(answers, ans)
	}
	return answers
}

// Provider hands out answers by a monotonically increasing counter.
type Provider struct {
	answers []Answer
	next    int
}

// Install builds a provider for text. It returns (nil, nil) when text has no
// input call. In strict mode an unannotated call is reported as missing.
func Install(text string, strict bool) (*Provider, error) {
	if !Needed(text) {
		return nil, nil
	}
	answers := Parse(text)
	if strict {
		for _, a := range answers {
			if !a.Annotated {
				return nil, &Error{
					Kind:    ir.KindInputMissing,
					Line:    a.Line,
					Message: "input() found without mock value; add '# input: <value>' after the call",
				}
			}
		}
	}
	return &Provider{answers: answers}, nil
}

// Next returns the next answer in textual order.
func (p *Provider) Next() (string, error) {
	if p.next >= len(p.answers) {
		return "", &Error{
			Kind:    ir.KindInputExhausted,
			Message: fmt.Sprintf("input() called %d times but only %d mock values registered", p.next+1, len(p.answers)),
		}
	}
	ans := p.answers[p.next]
	p.next++
	return ans.Value, nil
}

// Remaining returns the number of unused answers.
func (p *Provider) Remaining() int {
	return len(p.answers) - p.next
}

// Builtin exposes the provider as the Starlark input function.
// The optional prompt is accepted and ignored; nothing is printed.
func (p *Provider) Builtin() *starlark.Builtin {
	return starlark.NewBuiltin(BuiltinName, func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var prompt starlark.Value
		if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "prompt?", &prompt); err != nil {
			return nil, err
		}
		v, err := p.Next()
		if err != nil {
			return nil, err
		}
		return starlark.String(v), nil
	})
}
