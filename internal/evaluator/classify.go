package evaluator

import (
	"errors"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

// Detailer is implemented by host errors that carry their own descriptor,
// such as mock-input validation failures raised from inside a builtin.
type Detailer interface {
	Detail() ir.ErrorDetail
}

// kindRule maps a message fragment to an error kind. Rules are checked in
// order; the first match wins.
type kindRule struct {
	fragment string
	kind     string
}

var runtimeRules = []kindRule{
	{"too many steps", ir.KindStepLimit},
	{"computation cancelled", ir.KindCancelled},
	{"division by zero", ir.KindDivisionByZero},
	{"modulo by zero", ir.KindDivisionByZero},
	{"referenced before assignment", ir.KindUndefinedName},
	{"undefined:", ir.KindUndefinedName},
	{"not in dict", ir.KindKeyError},
	{"key not found", ir.KindKeyError},
	{"out of range", ir.KindIndexError},
	{"unknown binary op", ir.KindTypeError},
	{"unsupported", ir.KindTypeError},
	{"unhashable", ir.KindTypeError},
	{"not callable", ir.KindTypeError},
	{"not iterable", ir.KindTypeError},
	{", want ", ir.KindTypeError},
	{"has no .", ir.KindTypeError},
}

// Classify turns an error from parsing, resolving or executing a block into a
// structured descriptor. It returns nil for a nil error.
func Classify(err error) *ir.ErrorDetail {
	if err == nil {
		return nil
	}

	var detailer Detailer
	if errors.As(err, &detailer) {
		d := detailer.Detail()
		d.Trace = traceOf(err)
		return &d
	}

	var synErr syntax.Error
	if errors.As(err, &synErr) {
		return &ir.ErrorDetail{
			Category: ir.CategoryEvaluation,
			Kind:     ir.KindSyntaxError,
			Message:  synErr.Msg,
			Trace:    synErr.Error(),
		}
	}

	var resErrs resolve.ErrorList
	if errors.As(err, &resErrs) {
		msgs := make([]string, len(resErrs))
		kind := ir.KindSyntaxError
		for i, e := range resErrs {
			msgs[i] = e.Error()
			if strings.HasPrefix(e.Msg, "undefined:") {
				kind = ir.KindUndefinedName
			}
		}
		return &ir.ErrorDetail{
			Category: ir.CategoryEvaluation,
			Kind:     kind,
			Message:  resErrs[0].Msg,
			Trace:    strings.Join(msgs, "\n"),
		}
	}

	msg := err.Error()
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		msg = evalErr.Msg
	}
	return &ir.ErrorDetail{
		Category: ir.CategoryEvaluation,
		Kind:     runtimeKind(msg),
		Message:  msg,
		Trace:    traceOf(err),
	}
}

func runtimeKind(msg string) string {
	for _, r := range runtimeRules {
		if strings.Contains(msg, r.fragment) {
			return r.kind
		}
	}
	return ir.KindEvalError
}

func traceOf(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Backtrace()
	}
	return err.Error()
}
