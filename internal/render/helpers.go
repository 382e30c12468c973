package render

import (
	"fmt"
	"io"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/treeleaves30760/PyMD/internal/evaluator"
)

// DocModuleName is the helper binding that exposes the Markdown writers.
const DocModuleName = "doc"

// Helpers returns the bindings a rendering engine injects into every block.
func Helpers() starlark.StringDict {
	return starlark.StringDict{DocModuleName: DocModule()}
}

// DocModule builds the doc helper module. Each member writes Markdown into
// the block's captured output and returns None.
func DocModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: DocModuleName,
		Members: starlark.StringDict{
			"h1":    heading(1),
			"h2":    heading(2),
			"h3":    heading(3),
			"text":  starlark.NewBuiltin("text", docText),
			"code":  starlark.NewBuiltin("code", docCode),
			"table": starlark.NewBuiltin("table", docTable),
		},
	}
}

func heading(level int) *starlark.Builtin {
	name := fmt.Sprintf("h%d", level)
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var text starlark.Value
		if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &text); err != nil {
			return nil, err
		}
		fmt.Fprintf(evaluator.Output(thread), "%s %s\n\n", strings.Repeat("#", level), plain(text))
		return starlark.None, nil
	})
}

func docText(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var content starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &content); err != nil {
		return nil, err
	}
	fmt.Fprintf(evaluator.Output(thread), "%s\n\n", plain(content))
	return starlark.None, nil
}

func docCode(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		content  string
		language = "python"
	)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "content", &content, "language?", &language); err != nil {
		return nil, err
	}
	fmt.Fprintf(evaluator.Output(thread), "%s%s\n%s\n%s\n\n", fence, language, content, fence)
	return starlark.None, nil
}

// docTable writes rows as a Markdown table whose first row is the header.
// Rows that are not sequences become single-cell rows; data that is not
// iterable is written as a preformatted block.
func docTable(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &data); err != nil {
		return nil, err
	}
	out := evaluator.Output(thread)

	iterable, ok := data.(starlark.Iterable)
	if !ok {
		fmt.Fprintf(out, "%s\n%s\n%s\n\n", fence, plain(data), fence)
		return starlark.None, nil
	}

	var rows [][]string
	iter := iterable.Iterate()
	defer iter.Done()
	var row starlark.Value
	for iter.Next(&row) {
		rows = append(rows, rowCells(row))
	}
	writeTable(out, rows)
	return starlark.None, nil
}

func rowCells(row starlark.Value) []string {
	switch r := row.(type) {
	case *starlark.List, starlark.Tuple:
		seq := r.(starlark.Indexable)
		cells := make([]string, seq.Len())
		for i := range cells {
			cells[i] = cell(seq.Index(i))
		}
		return cells
	default:
		return []string{cell(row)}
	}
}

func writeTable(w io.Writer, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	line := func(cells []string) {
		padded := make([]string, width)
		copy(padded, cells)
		fmt.Fprintf(w, "| %s |\n", strings.Join(padded, " | "))
	}

	line(rows[0])
	sep := make([]string, width)
	for i := range sep {
		sep[i] = "---"
	}
	line(sep)
	for _, r := range rows[1:] {
		line(r)
	}
	fmt.Fprintln(w)
}

// plain renders strings without quotes and everything else by its Starlark
// string form.
func plain(v starlark.Value) string {
	if s, ok := starlark.AsString(v); ok {
		return s
	}
	return v.String()
}

// cell is plain with pipes escaped so table cells stay in their column.
func cell(v starlark.Value) string {
	return strings.ReplaceAll(plain(v), "|", `\|`)
}
