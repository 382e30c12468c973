package render

import (
	"fmt"
	"strings"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

// fence delimits the code blocks PyMD writes.
const fence = "```"

// Builder turns block results into the rendered document.
type Builder interface {
	Build(blocks []ir.ScriptBlock, results []ir.ExecutionResult) string
}

// MarkdownBuilder emits Markdown. Display blocks contribute their presented
// text; executable blocks contribute captured output, then an error note when
// they failed.
type MarkdownBuilder struct {
	// ShowCode echoes each executable block's source as a fenced block.
	ShowCode bool
	// Language is the info string used when echoing source.
	Language string
}

// Build implements Builder.
func (b MarkdownBuilder) Build(blocks []ir.ScriptBlock, results []ir.ExecutionResult) string {
	var out strings.Builder
	for i, block := range blocks {
		if i >= len(results) {
			break
		}
		res := results[i]
		if !block.Executable() {
			out.WriteString(res.Stdout)
			continue
		}

		if b.ShowCode {
			lang := b.Language
			if lang == "" {
				lang = "python"
			}
			fmt.Fprintf(&out, "%s%s\n%s\n%s\n", fence, lang, block.Source, fence)
		}
		writeLine(&out, res.Stdout)
		if res.Error != nil {
			fmt.Fprintf(&out, "> **%s**: %s\n", res.Error.Kind, res.Error.Message)
		}
	}
	return out.String()
}

// writeLine writes s and terminates it with a newline when it is non-empty.
func writeLine(out *strings.Builder, s string) {
	if s == "" {
		return
	}
	out.WriteString(s)
	if !strings.HasSuffix(s, "\n") {
		out.WriteByte('\n')
	}
}
