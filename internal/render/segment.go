package render

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

// Segmenter splits raw document text into ordered blocks. The same raw text
// must always produce the same blocks.
type Segmenter interface {
	Segment(raw string) []ir.ScriptBlock
}

// DefaultLanguages are the fence languages treated as executable.
var DefaultLanguages = []string{"", "python", "py", "starlark", "star"}

// FencedSegmenter treats CommonMark fenced code blocks in an executable
// language as Execute blocks and everything else as Display blocks.
//
// Narrative between fences becomes one Display block holding the source bytes
// verbatim; whitespace-only narrative is dropped. A fence in another language
// becomes a Display block holding the fence lines verbatim. An unterminated
// fence runs to the end of the document.
type FencedSegmenter struct {
	Languages []string
}

// Segment implements Segmenter.
func (s FencedSegmenter) Segment(raw string) []ir.ScriptBlock {
	langs := s.Languages
	if langs == nil {
		langs = DefaultLanguages
	}

	src := []byte(raw)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var blocks []ir.ScriptBlock
	add := func(source string, kind ir.BlockKind) {
		blocks = append(blocks, ir.ScriptBlock{Index: len(blocks), Source: source, Kind: kind})
	}
	narrative := func(b []byte) {
		if len(bytes.TrimSpace(b)) > 0 {
			add(string(b), ir.BlockDisplay)
		}
	}

	cursor := 0
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		code, ok := n.(*ast.FencedCodeBlock)
		if !ok || code.Pos() < cursor {
			return ast.WalkContinue, nil
		}
		start := lineStart(src, code.Pos())
		end := fenceEnd(src, code)
		narrative(src[cursor:start])
		cursor = end

		lang := strings.ToLower(string(code.Language(src)))
		if isLanguage(lang, langs) {
			add(strings.TrimSuffix(codeText(src, code), "\n"), ir.BlockExecute)
		} else {
			add(string(src[start:end]), ir.BlockDisplay)
		}
		return ast.WalkSkipChildren, nil
	})
	narrative(src[cursor:])
	return blocks
}

func codeText(src []byte, code *ast.FencedCodeBlock) string {
	var b strings.Builder
	lines := code.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return b.String()
}

// fenceEnd returns the offset just past the closing fence line of code, or
// past its last line when the fence is never closed.
func fenceEnd(src []byte, code *ast.FencedCodeBlock) int {
	open := code.Pos()
	pos := lineEnd(src, open)
	if lines := code.Lines(); lines.Len() > 0 {
		pos = max(pos, lines.At(lines.Len()-1).Stop)
	}
	if pos >= len(src) {
		return len(src)
	}

	char := src[open]
	width := 0
	for open+width < len(src) && src[open+width] == char {
		width++
	}
	next := lineEnd(src, pos)
	line := bytes.TrimLeft(src[pos:next], " \t>")
	n := 0
	for n < len(line) && line[n] == char {
		n++
	}
	if n >= width && len(bytes.TrimSpace(line[n:])) == 0 {
		return next
	}
	return pos
}

func lineStart(src []byte, pos int) int {
	return bytes.LastIndexByte(src[:pos], '\n') + 1
}

// lineEnd returns the offset just past the newline ending the line at pos.
func lineEnd(src []byte, pos int) int {
	if i := bytes.IndexByte(src[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(src)
}

func isLanguage(lang string, langs []string) bool {
	for _, l := range langs {
		if lang == l {
			return true
		}
	}
	return false
}
