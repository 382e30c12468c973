package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

func TestFencedSegmenter(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []ir.ScriptBlock
	}{
		{
			name: "narrative and code",
			raw:  "# Title\n```\nx = 5\nprint(x)\n```\nDone.\n",
			want: []ir.ScriptBlock{
				{Index: 0, Source: "# Title\n", Kind: ir.BlockDisplay},
				{Index: 1, Source: "x = 5\nprint(x)", Kind: ir.BlockExecute},
				{Index: 2, Source: "Done.\n", Kind: ir.BlockDisplay},
			},
		},
		{
			name: "python info string",
			raw:  "```python\na = 1\n```\n",
			want: []ir.ScriptBlock{
				{Index: 0, Source: "a = 1", Kind: ir.BlockExecute},
			},
		},
		{
			name: "other language is displayed verbatim",
			raw:  "```bash\nls -la\n```\n",
			want: []ir.ScriptBlock{
				{Index: 0, Source: "```bash\nls -la\n```\n", Kind: ir.BlockDisplay},
			},
		},
		{
			name: "whitespace narrative dropped",
			raw:  "```\na = 1\n```\n\n\n```\nb = 2\n```\n",
			want: []ir.ScriptBlock{
				{Index: 0, Source: "a = 1", Kind: ir.BlockExecute},
				{Index: 1, Source: "b = 2", Kind: ir.BlockExecute},
			},
		},
		{
			name: "unterminated fence runs to end",
			raw:  "intro\n```\nz = 3\n",
			want: []ir.ScriptBlock{
				{Index: 0, Source: "intro\n", Kind: ir.BlockDisplay},
				{Index: 1, Source: "z = 3", Kind: ir.BlockExecute},
			},
		},
		{
			name: "empty untagged fence",
			raw:  "a\n```\n```\nb\n",
			want: []ir.ScriptBlock{
				{Index: 0, Source: "a\n", Kind: ir.BlockDisplay},
				{Index: 1, Source: "", Kind: ir.BlockExecute},
				{Index: 2, Source: "b\n", Kind: ir.BlockDisplay},
			},
		},
		{
			name: "tilde fence",
			raw:  "~~~py\nx = 1\n~~~\n",
			want: []ir.ScriptBlock{
				{Index: 0, Source: "x = 1", Kind: ir.BlockExecute},
			},
		},
		{
			name: "closing fence without newline",
			raw:  "```\nx = 1\n```",
			want: []ir.ScriptBlock{
				{Index: 0, Source: "x = 1", Kind: ir.BlockExecute},
			},
		},
		{
			name: "info string attributes",
			raw:  "```Python title=demo\na = 1\n```\n",
			want: []ir.ScriptBlock{
				{Index: 0, Source: "a = 1", Kind: ir.BlockExecute},
			},
		},
		{
			name: "longer fence holds a shorter one",
			raw:  "````md\n```\nx\n```\n````\nafter\n",
			want: []ir.ScriptBlock{
				{Index: 0, Source: "````md\n```\nx\n```\n````\n", Kind: ir.BlockDisplay},
				{Index: 1, Source: "after\n", Kind: ir.BlockDisplay},
			},
		},
		{
			name: "empty document",
			raw:  "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FencedSegmenter{}.Segment(tt.raw))
		})
	}
}

func TestFencedSegmenterCustomLanguages(t *testing.T) {
	s := FencedSegmenter{Languages: []string{"star"}}
	blocks := s.Segment("```\na = 1\n```\n```star\nb = 2\n```\n")

	assert.Len(t, blocks, 2)
	assert.Equal(t, ir.BlockDisplay, blocks[0].Kind)
	assert.Equal(t, ir.BlockExecute, blocks[1].Kind)
}

func TestFencedSegmenterIsDeterministic(t *testing.T) {
	raw := "a\n```\nx = 1\n```\nb\n```py\ny = 2\n```\n"
	assert.Equal(t, FencedSegmenter{}.Segment(raw), FencedSegmenter{}.Segment(raw))
}
