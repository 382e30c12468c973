// Package render is the document host around the execution engine.
//
// A Renderer keeps the hash of the last rendered document and returns the
// previous output unchanged when the raw text is identical. Otherwise it
// segments the document and walks the blocks in order. With checkpoints
// enabled the walk resumes at the first changed block: the environment is
// restored from the checkpoint saved before it in the previous render, and
// earlier results are reused without calling the engine. Without a usable
// checkpoint the walk starts over from an empty environment and relies on
// the engine's result cache.
package render

import (
	"context"
	"log/slog"

	"github.com/treeleaves30760/PyMD/internal/engine"
	"github.com/treeleaves30760/PyMD/internal/env"
	"github.com/treeleaves30760/PyMD/internal/ir"
)

// Executor is the part of the engine a renderer drives.
type Executor interface {
	Execute(ctx context.Context, block ir.ScriptBlock) ir.ExecutionResult
	Environment() *env.Environment
	SaveCheckpoint(index int)
	RestoreCheckpoint(index int) bool
	DropCheckpointsFrom(index int)
	FindFirstChangedBlock(blocks []ir.ScriptBlock) int
	RecordBlocks(blocks []ir.ScriptBlock)
	ClearAll()
}

// Report describes what one Render call did.
type Report struct {
	Shortcut    bool `json:"shortcut"`
	Blocks      int  `json:"blocks"`
	ResumedFrom int  `json:"resumed_from"`
	Reused      int  `json:"reused"`
	Executed    int  `json:"executed"`
	Hits        int  `json:"hits"`
	Misses      int  `json:"misses"`
	Failures    int  `json:"failures"`
}

// Renderer owns one engine and the state of the last render.
// It is not safe for concurrent use.
type Renderer struct {
	eng         Executor
	segmenter   Segmenter
	builder     Builder
	checkpoints bool
	logger      *slog.Logger

	lastHash   string
	lastOutput string
	blocks     []ir.ScriptBlock
	results    []ir.ExecutionResult
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithSegmenter replaces the fenced-code segmenter.
func WithSegmenter(s Segmenter) Option {
	return func(r *Renderer) {
		r.segmenter = s
	}
}

// WithBuilder replaces the Markdown builder.
func WithBuilder(b Builder) Option {
	return func(r *Renderer) {
		r.builder = b
	}
}

// WithCheckpoints enables resuming from the first changed block (default true).
func WithCheckpoints(enabled bool) Option {
	return func(r *Renderer) {
		r.checkpoints = enabled
	}
}

// WithLogger sets the structured logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = l
	}
}

// New creates a Renderer driving eng.
func New(eng Executor, opts ...Option) *Renderer {
	r := &Renderer{
		eng:         eng,
		segmenter:   FencedSegmenter{},
		builder:     MarkdownBuilder{},
		checkpoints: true,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render returns the rendered document for raw. It fails only when ctx is
// done; block failures are part of the output.
func (r *Renderer) Render(ctx context.Context, raw string) (string, Report, error) {
	hash := ir.DocumentHash(raw)
	if r.lastHash != "" && hash == r.lastHash {
		r.logger.Debug("document unchanged", "hash", hash[:12])
		return r.lastOutput, Report{Shortcut: true, Blocks: len(r.blocks), Reused: len(r.blocks)}, nil
	}

	blocks := r.segmenter.Segment(raw)
	start := r.resumePoint(blocks)
	report := Report{Blocks: len(blocks), ResumedFrom: start, Reused: start}

	results := make([]ir.ExecutionResult, len(blocks))
	copy(results, r.results[:start])

	for i := start; i < len(blocks); i++ {
		if err := ctx.Err(); err != nil {
			r.invalidate()
			return "", report, err
		}
		block := blocks[i]
		if block.Executable() {
			r.eng.SaveCheckpoint(block.Index)
		}
		res := r.eng.Execute(ctx, block)
		if res.Error != nil && res.Error.Kind == ir.KindCancelled {
			r.invalidate()
			return "", report, ctx.Err()
		}
		results[i] = res

		report.Executed++
		if res.CacheHit {
			report.Hits++
		} else {
			report.Misses++
		}
		if !res.Success {
			report.Failures++
		}
	}

	r.eng.RecordBlocks(blocks)
	r.blocks = blocks
	r.results = results
	r.lastHash = hash
	r.lastOutput = r.builder.Build(blocks, results)

	r.logger.Debug("document rendered",
		"blocks", report.Blocks,
		"resumed_from", report.ResumedFrom,
		"hits", report.Hits,
		"misses", report.Misses,
	)
	return r.lastOutput, report, nil
}

// resumePoint prepares the environment and returns the first block to walk.
func (r *Renderer) resumePoint(blocks []ir.ScriptBlock) int {
	if !r.checkpoints {
		r.reset()
		return 0
	}

	first := r.eng.FindFirstChangedBlock(blocks)
	if first == engine.Unchanged {
		first = len(blocks)
	}
	first = min(first, len(r.results))
	if first == 0 {
		r.reset()
		return 0
	}

	// Old blocks between first and the next old executable block are display
	// blocks, so the checkpoint saved before that block holds the effects of
	// exactly the unchanged prefix.
	if next := firstExecutable(r.blocks, first); next >= 0 {
		if !r.eng.RestoreCheckpoint(next) {
			r.logger.Debug("no checkpoint, full walk", "block", next)
			r.reset()
			return 0
		}
	}
	r.eng.DropCheckpointsFrom(first)
	r.logger.Debug("resuming", "from", first)
	return first
}

// reset starts a full walk from an empty environment.
func (r *Renderer) reset() {
	r.eng.Environment().Clear()
	r.eng.DropCheckpointsFrom(0)
}

// invalidate forgets the last render so the next one walks every block.
func (r *Renderer) invalidate() {
	r.lastHash = ""
	r.lastOutput = ""
	r.blocks = nil
	r.results = nil
	r.eng.RecordBlocks(nil)
}

// ClearAll clears the engine's cache, stats and history, and forgets the last
// document so the next Render walks every block.
func (r *Renderer) ClearAll() {
	r.eng.ClearAll()
	r.lastHash = ""
	r.lastOutput = ""
	r.blocks = nil
	r.results = nil
}

// LastHash returns the hash of the last rendered document, empty after ClearAll.
func (r *Renderer) LastHash() string {
	return r.lastHash
}

func firstExecutable(blocks []ir.ScriptBlock, from int) int {
	for i := from; i < len(blocks); i++ {
		if blocks[i].Executable() {
			return blocks[i].Index
		}
	}
	return -1
}
