package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/treeleaves30760/PyMD/internal/render"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	EngineFlags
	Output     string // output file; stdout when empty
	ClearCache bool
}

// RenderSummary is the result of one render.
type RenderSummary struct {
	Document  string  `json:"document"`
	Output    string  `json:"output,omitempty"`
	Rendered  string  `json:"rendered,omitempty"`
	Blocks    int     `json:"blocks"`
	Hits      int     `json:"hits"`
	Misses    int     `json:"misses"`
	Failures  int     `json:"failures"`
	CacheSize int     `json:"cache_size"`
	ElapsedMs float64 `json:"elapsed_ms"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render <document>",
		Short: "Render a document",
		Long: `Execute the fenced code blocks of a Markdown document and print the
rendered document.

Fences tagged python, py, starlark or star (or untagged) are executed as
Starlark. Their printed output replaces the fence; all other text is kept.

Exit codes:
  0 - Document rendered (block failures are part of the output)
  2 - Command error (unreadable document, bad config, etc.)

Examples:
  pymd render notes.md
  pymd render notes.md -o notes.out.md --show-code
  pymd render notes.md --db pymd.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the rendered document to this file")
	cmd.Flags().BoolVar(&opts.ClearCache, "clear-cache", false, "clear the result cache before rendering")
	opts.EngineFlags.register(cmd.Flags())

	return cmd
}

func runRender(ctx context.Context, opts *RenderOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return commandError(formatter, ErrCodeDocument, "failed to read document", err)
	}

	cfg, err := resolveConfig(opts.RootOptions, path, opts.EngineFlags)
	if err != nil {
		return commandError(formatter, ErrCodeConfig, "failed to load config", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg, opts.Verbose)

	sess, err := openSession(ctx, cfg, logger, sessionOptions{
		document: path,
		raw:      string(data),
		showCode: opts.ShowCode,
		progress: formatter.GetErrWriter(),
	})
	if err != nil {
		return commandError(formatter, ErrCodeEngine, "failed to start engine", err)
	}
	defer sess.Close()

	if opts.ClearCache {
		sess.renderer.ClearAll()
	}

	summary, err := renderOnce(ctx, sess, path, string(data), opts.Output)
	if err != nil {
		return commandError(formatter, ErrCodeDocument, "render failed", err)
	}

	if opts.Format == "json" {
		return formatter.SuccessInSession(sess.SessionID(), summary)
	}

	if opts.Output == "" {
		fmt.Fprint(cmd.OutOrStdout(), summary.Rendered)
	}
	printSummary(formatter, summary)
	return nil
}

// renderOnce renders raw and writes the result to output when set.
// The rendered text is kept in the summary only when output is empty.
func renderOnce(ctx context.Context, sess *session, path, raw, output string) (RenderSummary, error) {
	start := time.Now()
	rendered, report, err := sess.renderer.Render(ctx, raw)
	if err != nil {
		return RenderSummary{}, err
	}
	summary := summarize(path, report, sess.engine.GetStats().CacheSize, time.Since(start))

	if output == "" {
		summary.Rendered = rendered
		return summary, nil
	}
	if err := os.WriteFile(output, []byte(rendered), 0644); err != nil {
		return RenderSummary{}, fmt.Errorf("write %s: %w", output, err)
	}
	summary.Output = output
	return summary, nil
}

func summarize(path string, report render.Report, cacheSize int, elapsed time.Duration) RenderSummary {
	return RenderSummary{
		Document:  path,
		Blocks:    report.Blocks,
		Hits:      report.Hits,
		Misses:    report.Misses,
		Failures:  report.Failures,
		CacheSize: cacheSize,
		ElapsedMs: float64(elapsed.Microseconds()) / 1000,
	}
}

// printSummary writes the one-line render report to the diagnostic stream.
func printSummary(f *OutputFormatter, s RenderSummary) {
	w := f.GetErrWriter()
	fmt.Fprintf(w, "Rendered %s: %d blocks, %d hits, %d misses", s.Document, s.Blocks, s.Hits, s.Misses)
	if s.Failures > 0 {
		fmt.Fprintf(w, ", %d failed", s.Failures)
	}
	fmt.Fprintf(w, " (%.1f ms)\n", s.ElapsedMs)
	if s.Output != "" {
		fmt.Fprintf(w, "Wrote %s\n", s.Output)
	}
}
