package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/treeleaves30760/PyMD/internal/ir"
	"github.com/treeleaves30760/PyMD/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // latest session when empty
	Block    int    // all blocks when negative
}

// TraceEvent represents a single execution in the trace timeline.
type TraceEvent struct {
	Seq          int64    `json:"seq"`
	Block        int      `json:"block"`
	Kind         string   `json:"kind"`
	CacheHit     bool     `json:"cache_hit"`
	Success      bool     `json:"success"`
	ElapsedMs    float64  `json:"elapsed_ms"`
	ErrorKind    string   `json:"error_kind,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Stdout       string   `json:"stdout,omitempty"`
	Vars         []string `json:"vars"`
	HeavyImports []string `json:"heavy_imports,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  store.Session `json:"session"`
	Timeline []TraceEvent  `json:"timeline"`
	Stats    TraceStats    `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Executions  int     `json:"executions"`
	Hits        int     `json:"hits"`
	Misses      int     `json:"misses"`
	Failures    int     `json:"failures"`
	TotalTimeMs float64 `json:"total_time_ms"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the execution log of a session",
		Long: `Show the recorded executions of one session, in sequence order.

Sessions are recorded by render, watch and repl when --db (or store.path)
is set. Each entry shows the block, whether it was served from the cache,
and the variables it left behind.

Examples:
  pymd trace --db ./pymd.db
  pymd trace --db ./pymd.db --session 0190a5c4-... --block 2
  pymd trace --db ./pymd.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runTrace(ctx, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to trace (default: latest)")
	cmd.Flags().IntVar(&opts.Block, "block", -1, "only show executions of this block index")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return commandError(formatter, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	sess, found, err := findSession(ctx, st, opts.Session)
	if err != nil {
		return commandError(formatter, ErrCodeStore, "failed to read sessions", err)
	}
	if !found {
		if opts.Format == "json" {
			return outputTraceJSON(cmd, TraceResult{
				Session:  sess,
				Timeline: []TraceEvent{},
			})
		}
		if opts.Session == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded.")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "No executions found for session: %s\n", opts.Session)
		}
		return nil
	}

	var records []ir.ExecutionRecord
	if opts.Block >= 0 {
		records, err = st.ReadBlockExecutions(ctx, sess.ID, opts.Block)
	} else {
		records, err = st.ReadExecutions(ctx, sess.ID)
	}
	if err != nil {
		return commandError(formatter, ErrCodeStore, "failed to read executions", err)
	}

	result := TraceResult{
		Session:  sess,
		Timeline: buildTimeline(records),
		Stats:    traceStats(records),
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

// findSession resolves the session to trace. An empty id selects the latest.
func findSession(ctx context.Context, st *store.Store, id string) (store.Session, bool, error) {
	if id == "" {
		sess, err := st.LatestSession(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return store.Session{}, false, nil
		}
		return sess, err == nil, err
	}

	sessions, err := st.ReadSessions(ctx)
	if err != nil {
		return store.Session{}, false, err
	}
	for _, sess := range sessions {
		if sess.ID == id {
			return sess, true, nil
		}
	}
	return store.Session{ID: id}, false, nil
}

// buildTimeline converts execution records to trace events.
func buildTimeline(records []ir.ExecutionRecord) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(records))
	for _, rec := range records {
		vars := make([]string, len(rec.PostState))
		for i, b := range rec.PostState {
			vars[i] = b.Name + "=" + b.Repr
		}
		timeline = append(timeline, TraceEvent{
			Seq:          rec.Seq,
			Block:        rec.BlockIndex,
			Kind:         rec.Kind.String(),
			CacheHit:     rec.CacheHit,
			Success:      rec.Success,
			ElapsedMs:    rec.ElapsedMs,
			ErrorKind:    rec.ErrorKind,
			ErrorMessage: rec.ErrorMessage,
			Stdout:       rec.Stdout,
			Vars:         vars,
			HeavyImports: rec.HeavyImports,
		})
	}
	return timeline
}

func traceStats(records []ir.ExecutionRecord) TraceStats {
	var s TraceStats
	for _, rec := range records {
		s.Executions++
		if rec.CacheHit {
			s.Hits++
		} else {
			s.Misses++
			s.TotalTimeMs += rec.ElapsedMs
		}
		if !rec.Success {
			s.Failures++
		}
	}
	return s
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status:  "ok",
		Data:    result,
		Session: result.Session.ID,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace for Session: %s\n", result.Session.ID)
	if result.Session.Document != "" {
		fmt.Fprintf(w, "Document: %s\n", result.Session.Document)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no executions)")
	} else {
		for _, event := range result.Timeline {
			formatTimelineEvent(w, event, verbose)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Executions: %d\n", result.Stats.Executions)
	fmt.Fprintf(w, "  Hits:       %d\n", result.Stats.Hits)
	fmt.Fprintf(w, "  Misses:     %d\n", result.Stats.Misses)
	fmt.Fprintf(w, "  Failures:   %d\n", result.Stats.Failures)
	fmt.Fprintf(w, "  Miss Time:  %.1f ms\n", result.Stats.TotalTimeMs)

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	fmt.Fprintf(w, "  [%d] block %d %s %s %s\n",
		event.Seq, event.Block, event.Kind, hitStatus(event.CacheHit), successStatus(event))

	if !verbose {
		return
	}
	if event.ErrorMessage != "" {
		fmt.Fprintf(w, "       Error: %s\n", event.ErrorMessage)
	}
	if event.Stdout != "" {
		fmt.Fprintf(w, "       Stdout: %q\n", event.Stdout)
	}
	if len(event.HeavyImports) > 0 {
		fmt.Fprintf(w, "       Heavy: %s\n", strings.Join(event.HeavyImports, ", "))
	}
	fmt.Fprintf(w, "       Vars: {%s}\n", strings.Join(event.Vars, ", "))
}

func hitStatus(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

func successStatus(event TraceEvent) string {
	if event.Success {
		return "ok"
	}
	return "FAILED " + event.ErrorKind
}
