package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/treeleaves30760/PyMD/internal/ir"
)

const (
	historyFile = ".pymd_history"
	promptMain  = ">>> "
	promptCont  = "... "
)

const replHelp = `Each entry runs as the next block. End a multi-line entry with a blank line.

Commands:
  :stats       Show cache statistics
  :vars        List variables
  :save [N]    Save a checkpoint (default: next block index)
  :restore N   Restore checkpoint N
  :clear       Clear the result cache
  :help        Show this help
  :quit        Exit
`

// ReplOptions holds flags for the repl command.
type ReplOptions struct {
	*RootOptions
	EngineFlags
	History string
}

// NewReplCommand creates the repl command.
func NewReplCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive block-by-block session",
		Long: `Start an interactive session backed by one engine.

Every entry is executed as the next block, so results are cached and
checkpoints can be saved and restored between entries.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runRepl(ctx, opts, cmd)
		},
	}

	home, _ := os.UserHomeDir()
	cmd.Flags().StringVar(&opts.History, "history", filepath.Join(home, historyFile), "history file")
	opts.EngineFlags.register(cmd.Flags())

	return cmd
}

func runRepl(ctx context.Context, opts *ReplOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := resolveConfig(opts.RootOptions, "", opts.EngineFlags)
	if err != nil {
		return commandError(formatter, ErrCodeConfig, "failed to load config", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg, opts.Verbose)

	sess, err := openSession(ctx, cfg, logger, sessionOptions{
		document: "<repl>",
		progress: formatter.GetErrWriter(),
	})
	if err != nil {
		return commandError(formatter, ErrCodeEngine, "failed to start engine", err)
	}
	defer sess.Close()

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(opts.History); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(opts.History); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	repl := &replSession{ctx: ctx, sess: sess, out: cmd.OutOrStdout()}
	fmt.Fprintln(repl.out, "pymd REPL. Type :help for commands, Ctrl+D to exit.")

	for {
		entry, err := readEntry(ln)
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(repl.out)
			return nil
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read input", err)
		}
		if strings.TrimSpace(entry) == "" {
			continue
		}
		ln.AppendHistory(entry)
		if !repl.handle(entry) {
			return nil
		}
	}
}

// readEntry reads one entry. A line ending in ':' opens a multi-line entry
// that runs until a blank line.
func readEntry(ln *liner.State) (string, error) {
	var lines []string
	prompt := promptMain
	for {
		line, err := ln.Prompt(prompt)
		if err != nil {
			return "", err
		}
		if len(lines) == 0 && !opensBlock(line) {
			return line, nil
		}
		if len(lines) > 0 && strings.TrimSpace(line) == "" {
			return strings.Join(lines, "\n"), nil
		}
		lines = append(lines, line)
		prompt = promptCont
	}
}

func opensBlock(line string) bool {
	return strings.HasSuffix(strings.TrimSpace(line), ":")
}

// replSession executes entries as consecutive blocks of one engine.
type replSession struct {
	ctx  context.Context
	sess *session
	out  io.Writer
	next int
}

// handle runs one entry and reports whether the REPL should continue.
func (r *replSession) handle(entry string) bool {
	trimmed := strings.TrimSpace(entry)
	if !strings.HasPrefix(trimmed, ":") {
		r.execute(entry)
		return true
	}

	fields := strings.Fields(trimmed)
	eng := r.sess.engine
	switch fields[0] {
	case ":quit", ":q":
		return false
	case ":help":
		fmt.Fprint(r.out, replHelp)
	case ":stats":
		s := eng.GetStats()
		fmt.Fprintf(r.out, "executions: %d  hits: %d  misses: %d  cache: %d  checkpoints: %d  avg: %.2f ms\n",
			s.TotalExecutions, s.CacheHits, s.CacheMisses, s.CacheSize, s.Checkpoints, s.AverageTimeMs)
	case ":vars":
		snap := eng.Environment().Snapshot()
		if len(snap) == 0 {
			fmt.Fprintln(r.out, "(no variables)")
		}
		for _, b := range snap {
			fmt.Fprintf(r.out, "%s = %s\n", b.Name, b.Repr)
		}
	case ":save":
		index := r.next
		if len(fields) > 1 {
			n, ok := r.index(fields[1])
			if !ok {
				return true
			}
			index = n
		}
		eng.SaveCheckpoint(index)
		fmt.Fprintf(r.out, "checkpoint %d saved\n", index)
	case ":restore":
		if len(fields) < 2 {
			fmt.Fprintln(r.out, "usage: :restore N")
			return true
		}
		n, ok := r.index(fields[1])
		if !ok {
			return true
		}
		if !eng.RestoreCheckpoint(n) {
			fmt.Fprintf(r.out, "no checkpoint %d\n", n)
			return true
		}
		fmt.Fprintf(r.out, "checkpoint %d restored\n", n)
	case ":clear":
		r.sess.renderer.ClearAll()
		fmt.Fprintln(r.out, "cache cleared")
	default:
		fmt.Fprintf(r.out, "unknown command %s (try :help)\n", fields[0])
	}
	return true
}

func (r *replSession) index(arg string) (int, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		fmt.Fprintf(r.out, "invalid block index %q\n", arg)
		return 0, false
	}
	return n, true
}

func (r *replSession) execute(source string) {
	block := ir.ScriptBlock{Index: r.next, Source: source, Kind: ir.BlockExecute}
	r.next++

	res := r.sess.engine.Execute(r.ctx, block)
	if res.Stdout != "" {
		fmt.Fprint(r.out, res.Stdout)
		if !strings.HasSuffix(res.Stdout, "\n") {
			fmt.Fprintln(r.out)
		}
	}
	if res.Error != nil {
		fmt.Fprintf(r.out, "%s: %s\n", res.Error.Kind, res.Error.Message)
	}
	if res.CacheHit {
		fmt.Fprintln(r.out, "(cached)")
	}
}
