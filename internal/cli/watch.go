package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	EngineFlags
	Output   string
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <document>",
		Short: "Re-render a document whenever it changes",
		Long: `Render a document, then keep rendering it each time the file changes.

One engine serves the whole session, so unchanged blocks are restored
from checkpoints or served from the cache. Stop with Ctrl+C.

Examples:
  pymd watch notes.md -o notes.out.md
  pymd watch notes.md --debounce 250ms --db pymd.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the rendered document to this file")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 100*time.Millisecond, "quiet period after a change before re-rendering")
	opts.EngineFlags.register(cmd.Flags())

	return cmd
}

func runWatch(ctx context.Context, opts *WatchOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if opts.Debounce < 0 {
		return NewExitError(ExitCommandError, "debounce must not be negative")
	}

	cfg, err := resolveConfig(opts.RootOptions, path, opts.EngineFlags)
	if err != nil {
		return commandError(formatter, ErrCodeConfig, "failed to load config", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg, opts.Verbose)

	sess, err := openSession(ctx, cfg, logger, sessionOptions{
		document: path,
		showCode: opts.ShowCode,
		progress: formatter.GetErrWriter(),
	})
	if err != nil {
		return commandError(formatter, ErrCodeEngine, "failed to start engine", err)
	}
	defer sess.Close()

	formatter.VerboseLog("watching %s (debounce %s)", path, opts.Debounce)
	err = watchFile(ctx, path, opts.Debounce, func(raw string) error {
		summary, err := renderOnce(ctx, sess, path, raw, opts.Output)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}
		if opts.Format == "json" {
			return formatter.SuccessInSession(sess.SessionID(), summary)
		}
		if opts.Output == "" {
			fmt.Fprint(cmd.OutOrStdout(), summary.Rendered)
		}
		printSummary(formatter, summary)
		return nil
	})
	if err != nil {
		return commandError(formatter, ErrCodeDocument, "watch failed", err)
	}
	return nil
}

// watchFile calls onChange with the file contents once at start and again
// whenever the contents change. Events are coalesced until the file has been
// quiet for debounce. It returns nil when ctx is done.
//
// The parent directory is watched rather than the file, so editors that save
// by writing a new file and renaming it over the old one are still seen. A
// file that disappears is reported once it comes back.
func watchFile(ctx context.Context, path string, debounce time.Duration, onChange func(raw string) error) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return err
	}

	last, present := string(data), true
	if err := onChange(last); err != nil {
		return err
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op == fsnotify.Chmod {
				continue
			}
			pending = time.After(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", path, err)
		case <-pending:
			pending = nil
			data, err := os.ReadFile(abs)
			if errors.Is(err, os.ErrNotExist) {
				present = false
				continue
			}
			if err != nil {
				return err
			}
			if present && string(data) == last {
				continue
			}
			last, present = string(data), true
			if err := onChange(last); err != nil {
				return err
			}
		}
	}
}
