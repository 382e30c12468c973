package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/treeleaves30760/PyMD/internal/config"
	"github.com/treeleaves30760/PyMD/internal/engine"
	"github.com/treeleaves30760/PyMD/internal/ir"
	"github.com/treeleaves30760/PyMD/internal/render"
	"github.com/treeleaves30760/PyMD/internal/store"
)

// EngineFlags are the per-command overrides of pymd.toml.
type EngineFlags struct {
	Database string
	Capacity int
	ShowCode bool
}

func (f *EngineFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.Database, "db", "", "record executions to this SQLite database")
	flags.IntVar(&f.Capacity, "capacity", 0, "result cache capacity (overrides engine.cache_capacity)")
	flags.BoolVar(&f.ShowCode, "show-code", false, "include executable code in the output")
}

// resolveConfig loads the config that applies to docPath and applies flag
// overrides. docPath may be empty for commands without a document.
func resolveConfig(opts *RootOptions, docPath string, flags EngineFlags) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if opts.Config != "" {
		cfg, err = config.Load(opts.Config)
	} else {
		cfg, err = config.Discover(docPath)
	}
	if err != nil {
		return config.Config{}, err
	}

	if flags.Capacity != 0 {
		cfg.Engine.CacheCapacity = flags.Capacity
	}
	if flags.Database != "" {
		cfg.Store.Path = flags.Database
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// session is one engine lifetime with its renderer and optional execution log.
type session struct {
	cfg      config.Config
	engine   *engine.Engine
	renderer *render.Renderer
	store    *store.Store
	logger   *slog.Logger
}

// sessionOptions carries what differs between commands.
type sessionOptions struct {
	document  string
	raw       string
	showCode  bool
	progress  io.Writer
	generator engine.SessionIDGenerator
}

func openSession(ctx context.Context, cfg config.Config, logger *slog.Logger, so sessionOptions) (*session, error) {
	s := &session{cfg: cfg, logger: logger}

	opts := append(cfg.EngineOptions(),
		engine.WithLogger(logger),
		engine.WithHelpers(render.Helpers()),
	)
	if so.progress != nil {
		w := so.progress
		opts = append(opts, engine.WithProgress(func(index int, modules []string) {
			fmt.Fprintf(w, "Loading %s (block %d)...\n", strings.Join(modules, ", "), index)
		}))
	}

	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		s.store = st

		maxSeq, err := st.MaxSeq(ctx)
		if err != nil {
			st.Close()
			return nil, err
		}
		gen := so.generator
		if gen == nil {
			gen = engine.UUIDv7Generator{}
		}
		id := gen.Generate()
		sess := store.Session{
			ID:       id,
			Document: so.document,
			StartSeq: maxSeq + 1,
		}
		if so.raw != "" {
			sess.DocumentHash = ir.DocumentHash(so.raw)
		}
		if err := st.WriteSession(ctx, sess); err != nil {
			st.Close()
			return nil, err
		}
		opts = append(opts,
			engine.WithRecorder(st),
			engine.WithSessionID(id),
			engine.WithSequence(engine.NewClockAt(maxSeq)),
		)
		logger.Debug("recording executions", "db", cfg.Store.Path, "session", id)
	}

	eng, err := engine.New(opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.engine = eng
	s.renderer = render.New(eng,
		render.WithCheckpoints(cfg.Render.Checkpoints),
		render.WithBuilder(render.MarkdownBuilder{ShowCode: so.showCode}),
		render.WithLogger(logger),
	)
	return s, nil
}

// SessionID returns the execution log session, empty when not recording.
func (s *session) SessionID() string {
	if s.store == nil {
		return ""
	}
	return s.engine.SessionID()
}

// Close releases the execution log.
func (s *session) Close() error {
	if s.store == nil {
		return nil
	}
	if s.engine == nil {
		return s.store.Close()
	}
	if err := s.engine.RecordError(); err != nil {
		s.logger.Warn("execution log incomplete", "error", err)
	}
	return s.store.Close()
}
