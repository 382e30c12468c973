package engine

import (
	"context"
	"log/slog"
	"time"

	"go.starlark.net/starlark"

	"github.com/treeleaves30760/PyMD/internal/cache"
	"github.com/treeleaves30760/PyMD/internal/checkpoint"
	"github.com/treeleaves30760/PyMD/internal/env"
	"github.com/treeleaves30760/PyMD/internal/evaluator"
	"github.com/treeleaves30760/PyMD/internal/ir"
)

// ProgressFunc is told which watched heavy modules a block loads, before the
// block is evaluated. It is informational only.
type ProgressFunc func(blockIndex int, modules []string)

// Presenter turns display-block text into its presentation. The result is
// memoized under the display key.
type Presenter func(text string) string

// Recorder receives one record per Execute call.
type Recorder interface {
	RecordExecution(ctx context.Context, rec ir.ExecutionRecord) error
}

// Engine composes the environment, result cache, checkpoint store and stats.
// It is the only component a host calls directly.
type Engine struct {
	env         *env.Environment
	cache       *cache.Cache
	checkpoints *checkpoint.Store
	eval        *evaluator.Evaluator

	helpers starlark.StringDict
	modules map[string]starlark.StringDict

	stats   statsCounter
	history []string
	settled map[int]settledRun

	seq       *Clock
	now       NowFunc
	logger    *slog.Logger
	progress  ProgressFunc
	presenter Presenter
	recorder  Recorder
	recordErr error
	sessionID string

	capacity    int
	maxSteps    uint64
	strictInput bool
	heavy       []string
}

// settledRun remembers the last miss at a position: the text that ran, the
// digest of the environment it left behind, and the key it was stored under.
type settledRun struct {
	text       string
	postDigest string
	key        string
}

// Option configures an Engine.
type Option func(*Engine)

// WithCapacity sets the result cache capacity (default cache.DefaultCapacity).
func WithCapacity(n int) Option {
	return func(e *Engine) {
		e.capacity = n
	}
}

// WithHelpers injects host bindings visible during evaluation. Helper names
// are reserved: they never persist into the environment or snapshots, and
// shadow a user binding of the same name for one evaluation only.
func WithHelpers(helpers starlark.StringDict) Option {
	return func(e *Engine) {
		for name, v := range helpers {
			e.helpers[name] = v
		}
	}
}

// WithModule makes members loadable with load(name, ...).
func WithModule(name string, members starlark.StringDict) Option {
	return func(e *Engine) {
		e.modules[name] = members
	}
}

// WithNow sets the wall clock used for elapsed-time reporting.
func WithNow(now NowFunc) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithSequence sets the logical clock that numbers execution records.
func WithSequence(c *Clock) Option {
	return func(e *Engine) {
		e.seq = c
	}
}

// WithLogger sets the structured logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithProgress sets the heavy-import progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// WithPresenter sets how display blocks are presented (default identity).
func WithPresenter(p Presenter) Option {
	return func(e *Engine) {
		e.presenter = p
	}
}

// WithRecorder attaches an execution log.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithSessionID names the session in execution records.
func WithSessionID(id string) Option {
	return func(e *Engine) {
		e.sessionID = id
	}
}

// WithMaxSteps bounds Starlark execution steps per block. Zero is unlimited.
func WithMaxSteps(n uint64) Option {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// WithStrictInput treats an input() call without an annotation as missing.
func WithStrictInput(strict bool) Option {
	return func(e *Engine) {
		e.strictInput = strict
	}
}

// WithHeavyImports replaces the watch-list of heavy modules.
func WithHeavyImports(modules []string) Option {
	return func(e *Engine) {
		e.heavy = append([]string(nil), modules...)
	}
}

// New creates an Engine with an empty environment.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		env:         env.New(),
		checkpoints: checkpoint.New(),
		helpers:     make(starlark.StringDict),
		modules:     make(map[string]starlark.StringDict),
		settled:     make(map[int]settledRun),
		seq:         NewClock(),
		now:         time.Now,
		logger:      slog.Default(),
		presenter:   func(text string) string { return text },
		capacity:    cache.DefaultCapacity,
		heavy:       append([]string(nil), DefaultHeavyImports...),
	}
	for _, opt := range opts {
		opt(e)
	}

	for name := range e.helpers {
		if env.IsReserved(name) {
			return nil, invalidOption("helper name %q is reserved", name)
		}
	}
	c, err := cache.New(e.capacity)
	if err != nil {
		return nil, &Error{Code: ErrCodeInvalidOption, Message: "cache capacity", Err: err}
	}
	e.cache = c

	evalOpts := []evaluator.Option{evaluator.WithMaxSteps(e.maxSteps)}
	for name, members := range e.modules {
		evalOpts = append(evalOpts, evaluator.WithModule(name, members))
	}
	e.eval = evaluator.New(evalOpts...)
	return e, nil
}

// Environment returns the environment owned by the engine. Hosts may set
// bindings between executions; doing so changes every later cache key.
func (e *Engine) Environment() *env.Environment {
	return e.env
}

// SessionID returns the session name used in execution records.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// isHelper reports whether name is a host helper rather than user state.
func (e *Engine) isHelper(name string) bool {
	_, ok := e.helpers[name]
	return ok
}

// SaveCheckpoint clones the environment under index, overwriting any earlier
// checkpoint there.
func (e *Engine) SaveCheckpoint(index int) {
	cp := e.checkpoints.Save(index, e.env)
	if len(cp.State.Aliased) > 0 {
		e.logger.Debug("checkpoint aliased values", "index", index, "names", cp.State.Aliased)
	}
}

// RestoreCheckpoint replaces the environment with the checkpoint at index.
// It returns false, changing nothing, when none exists.
func (e *Engine) RestoreCheckpoint(index int) bool {
	return e.checkpoints.Restore(index, e.env)
}

// HasCheckpoint reports whether a checkpoint exists at index.
func (e *Engine) HasCheckpoint(index int) bool {
	return e.checkpoints.Has(index)
}

// DropCheckpointsFrom removes checkpoints at or after index.
func (e *Engine) DropCheckpointsFrom(index int) {
	e.checkpoints.DropFrom(index)
}

// ClearAll discards the result cache, stats and block history. Bindings in
// the environment and saved checkpoints survive.
func (e *Engine) ClearAll() {
	e.cache.Clear()
	e.stats = statsCounter{}
	e.history = nil
	clear(e.settled)
	e.logger.Debug("cache cleared")
}

// GetStats returns a read-only view of the counters.
func (e *Engine) GetStats() ir.Stats {
	s := e.stats.view()
	s.CacheSize = e.cache.Len()
	s.Checkpoints = e.checkpoints.Len()
	return s
}

// CacheKeys returns cached keys, oldest first.
func (e *Engine) CacheKeys() []string {
	return e.cache.Keys()
}

// RecordError returns the last recorder failure, if any. Recorder failures
// never change execution results.
func (e *Engine) RecordError() error {
	return e.recordErr
}

func (e *Engine) record(ctx context.Context, block ir.ScriptBlock, res ir.ExecutionResult) {
	if e.recorder == nil {
		return
	}
	rec := ir.NewExecutionRecord(e.seq.Next(), e.sessionID, block, res)
	if err := e.recorder.RecordExecution(ctx, rec); err != nil {
		e.recordErr = &Error{Code: ErrCodeRecordFailed, Message: "record execution", Err: err}
		e.logger.Warn("execution record failed",
			"block", block.Index,
			"seq", rec.Seq,
			"error", err,
		)
	}
}
