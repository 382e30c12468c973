// Package config handles pymd.toml configuration.
//
// A file is decoded over Default() with BurntSushi/toml, so every key is
// optional. The result is then checked against an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/BurntSushi/toml"

	"github.com/treeleaves30760/PyMD/internal/engine"
)

// FileName is the configuration file looked up next to a document.
const FileName = "pymd.toml"

//go:embed schema.cue
var schemaCUE string

// Config is the decoded pymd.toml.
type Config struct {
	Engine EngineConfig `toml:"engine" json:"engine"`
	Render RenderConfig `toml:"render" json:"render"`
	Log    LogConfig    `toml:"log" json:"log"`
	Store  StoreConfig  `toml:"store" json:"store"`

	// Path is the file the config was loaded from, empty for defaults.
	Path string `toml:"-" json:"-"`
}

// EngineConfig tunes the execution engine.
type EngineConfig struct {
	CacheCapacity int      `toml:"cache_capacity" json:"cache_capacity"`
	MaxSteps      int64    `toml:"max_steps" json:"max_steps"`
	StrictInput   bool     `toml:"strict_input" json:"strict_input"`
	HeavyImports  []string `toml:"heavy_imports" json:"heavy_imports"`
}

// RenderConfig tunes the document renderer.
type RenderConfig struct {
	Checkpoints bool `toml:"checkpoints" json:"checkpoints"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// StoreConfig points at the optional execution log.
type StoreConfig struct {
	Path string `toml:"path" json:"path"`
}

// Error is a configuration problem. Path is the dotted key that failed,
// empty when the problem is not tied to one key.
type Error struct {
	File    string
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("config")
	if e.File != "" {
		b.WriteString(" ")
		b.WriteString(e.File)
	}
	if e.Path != "" {
		b.WriteString(": ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			CacheCapacity: 100,
			HeavyImports:  append([]string(nil), engine.DefaultHeavyImports...),
		},
		Render: RenderConfig{Checkpoints: true},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load decodes the file at path over the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &Error{File: path, Message: "cannot read file", Err: err}
	}
	return Parse(path, data)
}

// Parse decodes TOML data over the defaults and validates the result.
// name is only used in error messages.
func Parse(name string, data []byte) (Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, &Error{File: name, Message: "parse error", Err: err}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, &Error{
			File:    name,
			Path:    undecoded[0].String(),
			Message: "unknown key",
		}
	}
	cfg.Path = name

	if err := Validate(cfg); err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			cerr.File = name
		}
		return Config{}, err
	}
	return cfg, nil
}

// Discover returns the config that applies to a document: the pymd.toml in
// the document's directory when present, the defaults otherwise.
func Discover(docPath string) (Config, error) {
	path := filepath.Join(filepath.Dir(docPath), FileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, &Error{File: path, Message: "cannot stat file", Err: err}
	}
	return Load(path)
}

// Validate unifies cfg with the embedded schema and reports the first
// violation as an *Error carrying the dotted key path.
func Validate(cfg Config) error {
	if cfg.Engine.HeavyImports == nil {
		cfg.Engine.HeavyImports = []string{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return &Error{Message: "invalid embedded schema", Err: err}
	}

	value := ctx.Encode(cfg)
	if err := value.Err(); err != nil {
		return &Error{Message: "cannot encode config", Err: err}
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// formatCUEError extracts the key path from the first CUE error.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error(), Err: err}
	}
	first := errs[0]
	path := first.Path()
	if len(path) > 0 && strings.HasPrefix(path[0], "#") {
		path = path[1:]
	}
	format, args := first.Msg()
	return &Error{
		Path:    strings.Join(path, "."),
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// SlogLevel maps log.level onto a slog level.
func (c Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EngineOptions translates the engine section into engine options.
func (c Config) EngineOptions() []engine.Option {
	opts := []engine.Option{
		engine.WithCapacity(c.Engine.CacheCapacity),
		engine.WithMaxSteps(uint64(c.Engine.MaxSteps)),
		engine.WithStrictInput(c.Engine.StrictInput),
	}
	if c.Engine.HeavyImports != nil {
		opts = append(opts, engine.WithHeavyImports(c.Engine.HeavyImports))
	}
	return opts
}
