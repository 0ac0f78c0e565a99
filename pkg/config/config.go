// Package config handles runevm.toml runner configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/daimatz/runevm/pkg/errors"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "runevm.toml"

// Config represents a runevm.toml configuration.
type Config struct {
	VM        VM        `toml:"vm"`
	ClassPath ClassPath `toml:"classpath"`
	Log       Log       `toml:"log"`

	// Dir is the directory containing the configuration file (set at load time).
	Dir string `toml:"-"`
}

// VM configures the interpreter.
type VM struct {
	EntryMethod     string `toml:"entry_method"`
	EntryDescriptor string `toml:"entry_descriptor"`
	MaxFrameDepth   int    `toml:"max_frame_depth"`
	// MaxSteps caps executed instructions; 0 means no limit.
	MaxSteps int `toml:"max_steps"`
}

// ClassPath lists class directories and archives, searched in order.
// Relative entries are resolved against the configuration directory.
type ClassPath struct {
	Entries []string `toml:"entries"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
	Trace  bool   `toml:"trace"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		VM: VM{
			EntryMethod:     "main",
			EntryDescriptor: "([Ljava/lang/String;)V",
			MaxFrameDepth:   1024,
		},
		Log: Log{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Load parses the configuration file at path over the defaults and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse error in "+path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Detail("unknown keys in %s: %s", path, strings.Join(keys, ", ")).
			Build()
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a runevm.toml file, then
// loads it. It returns Default() if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

func invalid(format string, args ...any) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidData).
		Detail(format, args...).
		Build()
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var err error
	if c.VM.EntryMethod == "" {
		err = multierr.Append(err, invalid("vm.entry_method is empty"))
	}
	if !strings.HasPrefix(c.VM.EntryDescriptor, "(") || !strings.Contains(c.VM.EntryDescriptor, ")") {
		err = multierr.Append(err, invalid("vm.entry_descriptor %q is not a method descriptor", c.VM.EntryDescriptor))
	}
	if c.VM.MaxFrameDepth < 0 {
		err = multierr.Append(err, invalid("vm.max_frame_depth must not be negative, got %d", c.VM.MaxFrameDepth))
	}
	if c.VM.MaxSteps < 0 {
		err = multierr.Append(err, invalid("vm.max_steps must not be negative, got %d", c.VM.MaxSteps))
	}
	for i, e := range c.ClassPath.Entries {
		if e == "" {
			err = multierr.Append(err, invalid("classpath.entries[%d] is empty", i))
		}
	}
	if _, lerr := zapcore.ParseLevel(c.Log.Level); lerr != nil {
		err = multierr.Append(err, invalid("log.level: %v", lerr))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		err = multierr.Append(err, invalid("log.format must be console or json, got %q", c.Log.Format))
	}
	return err
}

// ClassPathList returns the class path entries joined with
// os.PathListSeparator, relative entries resolved against Dir.
func (c *Config) ClassPathList() string {
	paths := make([]string, 0, len(c.ClassPath.Entries))
	for _, e := range c.ClassPath.Entries {
		if !filepath.IsAbs(e) && c.Dir != "" {
			e = filepath.Join(c.Dir, e)
		}
		paths = append(paths, e)
	}
	return strings.Join(paths, string(os.PathListSeparator))
}

// Build creates a logger writing to stderr. Trace forces debug level.
func (l Log) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, invalid("log.level: %v", err)
	}
	if l.Trace {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	if l.Format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	return cfg.Build()
}
