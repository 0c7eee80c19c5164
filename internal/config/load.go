package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// Path is the config file. Empty means defaults plus environment only.
	Path string
	// EnvFile is a dotenv file loaded before the environment is read. A
	// missing file is ignored.
	EnvFile string
	// SkipEnv disables environment overrides.
	SkipEnv bool
}

// Load builds a Config from defaults, the file, the dotenv file and the
// environment, then validates it.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	if opts.Path != "" {
		if err := loadFile(opts.Path, cfg); err != nil {
			return nil, err
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", opts.EnvFile, err)
		}
	}

	if !opts.SkipEnv {
		if err := envconfig.Process(EnvPrefix, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return &ParseError{Path: path, Format: "toml", Err: err}
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty document decodes to io.EOF.
		if err := dec.Decode(cfg); err != nil && len(bytes.TrimSpace(data)) > 0 {
			return &ParseError{Path: path, Format: "yaml", Err: err}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var problems []string

	switch c.Sandbox.Kind {
	case SandboxLocal, SandboxContainer:
	default:
		problems = append(problems, fmt.Sprintf("sandbox.kind must be %q or %q, got %q",
			SandboxLocal, SandboxContainer, c.Sandbox.Kind))
	}
	if c.Sandbox.Kind == SandboxContainer {
		switch c.Sandbox.Driver {
		case DriverCLI, DriverAPI:
		default:
			problems = append(problems, fmt.Sprintf("sandbox.driver must be %q or %q, got %q",
				DriverCLI, DriverAPI, c.Sandbox.Driver))
		}
		if !strings.HasPrefix(c.Sandbox.Root, "/") {
			problems = append(problems, "sandbox.root must be an absolute path")
		}
	}

	if c.Executor.Timeout <= 0 {
		problems = append(problems, "executor.timeout must be positive")
	}
	if c.Terminal.Rows <= 0 || c.Terminal.Cols <= 0 {
		problems = append(problems, "terminal.rows and terminal.cols must be positive")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, fmt.Sprintf("logging.level: %v", err))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		problems = append(problems, "metrics.addr is required when metrics are enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// ZapLevel returns the parsed log level, defaulting to info.
func (l LogConfig) ZapLevel() zapcore.Level {
	lvl, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
