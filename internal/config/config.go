package config

import (
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CLITUTOR"

// Sandbox kinds.
const (
	SandboxLocal     = "local"
	SandboxContainer = "container"
)

// Container drivers.
const (
	DriverCLI = "cli"
	DriverAPI = "api"
)

// Config is the root configuration.
type Config struct {
	Sandbox  SandboxConfig  `toml:"sandbox" yaml:"sandbox"`
	Executor ExecutorConfig `toml:"executor" yaml:"executor"`
	Shell    ShellConfig    `toml:"shell" yaml:"shell"`
	Terminal TerminalConfig `toml:"terminal" yaml:"terminal"`
	Logging  LogConfig      `toml:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics"`
}

// SandboxConfig selects and configures the sandbox provider.
type SandboxConfig struct {
	// Kind is "local" or "container".
	Kind      string `toml:"kind" yaml:"kind"`
	AssetsDir string `toml:"assets_dir" yaml:"assets_dir" split_words:"true"`

	// Container settings.
	Driver        string `toml:"driver" yaml:"driver"`
	Image         string `toml:"image" yaml:"image"`
	Root          string `toml:"root" yaml:"root"`
	Hostname      string `toml:"hostname" yaml:"hostname"`
	User          string `toml:"user" yaml:"user"`
	DockerfileDir string `toml:"dockerfile_dir" yaml:"dockerfile_dir" split_words:"true"`
	DockerBinary  string `toml:"docker_binary" yaml:"docker_binary" split_words:"true"`
}

// ExecutorConfig configures headless command runs.
type ExecutorConfig struct {
	Timeout  Duration `toml:"timeout" yaml:"timeout"`
	TrackCwd bool     `toml:"track_cwd" yaml:"track_cwd" split_words:"true"`
}

// ShellConfig configures the interactive shell.
type ShellConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// TerminalConfig sets the initial terminal size.
type TerminalConfig struct {
	Rows int `toml:"rows" yaml:"rows"`
	Cols int `toml:"cols" yaml:"cols"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `toml:"level" yaml:"level"`
	Development bool   `toml:"development" yaml:"development"`
	// File, when set, receives log output instead of stderr.
	File string `toml:"file" yaml:"file"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Addr    string `toml:"addr" yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			Kind:         SandboxLocal,
			Driver:       DriverCLI,
			Image:        "clitutor-sandbox",
			Root:         "/home/student/sandbox",
			Hostname:     "clitutor",
			User:         "student",
			DockerBinary: "docker",
		},
		Executor: ExecutorConfig{
			Timeout:  Duration(10 * time.Second),
			TrackCwd: true,
		},
		Shell: ShellConfig{
			Path: "bash",
		},
		Terminal: TerminalConfig{
			Rows: 24,
			Cols: 80,
		},
		Logging: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
	}
}

// Duration is a time.Duration written as a string such as "10s".
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
