// Package main is the entry point for clitutor, a sandboxed shell for
// learning the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spencer-dollahite/clitutor/internal/app"
	"github.com/spencer-dollahite/clitutor/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	envFile    string
	logLevel   string
	sandbox    string
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "clitutor",
		Short: "A sandboxed shell for learning the command line",
		Long: `clitutor runs learner commands in a disposable sandbox, either a
temporary directory or a locked-down container, through an interactive
terminal or one command at a time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", "", "path to a .toml or .yaml config file")
	flags.StringVar(&g.envFile, "env-file", ".env", "dotenv file read before the environment")
	flags.StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&g.sandbox, "sandbox", "", "sandbox kind (local or container)")

	root.AddCommand(
		newShellCmd(g),
		newExecCmd(g),
		newCheckCmd(g),
		newCompleteCmd(g),
		newVersionCmd(),
	)
	return root
}

// loadOptions returns the config sources named by the flags.
func (g *globalOptions) loadOptions() config.LoadOptions {
	return config.LoadOptions{Path: g.configPath, EnvFile: g.envFile}
}

// loadConfig reads the configuration and applies flag overrides.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.loadOptions())
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.sandbox != "" {
		cfg.Sandbox.Kind = g.sandbox
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp builds an application. quiet replaces the logger with a no-op
// when logs would otherwise land on a terminal the command draws on.
func (g *globalOptions) newApp(quiet bool) (*app.Application, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	opts := app.Options{Config: cfg}
	if quiet && cfg.Logging.File == "" {
		opts.Logger = zap.NewNop()
	}
	return app.New(opts)
}
