package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spencer-dollahite/clitutor/internal/app"
	"github.com/spencer-dollahite/clitutor/internal/executor"
	"github.com/spencer-dollahite/clitutor/internal/sandbox"
)

// runFlags are shared by the commands that run one command headlessly.
type runFlags struct {
	seeds   []string
	timeout time.Duration
	json    bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.seeds, "seed", nil, `seed a file before running, as "name:content"`)
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "run timeout (defaults to executor.timeout)")
	cmd.Flags().BoolVar(&f.json, "json", false, "print the result as JSON")
}

// session is a started application with a seeded sandbox.
type session struct {
	app  *app.Application
	opts executor.RunOptions
}

func startSession(ctx context.Context, g *globalOptions, f *runFlags) (*session, error) {
	a, err := g.newApp(g.logLevel == "")
	if err != nil {
		return nil, err
	}
	if _, err := a.Start(ctx); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	if err := sandbox.SeedFiles(ctx, a.Provider(), f.seeds); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	opts := a.RunOptions()
	if f.timeout > 0 {
		opts.Timeout = f.timeout
	}
	return &session{app: a, opts: opts}, nil
}

func (s *session) run(ctx context.Context, command string) executor.CommandResult {
	return s.app.Executor().Run(ctx, command, s.opts)
}

func (s *session) close() {
	_ = s.app.Close(context.Background())
}

// prompt returns the plain prompt for the executor's directory.
func (s *session) prompt() string {
	ex := s.app.Executor()
	return executor.PlainPrompt(ex.Cwd(), ex.Root())
}

func newExecCmd(g *globalOptions) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "exec [flags] -- command...",
		Short: "Run one command in a fresh sandbox",
		Long: `Run one command in a fresh sandbox and print its output. The sandbox is
destroyed afterwards. The process exits with the command's exit status.`,
		Example: `  clitutor exec -- ls -la
  clitutor exec --seed data.txt:b\na\n --json -- sort data.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := startSession(ctx, g, f)
			if err != nil {
				return err
			}
			defer s.close()

			res := s.run(ctx, strings.Join(args, " "))
			if err := printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), s, res, f.json); err != nil {
				return err
			}
			return exitStatus(res)
		},
	}
	f.register(cmd)
	return cmd
}

func printResult(stdout, stderr io.Writer, s *session, res executor.CommandResult, asJSON bool) error {
	if asJSON {
		doc, err := resultJSON(res, s.app.Executor().Cwd())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, doc)
		return err
	}

	io.WriteString(stdout, res.Stdout)
	io.WriteString(stderr, res.Stderr)
	if (res.Blocked || res.TimedOut) && !strings.HasSuffix(res.Stderr, "\n") {
		io.WriteString(stderr, "\n")
	}
	if isTerminal(stderr) {
		fmt.Fprintln(stderr, statusLine(res, s.prompt()))
	}
	return nil
}

// exitStatus turns a failed result into the process exit status.
func exitStatus(res executor.CommandResult) error {
	switch {
	case res.ExitCode > 0 && res.ExitCode < 256:
		return &exitError{code: res.ExitCode}
	case res.ExitCode != 0 || res.Blocked || res.TimedOut:
		return &exitError{code: 1}
	}
	return nil
}
