package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spencer-dollahite/clitutor/internal/validator"
)

// logRecorder records passes in the log.
type logRecorder struct {
	log *zap.Logger
}

func (r logRecorder) RecordPass(_ context.Context, exerciseID string) error {
	r.log.Info("exercise passed", zap.String("exercise", exerciseID))
	return nil
}

func newCheckCmd(g *globalOptions) *cobra.Command {
	f := &runFlags{}
	var (
		kind       string
		expected   string
		exerciseID string
	)
	cmd := &cobra.Command{
		Use:   "check --kind KIND --expect TEXT [flags] -- command...",
		Short: "Run a command and grade it against an expectation",
		Long: fmt.Sprintf(`Run a command in a fresh sandbox and check the result.

Kinds: %s

file_contains expects "name::content". The process exits 0 when the check
passes and 1 otherwise.`, kindList()),
		Example: `  clitutor check --kind output_equals --expect hello -- echo hello
  clitutor check --kind file_contains --expect "notes.txt::milk" -- 'echo milk > notes.txt'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := validator.ParseKind(kind)
			if err != nil {
				return err
			}
			exp := validator.Expectation{Kind: k, Expected: expected}

			ctx := cmd.Context()
			s, err := startSession(ctx, g, f)
			if err != nil {
				return err
			}
			defer s.close()

			res := s.run(ctx, strings.Join(args, " "))
			r, err := validator.Grade(ctx, s.app.Checker(nil), logRecorder{s.app.Logger()}, exerciseID, exp, res)
			if err != nil {
				return err
			}

			if f.json {
				doc, err := resultJSON(res, s.app.Executor().Cwd())
				if err != nil {
					return err
				}
				if doc, err = withValidation(doc, exp, r); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), doc)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), gradeLine(r))
			}
			if !r.Passed {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&kind, "kind", string(validator.OutputEquals), "validation kind")
	cmd.Flags().StringVar(&expected, "expect", "", "expected value")
	cmd.Flags().StringVar(&exerciseID, "exercise", "adhoc", "exercise identifier recorded on a pass")
	return cmd
}

func kindList() string {
	names := make([]string, len(validator.Kinds))
	for i, k := range validator.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
