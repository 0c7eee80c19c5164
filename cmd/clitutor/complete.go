package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spencer-dollahite/clitutor/internal/completion"
)

func newCompleteCmd(g *globalOptions) *cobra.Command {
	f := &runFlags{}
	cursor := -1
	cmd := &cobra.Command{
		Use:   "complete [flags] LINE",
		Short: "Tab-complete a command line inside a sandbox",
		Long: `Complete LINE at the cursor the way the interactive shell would. The
completed line is printed first, followed by every match.`,
		Example: `  clitutor complete gr
  clitutor complete --seed notes.txt: "cat no"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line := args[0]
			if cursor < 0 {
				cursor = len(line)
			}

			ctx := cmd.Context()
			s, err := startSession(ctx, g, f)
			if err != nil {
				return err
			}
			defer s.close()

			res := completion.Complete(ctx, s.app.Executor(), line, cursor)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Line)
			for _, m := range res.Matches {
				fmt.Fprintln(out, m)
			}
			if len(res.Matches) == 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&f.seeds, "seed", nil, `seed a file before completing, as "name:content"`)
	cmd.Flags().IntVar(&cursor, "cursor", -1, "cursor offset in LINE (defaults to the end)")
	return cmd
}
