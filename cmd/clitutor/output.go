package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/tidwall/sjson"
	"golang.org/x/term"

	"github.com/spencer-dollahite/clitutor/internal/executor"
	"github.com/spencer-dollahite/clitutor/internal/validator"
)

var (
	okStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	dimStyle  = lipgloss.NewStyle().Faint(true)
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// resultJSON renders a command result as a JSON object.
func resultJSON(res executor.CommandResult, cwd string) (string, error) {
	doc := "{}"
	fields := []struct {
		path  string
		value any
	}{
		{"command", res.Command},
		{"stdout", res.Stdout},
		{"stderr", res.Stderr},
		{"exit_code", res.ExitCode},
		{"timed_out", res.TimedOut},
		{"blocked", res.Blocked},
		{"cwd", cwd},
	}
	var err error
	for _, f := range fields {
		if doc, err = sjson.Set(doc, f.path, f.value); err != nil {
			return "", fmt.Errorf("encoding %s: %w", f.path, err)
		}
	}
	if res.Blocked {
		if doc, err = sjson.Set(doc, "block_reason", res.BlockReason); err != nil {
			return "", fmt.Errorf("encoding block_reason: %w", err)
		}
	}
	return doc, nil
}

// withValidation adds a grading outcome to a result document.
func withValidation(doc string, exp validator.Expectation, r validator.Result) (string, error) {
	doc, err := sjson.Set(doc, "validation", map[string]any{
		"kind":     string(exp.Kind),
		"expected": exp.Expected,
		"passed":   r.Passed,
		"message":  r.Message,
	})
	if err != nil {
		return "", fmt.Errorf("encoding validation: %w", err)
	}
	return doc, nil
}

// statusLine summarizes a result for a terminal.
func statusLine(res executor.CommandResult, prompt string) string {
	var status string
	switch {
	case res.Blocked:
		status = failStyle.Render("blocked")
	case res.TimedOut:
		status = failStyle.Render("timed out")
	case res.ExitCode == 0:
		status = okStyle.Render("exit 0")
	default:
		status = failStyle.Render(fmt.Sprintf("exit %d", res.ExitCode))
	}
	return status + dimStyle.Render(" in "+prompt)
}

// gradeLine renders a validation result.
func gradeLine(r validator.Result) string {
	if r.Passed {
		return okStyle.Render("✓ ") + r.Message
	}
	return failStyle.Render("✗ ") + r.Message
}
