package executor

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Prompt identity shown to the learner.
const (
	PromptUser = "student"
	PromptHost = "clitutor"
)

var (
	promptUserStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	promptDirStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
)

// PromptDir collapses root to "~" and paths below it to "~/...".
func PromptDir(cwd, root string) string {
	if cwd == "" || cwd == root {
		return "~"
	}
	if root != "" && strings.HasPrefix(cwd, root+"/") {
		return "~" + cwd[len(root):]
	}
	return cwd
}

// PlainPrompt returns the unstyled prompt, e.g. "student@clitutor:~/sub$ ".
func PlainPrompt(cwd, root string) string {
	return PromptUser + "@" + PromptHost + ":" + PromptDir(cwd, root) + "$ "
}

// Prompt returns the prompt styled like the interactive shell's PS1.
func Prompt(cwd, root string) string {
	return promptUserStyle.Render(PromptUser+"@"+PromptHost) + ":" +
		promptDirStyle.Render(PromptDir(cwd, root)) + "$ "
}
