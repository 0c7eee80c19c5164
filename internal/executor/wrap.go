package executor

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

// cwdSentinel prefixes the directory a tracked command finished in.
const cwdSentinel = "\x1f__CLITUTOR_CWD__:"

// wrap builds the bash script for one command. Statements are separated by
// newlines so a trailing comment or background operator in the command
// cannot swallow the epilogue.
func wrap(command, cwd, root string, trackCwd bool) string {
	if cwd == "" {
		cwd = root
	}

	var b strings.Builder
	b.WriteString("cd ")
	b.WriteString(shellquote.Join(cwd))
	b.WriteString(" 2>/dev/null || cd ")
	b.WriteString(shellquote.Join(root))
	b.WriteString("\n")
	b.WriteString(command)
	if trackCwd {
		b.WriteString("\n__rc=$?\nprintf '\\x1f__CLITUTOR_CWD__:%s' \"$(pwd)\"\nexit $__rc")
	}
	return b.String()
}

// parseCwd splits the last cwd sentinel off stdout. The returned directory
// is empty when no sentinel was printed.
func parseCwd(stdout string) (string, string) {
	idx := strings.LastIndex(stdout, cwdSentinel)
	if idx < 0 {
		return stdout, ""
	}
	dir := strings.TrimRight(stdout[idx+len(cwdSentinel):], "\r\n")
	return stdout[:idx], dir
}

func stripCwd(stdout string) string {
	out, _ := parseCwd(stdout)
	return out
}
