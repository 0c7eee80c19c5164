// Package safety classifies shell commands before they reach a process.
//
// Classification is pure: it never spawns anything and always returns the
// same verdict for the same input, so callers run it ahead of any sandbox
// work. Two layers are checked in order. The first shell word is compared
// against a denylist of privilege and disk tools, then the whole trimmed
// command is matched against a list of dangerous patterns. The first match
// wins.
package safety

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Layer identifies which check produced a verdict.
type Layer int

const (
	// LayerNone means the command was allowed.
	LayerNone Layer = iota
	// LayerDenylist means the first token is a denied command.
	LayerDenylist
	// LayerPattern means the command matched a dangerous pattern.
	LayerPattern
)

// String returns the layer name used in logs and metrics.
func (l Layer) String() string {
	switch l {
	case LayerDenylist:
		return "denylist"
	case LayerPattern:
		return "pattern"
	default:
		return "none"
	}
}

// PatternReason is the reason reported for any pattern match.
const PatternReason = "This command pattern is blocked for safety."

// Verdict is the result of classifying a command.
type Verdict struct {
	Blocked bool
	Reason  string
	Layer   Layer
}

// Allowed reports whether the command may run.
func (v Verdict) Allowed() bool {
	return !v.Blocked
}

// BlockedCommands lists the denied first tokens. The shell init script
// shadows the same names so interactive sessions refuse them too.
var BlockedCommands = []string{"sudo", "su", "chroot", "mount", "umount", "fdisk", "parted"}

var dangerousPatterns = []string{
	`rm\s+(-[a-zA-Z]*f[a-zA-Z]*\s+)?/\s*$`,
	`rm\s+-[a-zA-Z]*f[a-zA-Z]*\s+/`,
	`:\(\)\s*\{.*\}`,
	`mkfs\.`,
	`dd\s+.*of=/dev/`,
	`>\s*/dev/sd`,
	`chmod\s+(-R\s+)?777\s+/`,
	`curl.*\|\s*(ba)?sh`,
	`wget.*\|\s*(ba)?sh`,
	`shutdown`,
	`reboot`,
	`\bhalt\b`,
	`\bpoweroff\b`,
	`init\s+[06]`,
	`systemctl\s+(halt|poweroff|reboot)`,
}

// Filter holds a denylist and compiled pattern set.
type Filter struct {
	denied   map[string]struct{}
	patterns []*regexp.Regexp
}

// New builds a filter from a denylist and a list of regular expressions.
func New(denied []string, patterns []string) (*Filter, error) {
	f := &Filter{
		denied:   make(map[string]struct{}, len(denied)),
		patterns: make([]*regexp.Regexp, 0, len(patterns)),
	}
	for _, name := range denied {
		f.denied[name] = struct{}{}
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, re)
	}
	return f, nil
}

var defaultFilter = mustDefault()

func mustDefault() *Filter {
	f, err := New(BlockedCommands, dangerousPatterns)
	if err != nil {
		panic(err)
	}
	return f
}

// Default returns the shared filter built from the built-in lists.
func Default() *Filter {
	return defaultFilter
}

// Classify checks a command against the default filter.
func Classify(command string) Verdict {
	return defaultFilter.Classify(command)
}

// Classify checks a command against the filter.
func (f *Filter) Classify(command string) Verdict {
	trimmed := strings.TrimSpace(command)
	words := splitWords(trimmed)

	if len(words) > 0 {
		if _, ok := f.denied[words[0]]; ok {
			return Verdict{
				Blocked: true,
				Reason:  fmt.Sprintf("'%s' is not allowed in the sandbox.", words[0]),
				Layer:   LayerDenylist,
			}
		}
	}

	// Patterns see the command as typed and with its quoting removed.
	unquoted := strings.Join(words, " ")
	for _, re := range f.patterns {
		if re.MatchString(trimmed) || re.MatchString(unquoted) {
			return Verdict{Blocked: true, Reason: PatternReason, Layer: LayerPattern}
		}
	}

	return Verdict{}
}

// splitWords tokenizes command the way the shell would. Input with
// unbalanced quotes falls back to whitespace splitting.
func splitWords(command string) []string {
	words, err := shellquote.Split(command)
	if err != nil {
		return strings.Fields(command)
	}
	return words
}
