// Package completion implements tab completion by asking bash's compgen
// builtin inside the sandbox.
package completion

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kballard/go-shellquote"

	"github.com/spencer-dollahite/clitutor/internal/executor"
)

// QueryTimeout bounds a single compgen query.
const QueryTimeout = 3 * time.Second

// Result is the outcome of a completion request.
type Result struct {
	Matches []string
	Line    string
	Cursor  int
}

// BuildCompgen returns the compgen query for the text before cursor. It
// reports false when there is nothing to complete.
func BuildCompgen(line string, cursor int) (string, bool) {
	before := prefix(line, cursor)
	if strings.TrimSpace(before) == "" {
		return "", false
	}
	if strings.HasSuffix(before, " ") {
		return "compgen -f -- ''", true
	}

	words, err := shellquote.Split(before)
	if err != nil {
		words = strings.Fields(before)
	}
	if len(words) == 0 {
		return "", false
	}
	last := words[len(words)-1]
	if len(words) == 1 {
		return "compgen -c -- " + quote(last), true
	}
	return "compgen -f -- " + quote(last), true
}

func quote(word string) string {
	if word == "" {
		return "''"
	}
	return shellquote.Join(word)
}

func prefix(line string, cursor int) string {
	return line[:clamp(cursor, len(line))]
}

// Parse turns compgen output into sorted, unique, non-blank matches.
func Parse(stdout string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range strings.Split(stdout, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// CommonPrefix returns the longest prefix shared by all matches.
func CommonPrefix(matches []string) string {
	if len(matches) == 0 {
		return ""
	}
	p := matches[0]
	for _, m := range matches[1:] {
		p = runePrefix(p, m)
		if p == "" {
			break
		}
	}
	return p
}

// runePrefix returns the longest common prefix of a and b that ends on a
// rune boundary.
func runePrefix(a, b string) string {
	n := 0
	for n < len(a) && n < len(b) {
		ra, size := utf8.DecodeRuneInString(a[n:])
		rb, _ := utf8.DecodeRuneInString(b[n:])
		if ra != rb || !strings.HasPrefix(b[n:], a[n:n+size]) {
			break
		}
		n += size
	}
	return a[:n]
}

// Apply replaces the token ending at cursor with replacement and returns the
// new line and cursor.
func Apply(line string, cursor int, replacement string) (string, int) {
	before := line[:clamp(cursor, len(line))]
	after := line[len(before):]
	start := strings.LastIndex(before, " ") + 1
	newBefore := before[:start] + replacement
	return newBefore + after, len(newBefore)
}

func clamp(n, limit int) int {
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}

// Complete queries compgen through exec and applies the result. One match
// is applied with a trailing space. Several matches apply their common
// prefix. No matches leave the line alone.
func Complete(ctx context.Context, exec executor.Executor, line string, cursor int) Result {
	cursor = clamp(cursor, len(line))
	res := Result{Line: line, Cursor: cursor}

	query, ok := BuildCompgen(line, cursor)
	if !ok {
		return res
	}
	out := exec.Run(ctx, query, executor.RunOptions{Timeout: QueryTimeout})
	if out.Blocked || out.TimedOut {
		return res
	}
	res.Matches = Parse(out.Stdout)

	switch len(res.Matches) {
	case 0:
		return res
	case 1:
		res.Line, res.Cursor = Apply(line, cursor, res.Matches[0]+" ")
	default:
		if p := CommonPrefix(res.Matches); p != "" {
			res.Line, res.Cursor = Apply(line, cursor, p)
		}
	}
	return res
}
