package protocol

import (
	"regexp"
	"strings"
)

var (
	csiRe  = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)
	oscRe  = regexp.MustCompile(`\x1b\][^\x07]*\x07`)
	ctrlRe = regexp.MustCompile(`[\x00-\x08\x0e-\x1f]`)
)

// StripANSI removes CSI sequences, BEL-terminated OSC sequences and the
// control bytes other than tab, newline, vertical tab, form feed and
// carriage return.
func StripANSI(s string) string {
	s = csiRe.ReplaceAllString(s, "")
	s = oscRe.ReplaceAllString(s, "")
	return ctrlRe.ReplaceAllString(s, "")
}

// normalizeNewlines turns the PTY's CRLF line endings into LF.
func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
