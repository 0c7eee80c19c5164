package protocol

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/spencer-dollahite/clitutor/internal/executor"
)

var sentinelRe = regexp.MustCompile(`\x1f(` + CmdStartMarker + `|` + CmdEndMarker + `:[^\x1f]*)\x1f`)

// maxCarry bounds how much of an unterminated marker is held back.
const maxCarry = 4096

// Output is what one Feed call produced.
type Output struct {
	// Display is the input with all markers removed.
	Display []byte
	// Results holds a result for every completed, unsuppressed command.
	Results []executor.CommandResult
	// Ready is set when this chunk carried the shell's first boundary.
	Ready bool
	// ReadyAt is the offset in Display where that boundary was.
	ReadyAt int
}

// Demuxer separates markers from displayable output and captures the
// output of each command. It is not safe for concurrent use.
type Demuxer struct {
	capturing bool
	buf       bytes.Buffer
	cwd       string
	skip      int
	ready     bool
	carry     []byte
}

// NewDemuxer returns a demuxer that suppresses the shell's startup
// boundary.
func NewDemuxer(cwd string) *Demuxer {
	d := &Demuxer{}
	d.Reset(cwd)
	return d
}

// Reset returns to the freshly spawned state.
func (d *Demuxer) Reset(cwd string) {
	d.capturing = false
	d.buf.Reset()
	d.cwd = cwd
	d.skip = 1
	d.ready = false
	d.carry = nil
}

// Skip suppresses the result of the next completed boundary.
func (d *Demuxer) Skip() {
	d.skip++
}

// SkipCount returns the number of boundaries still to be suppressed.
func (d *Demuxer) SkipCount() int {
	return d.skip
}

// Ready reports whether the shell has printed its first boundary.
func (d *Demuxer) Ready() bool {
	return d.ready
}

// Capturing reports whether a command is running.
func (d *Demuxer) Capturing() bool {
	return d.capturing
}

// Cwd returns the directory reported by the last end marker.
func (d *Demuxer) Cwd() string {
	return d.cwd
}

// Feed processes one chunk of PTY output.
func (d *Demuxer) Feed(chunk []byte) Output {
	data := chunk
	if len(d.carry) > 0 {
		data = append(d.carry, chunk...)
		d.carry = nil
	}

	var out Output
	display := make([]byte, 0, len(data))
	last := 0

	for _, m := range sentinelRe.FindAllSubmatchIndex(data, -1) {
		display = d.segment(display, data[last:m[0]])

		body := string(data[m[2]:m[3]])
		if body == CmdStartMarker {
			d.capturing = true
			d.buf.Reset()
		} else {
			wasReady := d.ready
			if res, ok := d.finish(body); ok {
				out.Results = append(out.Results, res)
			}
			if !wasReady && d.ready {
				out.Ready = true
				out.ReadyAt = len(display)
			}
		}
		last = m[1]
	}

	tail := data[last:]
	if i := bytes.LastIndexByte(tail, SentinelChar[0]); i >= 0 && isMarkerPrefix(tail[i:]) {
		d.carry = append([]byte(nil), tail[i:]...)
		tail = tail[:i]
	}
	display = d.segment(display, tail)

	out.Display = display
	return out
}

func (d *Demuxer) segment(display, seg []byte) []byte {
	if len(seg) == 0 {
		return display
	}
	if d.capturing {
		d.buf.Write(seg)
	}
	return append(display, seg...)
}

func (d *Demuxer) finish(body string) (executor.CommandResult, bool) {
	rest := strings.TrimPrefix(body, CmdEndMarker+":")
	rcText, cwd, _ := strings.Cut(rest, ":")
	rc, err := strconv.Atoi(rcText)
	if err != nil {
		rc = 0
	}
	if cwd != "" {
		d.cwd = cwd
	}

	captured := d.buf.String()
	d.buf.Reset()
	d.capturing = false
	d.ready = true

	if d.skip > 0 {
		d.skip--
		return executor.CommandResult{}, false
	}
	return executor.CommandResult{
		Stdout:   normalizeNewlines(StripANSI(captured)),
		ExitCode: rc,
	}, true
}

// isMarkerPrefix reports whether b, which starts with the framing byte,
// could be the beginning of a marker cut off by a chunk boundary.
func isMarkerPrefix(b []byte) bool {
	if len(b) > maxCarry {
		return false
	}
	body := string(b[1:])
	if len(body) <= len(CmdStartMarker) && strings.HasPrefix(CmdStartMarker, body) {
		return true
	}
	end := CmdEndMarker + ":"
	if len(body) <= len(end) {
		return strings.HasPrefix(end, body)
	}
	return strings.HasPrefix(body, end)
}
