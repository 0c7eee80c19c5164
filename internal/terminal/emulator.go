package terminal

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	maxParams = 16
	maxOSC    = 4096
)

type parseState int

const (
	stGround parseState = iota
	stEscape
	stCharset // ESC ( ) * + waiting for the designator byte
	stCSI
	stOSC
	stString // DCS, SOS, PM, APC: swallowed until ST
)

// Emulator parses a VT byte stream into a Grid.
type Emulator struct {
	grid *Grid

	state   parseState
	params  []int
	private byte
	inter   []byte
	osc     []byte
	utf8    []byte

	onTitle func(string)
	titles  []string
}

// New creates an emulator with a blank rows x cols grid.
func New(rows, cols int) *Emulator {
	return &Emulator{
		grid:   NewGrid(rows, cols),
		params: make([]int, 0, maxParams),
		utf8:   make([]byte, 0, utf8.UTFMax),
	}
}

// Grid returns the screen the emulator draws into.
func (e *Emulator) Grid() *Grid {
	return e.grid
}

// OnTitle registers a handler for OSC 0 and 2 title changes. It runs after
// the write that carried the title, outside the grid lock.
func (e *Emulator) OnTitle(fn func(string)) {
	e.onTitle = fn
}

// Write feeds p to the parser. It never fails. Multi-byte sequences may be
// split across calls.
func (e *Emulator) Write(p []byte) (int, error) {
	e.grid.mu.Lock()
	for _, b := range p {
		e.step(b)
	}
	titles := e.titles
	e.titles = nil
	e.grid.mu.Unlock()

	if e.onTitle != nil {
		for _, t := range titles {
			e.onTitle(t)
		}
	}
	return len(p), nil
}

// WriteString feeds s to the parser.
func (e *Emulator) WriteString(s string) {
	_, _ = e.Write([]byte(s))
}

// Resize changes the screen size.
func (e *Emulator) Resize(rows, cols int) {
	e.grid.Resize(rows, cols)
}

// Reset clears the screen and the parser state.
func (e *Emulator) Reset() {
	e.grid.mu.Lock()
	defer e.grid.mu.Unlock()
	e.grid.reset()
	e.state = stGround
	e.params = e.params[:0]
	e.private = 0
	e.inter = e.inter[:0]
	e.osc = e.osc[:0]
	e.utf8 = e.utf8[:0]
}

func (e *Emulator) step(b byte) {
	switch e.state {
	case stGround:
		e.ground(b)
	case stEscape:
		e.escape(b)
	case stCharset:
		e.state = stGround
	case stCSI:
		e.csi(b)
	case stOSC:
		e.oscByte(b)
	case stString:
		if b == 0x1b {
			e.state = stEscape
		} else if b == 0x07 {
			e.state = stGround
		}
	}
}

func (e *Emulator) ground(b byte) {
	if len(e.utf8) > 0 {
		if b >= 0x80 && b < 0xc0 {
			e.utf8 = append(e.utf8, b)
			if utf8.FullRune(e.utf8) {
				r, _ := utf8.DecodeRune(e.utf8)
				e.utf8 = e.utf8[:0]
				e.grid.put(r)
			}
			return
		}
		e.utf8 = e.utf8[:0]
		e.grid.put(utf8.RuneError)
	}

	switch {
	case b < 0x20:
		e.control(b)
	case b < 0x7f:
		e.grid.put(rune(b))
	case b == 0x7f:
	case b >= 0xc2 && b <= 0xf4:
		e.utf8 = append(e.utf8, b)
	default:
		e.grid.put(utf8.RuneError)
	}
}

// control executes a C0 control byte.
func (e *Emulator) control(b byte) {
	g := e.grid
	switch b {
	case 0x1b:
		e.state = stEscape
		e.inter = e.inter[:0]
	case 0x08:
		g.backspace()
	case 0x09:
		g.tab()
	case 0x0a, 0x0b, 0x0c:
		g.lineFeed()
	case 0x0d:
		g.carriageReturn()
	case 0x18, 0x1a:
		e.state = stGround
	}
}

func (e *Emulator) escape(b byte) {
	g := e.grid
	e.state = stGround
	switch b {
	case '[':
		e.state = stCSI
		e.params = e.params[:0]
		e.private = 0
		e.inter = e.inter[:0]
	case ']':
		e.state = stOSC
		e.osc = e.osc[:0]
	case 'P', 'X', '^', '_':
		e.state = stString
	case '(', ')', '*', '+':
		e.state = stCharset
	case '7':
		g.saveCursor()
	case '8':
		g.restoreCursor()
	case 'D':
		g.lineFeed()
	case 'E':
		g.carriageReturn()
		g.lineFeed()
	case 'M':
		g.reverseLineFeed()
	case 'c':
		g.reset()
	case 0x1b:
		e.state = stEscape
	}
}

func (e *Emulator) csi(b byte) {
	switch {
	case b >= '0' && b <= '9':
		if len(e.params) == 0 {
			e.params = append(e.params, 0)
		}
		i := len(e.params) - 1
		if e.params[i] < 100000 {
			e.params[i] = e.params[i]*10 + int(b-'0')
		}
	case b == ';' || b == ':':
		if len(e.params) == 0 {
			e.params = append(e.params, 0)
		}
		if len(e.params) < maxParams {
			e.params = append(e.params, 0)
		}
	case b >= '<' && b <= '?':
		if len(e.params) == 0 && e.private == 0 {
			e.private = b
		}
	case b >= 0x20 && b <= 0x2f:
		e.inter = append(e.inter, b)
	case b >= 0x40 && b <= 0x7e:
		e.state = stGround
		e.dispatchCSI(b)
	case b == 0x1b:
		e.state = stEscape
	case b < 0x20:
		e.control(b)
	default:
		e.state = stGround
	}
}

// param returns parameter i, or def when it is missing or zero.
func (e *Emulator) param(i, def int) int {
	if i < len(e.params) && e.params[i] > 0 {
		return e.params[i]
	}
	return def
}

func (e *Emulator) dispatchCSI(final byte) {
	g := e.grid

	if e.private != 0 {
		if e.private == '?' && (final == 'h' || final == 'l') {
			e.privateMode(final == 'h')
		}
		return
	}
	if len(e.inter) > 0 {
		return
	}

	n := e.param(0, 1)
	switch final {
	case 'A':
		g.moveBy(0, -n)
	case 'B', 'e':
		g.moveBy(0, n)
	case 'C', 'a':
		g.moveBy(n, 0)
	case 'D':
		g.moveBy(-n, 0)
	case 'E':
		g.moveBy(0, n)
		g.carriageReturn()
	case 'F':
		g.moveBy(0, -n)
		g.carriageReturn()
	case 'G', '`':
		g.moveTo(n-1, g.y)
	case 'H', 'f':
		g.moveTo(e.param(1, 1)-1, n-1)
	case 'd':
		g.moveTo(min(g.x, g.cols-1), n-1)
	case 'J':
		g.eraseDisplay(e.param(0, 0))
	case 'K':
		g.eraseLine(e.param(0, 0))
	case 'X':
		g.eraseChars(n)
	case 'L':
		g.insertLines(n)
	case 'M':
		g.deleteLines(n)
	case '@':
		g.insertChars(n)
	case 'P':
		g.deleteChars(n)
	case 'S':
		g.scrollUp(n)
	case 'T':
		g.scrollDown(n)
	case 'r':
		g.setScrollRegion(n-1, e.param(1, g.rows)-1)
	case 's':
		g.saveCursor()
	case 'u':
		g.restoreCursor()
	case 'm':
		e.sgr()
	}
}

func (e *Emulator) privateMode(set bool) {
	g := e.grid
	for _, mode := range e.params {
		switch mode {
		case 7:
			g.autoWrap = set
		case 25:
			g.cursorVisible = set
		case 47, 1047, 1049:
			if set && mode == 1049 {
				g.saveCursor()
			}
			g.eraseDisplay(2)
			if !set && mode == 1049 {
				g.restoreCursor()
			}
		}
	}
}

var sgrAttrs = map[int]Attr{
	1: AttrBold, 3: AttrItalic, 4: AttrUnderline, 21: AttrUnderline,
	7: AttrReverse, 9: AttrStrike,
}

var sgrResets = map[int]Attr{
	22: AttrBold, 23: AttrItalic, 24: AttrUnderline, 27: AttrReverse, 29: AttrStrike,
}

func (e *Emulator) sgr() {
	p := &e.grid.pen
	if len(e.params) == 0 {
		*p = pen{}
		return
	}

	for i := 0; i < len(e.params); i++ {
		v := e.params[i]
		switch {
		case v == 0:
			*p = pen{}
		case sgrAttrs[v] != 0:
			p.attrs |= sgrAttrs[v]
		case sgrResets[v] != 0:
			p.attrs &^= sgrResets[v]
		case v >= 30 && v <= 37:
			p.fg = Indexed(v - 30)
		case v == 38:
			p.fg, i = e.extendedColor(i, p.fg)
		case v == 39:
			p.fg = DefaultColor
		case v >= 40 && v <= 47:
			p.bg = Indexed(v - 40)
		case v == 48:
			p.bg, i = e.extendedColor(i, p.bg)
		case v == 49:
			p.bg = DefaultColor
		case v >= 90 && v <= 97:
			p.fg = Indexed(v - 90 + 8)
		case v >= 100 && v <= 107:
			p.bg = Indexed(v - 100 + 8)
		}
	}
}

// extendedColor parses 5;n and 2;r;g;b after a 38 or 48 at params[i]. It
// returns the color and the index of the last consumed parameter.
func (e *Emulator) extendedColor(i int, cur Color) (Color, int) {
	if i+1 >= len(e.params) {
		return cur, i
	}
	switch e.params[i+1] {
	case 5:
		if i+2 < len(e.params) {
			return Indexed(e.params[i+2]), i + 2
		}
	case 2:
		if i+4 < len(e.params) {
			return RGB(byteOf(e.params[i+2]), byteOf(e.params[i+3]), byteOf(e.params[i+4])), i + 4
		}
	}
	return cur, len(e.params) - 1
}

func byteOf(v int) uint8 {
	return uint8(clamp(v, 0, 255))
}

func (e *Emulator) oscByte(b byte) {
	switch b {
	case 0x07:
		e.dispatchOSC()
		e.state = stGround
	case 0x1b:
		e.dispatchOSC()
		e.state = stEscape
	default:
		if len(e.osc) < maxOSC {
			e.osc = append(e.osc, b)
		}
	}
}

func (e *Emulator) dispatchOSC() {
	cmd, value, _ := strings.Cut(string(e.osc), ";")
	e.osc = e.osc[:0]
	n, err := strconv.Atoi(cmd)
	if err != nil {
		return
	}
	if n == 0 || n == 2 {
		e.titles = append(e.titles, value)
	}
}
