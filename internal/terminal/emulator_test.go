package terminal

import (
	"testing"
)

func TestEmulatorPlainText(t *testing.T) {
	e := New(24, 80)
	e.WriteString("Hello")

	if got := e.Grid().RowText(0); got != "Hello" {
		t.Errorf("expected 'Hello', got '%s'", got)
	}
	if x, y := e.Grid().Cursor(); x != 5 || y != 0 {
		t.Errorf("expected cursor (5,0), got (%d,%d)", x, y)
	}
}

func TestEmulatorCRLF(t *testing.T) {
	e := New(24, 80)
	e.WriteString("A\r\nB")

	g := e.Grid()
	if g.Cell(0, 0).Rune != 'A' {
		t.Errorf("expected 'A' on row 0, got %c", g.Cell(0, 0).Rune)
	}
	if g.Cell(0, 1).Rune != 'B' {
		t.Errorf("expected 'B' on row 1, got %c", g.Cell(0, 1).Rune)
	}
}

func TestEmulatorBareLineFeedKeepsColumn(t *testing.T) {
	e := New(24, 80)
	e.WriteString("AB\nC")

	if got := e.Grid().RowText(1); got != "  C" {
		t.Errorf("expected '  C', got '%s'", got)
	}
}

func TestEmulatorCarriageReturnOverwrites(t *testing.T) {
	e := New(24, 80)
	e.WriteString("ABC\rX")

	if got := e.Grid().RowText(0); got != "XBC" {
		t.Errorf("expected 'XBC', got '%s'", got)
	}
}

func TestEmulatorTabAndBackspace(t *testing.T) {
	e := New(24, 80)
	e.WriteString("A\tB")
	if e.Grid().Cell(8, 0).Rune != 'B' {
		t.Errorf("expected 'B' at column 8, got %c", e.Grid().Cell(8, 0).Rune)
	}

	e = New(24, 80)
	e.WriteString("AB\bC")
	if got := e.Grid().RowText(0); got != "AC" {
		t.Errorf("expected 'AC', got '%s'", got)
	}
}

func TestEmulatorAutoWrap(t *testing.T) {
	e := New(3, 5)
	e.WriteString("abcdefg")

	g := e.Grid()
	if got := g.RowText(0); got != "abcde" {
		t.Errorf("expected 'abcde', got '%s'", got)
	}
	if got := g.RowText(1); got != "fg" {
		t.Errorf("expected 'fg', got '%s'", got)
	}
}

func TestEmulatorPendingWrapDoesNotScrollEarly(t *testing.T) {
	e := New(2, 3)
	e.WriteString("abc")

	x, y := e.Grid().Cursor()
	if x != 2 || y != 0 {
		t.Errorf("expected cursor parked at (2,0), got (%d,%d)", x, y)
	}
	e.WriteString("\r\nxy")
	if got := e.Grid().Text(); got != "abc\nxy" {
		t.Errorf("expected 'abc\\nxy', got %q", got)
	}
}

func TestEmulatorAutoWrapDisabled(t *testing.T) {
	e := New(2, 4)
	e.WriteString("\x1b[?7labcdef")

	if got := e.Grid().RowText(0); got != "abcf" {
		t.Errorf("expected 'abcf', got '%s'", got)
	}
	if got := e.Grid().RowText(1); got != "" {
		t.Errorf("expected empty second row, got '%s'", got)
	}
}

func TestEmulatorScrollAtBottom(t *testing.T) {
	e := New(2, 10)
	e.WriteString("one\r\ntwo\r\nthree")

	if got := e.Grid().Text(); got != "two\nthree" {
		t.Errorf("expected 'two\\nthree', got %q", got)
	}
}

func TestEmulatorCursorMovement(t *testing.T) {
	tests := []struct {
		name  string
		input string
		x, y  int
	}{
		{"CUP", "\x1b[5;10H", 9, 4},
		{"CUP default", "\x1b[5;10H\x1b[H", 0, 0},
		{"HVP", "\x1b[3;4f", 3, 2},
		{"CUU", "\x1b[10;10H\x1b[3A", 9, 6},
		{"CUD", "\x1b[2B", 0, 2},
		{"CUF", "\x1b[7C", 7, 0},
		{"CUB", "\x1b[1;10H\x1b[4D", 5, 0},
		{"CNL", "\x1b[1;5H\x1b[2E", 0, 2},
		{"CPL", "\x1b[5;5H\x1b[2F", 0, 2},
		{"CHA", "\x1b[3;1H\x1b[12G", 11, 2},
		{"VPA", "\x1b[1;6H\x1b[4d", 5, 3},
		{"clamped", "\x1b[100;200H", 79, 23},
		{"up clamped", "\x1b[99A", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(24, 80)
			e.WriteString(tt.input)
			x, y := e.Grid().Cursor()
			if x != tt.x || y != tt.y {
				t.Errorf("expected (%d,%d), got (%d,%d)", tt.x, tt.y, x, y)
			}
		})
	}
}

func TestEmulatorEraseLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"right", "abcdef\x1b[1;3H\x1b[K", "ab"},
		{"left", "abcdef\x1b[1;3H\x1b[1K", "   def"},
		{"all", "abcdef\x1b[2K", ""},
		{"ECH", "abcdef\x1b[1;2H\x1b[2X", "a  def"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(4, 10)
			e.WriteString(tt.input)
			if got := e.Grid().RowText(0); got != tt.want {
				t.Errorf("expected '%s', got '%s'", tt.want, got)
			}
		})
	}
}

func TestEmulatorEraseDisplay(t *testing.T) {
	e := New(3, 5)
	e.WriteString("aaaaa\r\nbbbbb\r\nccccc\x1b[2;3H\x1b[J")
	if got := e.Grid().Text(); got != "aaaaa\nbb\n" {
		t.Errorf("ED 0: got %q", got)
	}

	e = New(3, 5)
	e.WriteString("aaaaa\r\nbbbbb\r\nccccc\x1b[2;3H\x1b[1J")
	if got := e.Grid().Text(); got != "\n   bb\nccccc" {
		t.Errorf("ED 1: got %q", got)
	}

	e = New(3, 5)
	e.WriteString("aaaaa\r\nbbbbb\x1b[2J")
	if got := e.Grid().Text(); got != "\n\n" {
		t.Errorf("ED 2: got %q", got)
	}
}

func TestEmulatorInsertDeleteChars(t *testing.T) {
	e := New(2, 8)
	e.WriteString("abcdef\x1b[1;3H\x1b[2@")
	if got := e.Grid().RowText(0); got != "ab  cdef" {
		t.Errorf("ICH: expected 'ab  cdef', got '%s'", got)
	}

	e = New(2, 8)
	e.WriteString("abcdef\x1b[1;3H\x1b[2P")
	if got := e.Grid().RowText(0); got != "abef" {
		t.Errorf("DCH: expected 'abef', got '%s'", got)
	}
}

func TestEmulatorInsertDeleteLines(t *testing.T) {
	e := New(4, 5)
	e.WriteString("1\r\n2\r\n3\r\n4\x1b[2;1H\x1b[L")
	if got := e.Grid().Text(); got != "1\n\n2\n3" {
		t.Errorf("IL: got %q", got)
	}

	e = New(4, 5)
	e.WriteString("1\r\n2\r\n3\r\n4\x1b[2;1H\x1b[2M")
	if got := e.Grid().Text(); got != "1\n4\n\n" {
		t.Errorf("DL: got %q", got)
	}
}

func TestEmulatorScrollRegion(t *testing.T) {
	e := New(4, 5)
	e.WriteString("1\r\n2\r\n3\r\n4")
	e.WriteString("\x1b[2;3r\x1b[3;1H\nX")

	if got := e.Grid().Text(); got != "1\n3\nX\n4" {
		t.Errorf("expected region scroll, got %q", got)
	}
}

func TestEmulatorScrollUpDown(t *testing.T) {
	e := New(3, 5)
	e.WriteString("1\r\n2\r\n3\x1b[S")
	if got := e.Grid().Text(); got != "2\n3\n" {
		t.Errorf("SU: got %q", got)
	}
	e.WriteString("\x1b[2T")
	if got := e.Grid().Text(); got != "\n\n2" {
		t.Errorf("SD: got %q", got)
	}
}

func TestEmulatorReverseIndex(t *testing.T) {
	e := New(3, 5)
	e.WriteString("a\r\nb\x1b[H\x1bM")
	if got := e.Grid().Text(); got != "\na\nb" {
		t.Errorf("RI: got %q", got)
	}
}

func TestEmulatorSGR(t *testing.T) {
	e := New(2, 20)
	e.WriteString("\x1b[1;3;4;9;7;31;42mA\x1b[0mB")

	a := e.Grid().Cell(0, 0)
	if !a.Bold() || !a.Italic() || !a.Underline() || !a.Strike() || !a.Reverse() {
		t.Errorf("expected all attributes on A, got %08b", a.Attrs)
	}
	if a.Fg.Name() != "red" {
		t.Errorf("expected fg red, got %s", a.Fg.Name())
	}
	if a.Bg.Name() != "green" {
		t.Errorf("expected bg green, got %s", a.Bg.Name())
	}

	b := e.Grid().Cell(1, 0)
	if b.Attrs != 0 || b.Fg != DefaultColor || b.Bg != DefaultColor {
		t.Errorf("expected reset cell, got %+v", b)
	}
}

func TestEmulatorSGRRemoval(t *testing.T) {
	e := New(2, 20)
	e.WriteString("\x1b[1;4mA\x1b[22mB\x1b[24mC")
	g := e.Grid()
	if !g.Cell(1, 0).Underline() || g.Cell(1, 0).Bold() {
		t.Errorf("expected B underlined and not bold")
	}
	if g.Cell(2, 0).Attrs != 0 {
		t.Errorf("expected C plain, got %08b", g.Cell(2, 0).Attrs)
	}
}

func TestEmulatorColors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		fg    string
		bg    string
	}{
		{"bright fg", "\x1b[91m", "brightred", "default"},
		{"bright bg", "\x1b[104m", "default", "brightblue"},
		{"256 base", "\x1b[38;5;4m", "blue", "default"},
		{"256 cube", "\x1b[38;5;196m", "#ff0000", "default"},
		{"256 gray", "\x1b[48;5;232m", "default", "#080808"},
		{"truecolor", "\x1b[38;2;1;2;3;48;2;255;128;0m", "#010203", "#ff8000"},
		{"default fg", "\x1b[31;39m", "default", "default"},
		{"colon form", "\x1b[38:5:2m", "green", "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(2, 10)
			e.WriteString(tt.input + "x")
			c := e.Grid().Cell(0, 0)
			if c.Fg.Name() != tt.fg {
				t.Errorf("expected fg %s, got %s", tt.fg, c.Fg.Name())
			}
			if c.Bg.Name() != tt.bg {
				t.Errorf("expected bg %s, got %s", tt.bg, c.Bg.Name())
			}
		})
	}
}

func TestEmulatorSaveRestoreCursor(t *testing.T) {
	for _, seq := range [][2]string{{"\x1b7", "\x1b8"}, {"\x1b[s", "\x1b[u"}} {
		e := New(24, 80)
		e.WriteString("\x1b[5;6H\x1b[1m" + seq[0] + "\x1b[H\x1b[0m" + seq[1] + "Z")
		c := e.Grid().Cell(5, 4)
		if c.Rune != 'Z' {
			t.Errorf("%q: expected Z at (5,4), got %c", seq, c.Rune)
		}
		if !c.Bold() {
			t.Errorf("%q: expected restored bold pen", seq)
		}
	}
}

func TestEmulatorCursorVisibility(t *testing.T) {
	e := New(2, 2)
	e.WriteString("\x1b[?25l")
	if e.Grid().CursorVisible() {
		t.Error("expected hidden cursor")
	}
	e.WriteString("\x1b[?25h")
	if !e.Grid().CursorVisible() {
		t.Error("expected visible cursor")
	}
}

func TestEmulatorAlternateScreenClears(t *testing.T) {
	e := New(3, 10)
	e.WriteString("shell\x1b[?1049hvim")
	if got := e.Grid().RowText(0); got != "     vim" {
		t.Errorf("expected cleared screen with vim, got '%s'", got)
	}
	e.WriteString("\x1b[?1049l")
	if got := e.Grid().Text(); got != "\n\n" {
		t.Errorf("expected clear on exit, got %q", got)
	}
	if x, _ := e.Grid().Cursor(); x != 5 {
		t.Errorf("expected cursor restored to 5, got %d", x)
	}
}

func TestEmulatorTitle(t *testing.T) {
	e := New(2, 10)
	var titles []string
	e.OnTitle(func(s string) { titles = append(titles, s) })

	e.WriteString("\x1b]0;first\x07\x1b]2;second\x1b\\\x1b]1;icon\x07ok")
	if len(titles) != 2 || titles[0] != "first" || titles[1] != "second" {
		t.Errorf("expected [first second], got %v", titles)
	}
	if got := e.Grid().RowText(0); got != "ok" {
		t.Errorf("expected 'ok' after OSC, got '%s'", got)
	}
}

func TestEmulatorUTF8SplitAcrossWrites(t *testing.T) {
	e := New(2, 10)
	b := []byte("é€")
	for i := range b {
		e.Write(b[i : i+1])
	}
	if got := e.Grid().RowText(0); got != "é€" {
		t.Errorf("expected 'é€', got '%s'", got)
	}
}

func TestEmulatorInvalidUTF8(t *testing.T) {
	e := New(2, 10)
	e.Write([]byte{'a', 0xc3, 'b', 0xff})
	if got := e.Grid().RowText(0); got != "a�b�" {
		t.Errorf("expected replacement runes, got %q", got)
	}
}

func TestEmulatorWideRunes(t *testing.T) {
	e := New(2, 5)
	e.WriteString("a世b")

	g := e.Grid()
	if c := g.Cell(1, 0); c.Rune != '世' || c.Width != 2 {
		t.Errorf("expected wide rune at 1, got %+v", c)
	}
	if c := g.Cell(2, 0); c.Width != 0 {
		t.Errorf("expected continuation cell at 2, got %+v", c)
	}
	if c := g.Cell(3, 0); c.Rune != 'b' {
		t.Errorf("expected 'b' at 3, got %c", c.Rune)
	}
	if got := g.RowText(0); got != "a世b" {
		t.Errorf("expected 'a世b', got '%s'", got)
	}
}

func TestEmulatorWideRuneWrapsAtEdge(t *testing.T) {
	e := New(2, 4)
	e.WriteString("abc世")
	if got := e.Grid().RowText(1); got != "世" {
		t.Errorf("expected wide rune on next row, got '%s'", got)
	}
}

func TestEmulatorOverwriteHalfOfWideRune(t *testing.T) {
	e := New(2, 5)
	e.WriteString("世\x1b[1;2Hx")
	if got := e.Grid().RowText(0); got != " x" {
		t.Errorf("expected ' x', got '%s'", got)
	}
}

func TestEmulatorIgnoresUnknownSequences(t *testing.T) {
	e := New(2, 20)
	e.WriteString("\x1b(B\x1b[>c\x1b[6n\x1bP+q\x1b\\\x1b[?2004hok")
	if got := e.Grid().RowText(0); got != "ok" {
		t.Errorf("expected 'ok', got '%s'", got)
	}
}

func TestEmulatorReset(t *testing.T) {
	e := New(2, 5)
	e.WriteString("\x1b[31mabc\x1b[")
	e.Reset()
	e.WriteString("x")
	c := e.Grid().Cell(0, 0)
	if c.Rune != 'x' || c.Fg != DefaultColor {
		t.Errorf("expected plain x after reset, got %+v", c)
	}
}

func TestEmulatorWriteReportsLength(t *testing.T) {
	e := New(2, 5)
	n, err := e.Write([]byte("\x1b[1mhi"))
	if err != nil || n != 6 {
		t.Errorf("expected (6, nil), got (%d, %v)", n, err)
	}
}
