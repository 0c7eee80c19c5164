package terminal

import (
	"fmt"
	"reflect"
	"testing"
)

func TestGridNewIsBlankAndDirty(t *testing.T) {
	g := NewGrid(3, 4)
	rows, cols := g.Size()
	if rows != 3 || cols != 4 {
		t.Fatalf("expected 3x4, got %dx%d", rows, cols)
	}
	if got := g.Dirty(); !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("expected all rows dirty, got %v", got)
	}
	if c := g.Cell(0, 0); c.Rune != ' ' || c.Width != 1 {
		t.Errorf("expected blank cell, got %+v", c)
	}
}

func TestGridDirtyTracking(t *testing.T) {
	e := New(4, 10)
	g := e.Grid()
	g.ClearDirty()
	if len(g.Dirty()) != 0 {
		t.Fatalf("expected no dirty rows after clear")
	}

	e.WriteString("\x1b[3;1Hx")
	if got := g.Dirty(); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("expected [2], got %v", got)
	}

	g.ClearDirty()
	e.WriteString("\x1b[4;1H\n")
	if got := g.Dirty(); !reflect.DeepEqual(got, []int{0, 1, 2, 3}) {
		t.Errorf("expected scroll to dirty every row, got %v", got)
	}

	g.ClearDirty()
	e.WriteString("\x1b[2;5H")
	if len(g.Dirty()) != 0 {
		t.Errorf("expected cursor movement alone to leave rows clean, got %v", g.Dirty())
	}
}

func TestGridTakeDirty(t *testing.T) {
	e := New(4, 10)
	g := e.Grid()
	if got := g.TakeDirty(); !reflect.DeepEqual(got, []int{0, 1, 2, 3}) {
		t.Fatalf("expected all rows from a new grid, got %v", got)
	}
	if got := g.TakeDirty(); len(got) != 0 {
		t.Fatalf("expected take to empty the set, got %v", got)
	}

	e.WriteString("\x1b[2;1Hy")
	e.WriteString("\x1b[4;1Hz")
	if got := g.TakeDirty(); !reflect.DeepEqual(got, []int{1, 3}) {
		t.Errorf("expected [1 3], got %v", got)
	}
	if len(g.Dirty()) != 0 {
		t.Errorf("expected no dirty rows after take, got %v", g.Dirty())
	}
}

func TestGridTakeDirtyConcurrentWrites(t *testing.T) {
	e := New(8, 10)
	g := e.Grid()
	g.TakeDirty()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			e.WriteString(fmt.Sprintf("\x1b[%d;1Hx", i%8+1))
		}
	}()

	seen := make(map[int]bool)
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		for _, y := range g.TakeDirty() {
			seen[y] = true
		}
	}
	for y := 0; y < 8; y++ {
		if !seen[y] {
			t.Errorf("row %d was written but never reported dirty", y)
		}
	}
}

func TestGridResizeTruncatesAndPads(t *testing.T) {
	e := New(3, 6)
	e.WriteString("abcdef\r\nghi")
	g := e.Grid()
	g.ClearDirty()

	g.Resize(2, 4)
	if got := g.Text(); got != "abcd\nghi" {
		t.Errorf("expected truncated text, got %q", got)
	}
	if got := g.Dirty(); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("expected all rows dirty after resize, got %v", got)
	}

	g.Resize(3, 8)
	if got := g.Text(); got != "abcd\nghi\n" {
		t.Errorf("expected padded text, got %q", got)
	}
	x, y := g.Cursor()
	if x < 0 || x >= 8 || y < 0 || y >= 3 {
		t.Errorf("cursor out of range after resize: (%d,%d)", x, y)
	}
}

func TestGridResizeSplitsWideRune(t *testing.T) {
	e := New(1, 4)
	e.WriteString("ab世")
	e.Grid().Resize(1, 3)
	if got := e.Grid().RowText(0); got != "ab" {
		t.Errorf("expected split wide rune dropped, got '%s'", got)
	}
}

func TestGridResizeMinimum(t *testing.T) {
	g := NewGrid(0, -3)
	rows, cols := g.Size()
	if rows != 1 || cols != 1 {
		t.Errorf("expected 1x1, got %dx%d", rows, cols)
	}
}

func TestGridRowIsCopy(t *testing.T) {
	e := New(1, 3)
	e.WriteString("abc")
	row := e.Grid().Row(0)
	row[0].Rune = 'z'
	if e.Grid().Cell(0, 0).Rune != 'a' {
		t.Error("Row should return a copy")
	}
	if e.Grid().Row(5) != nil {
		t.Error("expected nil for out of range row")
	}
}

func TestColorName(t *testing.T) {
	tests := []struct {
		c    Color
		want string
	}{
		{DefaultColor, "default"},
		{Indexed(1), "red"},
		{Indexed(15), "brightwhite"},
		{Indexed(16), "#000000"},
		{Indexed(231), "#ffffff"},
		{Indexed(255), "#eeeeee"},
		{Indexed(999), "#eeeeee"},
		{RGB(0x12, 0xab, 0xef), "#12abef"},
	}
	for _, tt := range tests {
		if got := tt.c.Name(); got != tt.want {
			t.Errorf("expected %s, got %s", tt.want, got)
		}
	}
}
