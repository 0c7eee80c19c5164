package renderer

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/spencer-dollahite/clitutor/internal/terminal"
)

// Run is a span of cells sharing one style.
type Run struct {
	Text  string
	Style tcell.Style
	// Cells is the number of screen columns the run covers.
	Cells int
}

// Line is one rendered grid row.
type Line []Run

// Text returns the concatenated run text.
func (l Line) Text() string {
	var b strings.Builder
	for _, r := range l {
		b.WriteString(r.Text)
	}
	return b.String()
}

// Renderer converts grid rows into runs and caches them by row index.
// It is not safe for concurrent use; call it from the goroutine that
// feeds the emulator.
type Renderer struct {
	styles *Styles
	cache  map[int]Line

	rows, cols int
	cursorRow  int
}

// New creates a renderer. A nil styles creates a private memo.
func New(styles *Styles) *Renderer {
	if styles == nil {
		styles = NewStyles()
	}
	return &Renderer{
		styles:    styles,
		cache:     make(map[int]Line),
		cursorRow: -1,
	}
}

// Styles returns the style memo.
func (r *Renderer) Styles() *Styles {
	return r.styles
}

// Row returns the runs for row y. When focused, the cell under a visible
// cursor is drawn reversed in a run of its own. The cursor row is never
// cached.
func (r *Renderer) Row(g *terminal.Grid, y int, focused bool) Line {
	r.checkSize(g)

	cx, cy := g.Cursor()
	r.cursorRow = cy
	if y != cy {
		if line, ok := r.cache[y]; ok {
			return line
		}
	}

	cursorX := -1
	if y == cy && focused && g.CursorVisible() {
		cursorX = cx
	}
	line := r.build(g.Row(y), cursorX)
	if y != cy {
		r.cache[y] = line
	}
	return line
}

func (r *Renderer) build(cells []terminal.Cell, cursorX int) Line {
	var (
		line  Line
		text  strings.Builder
		width int
		cur   StyleKey
		open  bool
	)
	flush := func() {
		if !open {
			return
		}
		line = append(line, Run{Text: text.String(), Style: r.styles.Get(cur), Cells: width})
		text.Reset()
		width = 0
		open = false
	}

	for x, c := range cells {
		if c.Width == 0 {
			continue
		}
		key := KeyOf(c)
		atCursor := x == cursorX
		if atCursor {
			key.Reverse = !key.Reverse
		}
		if open && (key != cur || atCursor) {
			flush()
		}
		ch := c.Rune
		if ch == 0 {
			ch = ' '
		}
		cur = key
		open = true
		text.WriteRune(ch)
		width += c.Width
		if atCursor {
			flush()
		}
	}
	flush()
	return line
}

func (r *Renderer) checkSize(g *terminal.Grid) {
	rows, cols := g.Size()
	if rows != r.rows || cols != r.cols {
		r.Reset()
		r.rows, r.cols = rows, cols
	}
}

// Invalidate drops the cached rows.
func (r *Renderer) Invalidate(rows []int) {
	for _, y := range rows {
		delete(r.cache, y)
	}
}

// InvalidateCursor drops the row that last held the cursor. Call it when
// focus changes.
func (r *Renderer) InvalidateCursor() {
	if r.cursorRow >= 0 {
		delete(r.cache, r.cursorRow)
	}
}

// Reset drops every cached row.
func (r *Renderer) Reset() {
	clear(r.cache)
}

// Cached reports whether row y is cached.
func (r *Renderer) Cached(y int) bool {
	_, ok := r.cache[y]
	return ok
}

// Draw invalidates the grid's dirty rows, clears its dirty set and paints
// every row onto screen. The caller calls screen.Show.
func (r *Renderer) Draw(screen tcell.Screen, g *terminal.Grid, focused bool) {
	r.checkSize(g)
	r.Invalidate(g.TakeDirty())

	rows, cols := g.Size()
	blank := r.styles.Get(StyleKey{Fg: "default", Bg: "default"})
	for y := 0; y < rows; y++ {
		x := 0
		for _, run := range r.Row(g, y, focused) {
			for _, ch := range run.Text {
				if x >= cols {
					break
				}
				screen.SetContent(x, y, ch, nil, run.Style)
				x += max(runewidth.RuneWidth(ch), 1)
			}
		}
		for ; x < cols; x++ {
			screen.SetContent(x, y, ' ', nil, blank)
		}
	}
	screen.HideCursor()
}
