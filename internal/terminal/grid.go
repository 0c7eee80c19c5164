package terminal

import (
	"sort"
	"strings"
	"sync"

	"github.com/mattn/go-runewidth"
)

// Attr is a set of text attributes.
type Attr uint8

const (
	AttrBold Attr = 1 << iota
	AttrItalic
	AttrUnderline
	AttrStrike
	AttrReverse
)

// Has reports whether all of a are set.
func (s Attr) Has(a Attr) bool {
	return s&a == a
}

// Cell is one screen position. The right half of a wide rune is a cell
// with Width 0.
type Cell struct {
	Rune  rune
	Width int
	Fg    Color
	Bg    Color
	Attrs Attr
}

// Bold and friends read single attributes.
func (c Cell) Bold() bool      { return c.Attrs.Has(AttrBold) }
func (c Cell) Italic() bool    { return c.Attrs.Has(AttrItalic) }
func (c Cell) Underline() bool { return c.Attrs.Has(AttrUnderline) }
func (c Cell) Strike() bool    { return c.Attrs.Has(AttrStrike) }
func (c Cell) Reverse() bool   { return c.Attrs.Has(AttrReverse) }

var blank = Cell{Rune: ' ', Width: 1}

// pen is the style applied to newly written cells.
type pen struct {
	fg, bg Color
	attrs  Attr
}

type savedCursor struct {
	x, y int
	pen  pen
}

// Grid is a rows x cols screen with a cursor and a dirty-row set.
type Grid struct {
	mu sync.RWMutex

	rows, cols int
	cells      [][]Cell

	x, y          int
	cursorVisible bool
	autoWrap      bool

	top, bottom int // scroll region, inclusive

	pen   pen
	saved savedCursor

	dirty map[int]struct{}
}

// NewGrid creates a blank grid. Sizes below 1 are raised to 1.
func NewGrid(rows, cols int) *Grid {
	g := &Grid{dirty: make(map[int]struct{})}
	g.resize(rows, cols)
	g.reset()
	return g
}

// Size returns rows and columns.
func (g *Grid) Size() (rows, cols int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rows, g.cols
}

// Cursor returns the cursor column and row. A cursor parked past the last
// column after a write is reported on the last column.
func (g *Grid) Cursor() (x, y int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return min(g.x, g.cols-1), g.y
}

// CursorVisible reports the DECTCEM state.
func (g *Grid) CursorVisible() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cursorVisible
}

// Cell returns the cell at x, y, or a blank cell when out of range.
func (g *Grid) Cell(x, y int) Cell {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if y < 0 || y >= g.rows || x < 0 || x >= g.cols {
		return blank
	}
	return g.cells[y][x]
}

// Row returns a copy of row y.
func (g *Grid) Row(y int) []Cell {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if y < 0 || y >= g.rows {
		return nil
	}
	row := make([]Cell, g.cols)
	copy(row, g.cells[y])
	return row
}

// RowText returns row y as a string with trailing blanks removed.
func (g *Grid) RowText(y int) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if y < 0 || y >= g.rows {
		return ""
	}
	return rowText(g.cells[y])
}

func rowText(row []Cell) string {
	var b strings.Builder
	for _, c := range row {
		if c.Width == 0 {
			continue
		}
		b.WriteRune(c.Rune)
	}
	return strings.TrimRight(b.String(), " ")
}

// Text returns the screen as newline-separated rows, trailing blanks
// trimmed from each.
func (g *Grid) Text() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	lines := make([]string, g.rows)
	for y := range g.cells {
		lines[y] = rowText(g.cells[y])
	}
	return strings.Join(lines, "\n")
}

// Dirty returns the rows changed since the last ClearDirty, ascending.
func (g *Grid) Dirty() []int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rows := make([]int, 0, len(g.dirty))
	for y := range g.dirty {
		rows = append(rows, y)
	}
	sort.Ints(rows)
	return rows
}

// TakeDirty returns the dirty rows, ascending, and empties the set in the
// same critical section.
func (g *Grid) TakeDirty() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	rows := make([]int, 0, len(g.dirty))
	for y := range g.dirty {
		rows = append(rows, y)
	}
	clear(g.dirty)
	sort.Ints(rows)
	return rows
}

// ClearDirty empties the dirty set.
func (g *Grid) ClearDirty() {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.dirty)
}

// Resize changes the grid size, truncating or padding rows and columns,
// and marks every row dirty.
func (g *Grid) Resize(rows, cols int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resize(rows, cols)
}

// Reset clears the screen and restores all modes.
func (g *Grid) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reset()
}

func (g *Grid) resize(rows, cols int) {
	rows = max(rows, 1)
	cols = max(cols, 1)

	cells := make([][]Cell, rows)
	for y := range cells {
		row := make([]Cell, cols)
		n := 0
		if y < len(g.cells) {
			n = copy(row, g.cells[y])
		}
		for x := n; x < cols; x++ {
			row[x] = blank
		}
		// A wide rune cut in half by the new edge becomes a blank.
		if last := row[cols-1]; last.Width == 2 {
			row[cols-1] = blank
		}
		cells[y] = row
	}

	g.cells = cells
	g.rows, g.cols = rows, cols
	g.top, g.bottom = 0, rows-1
	g.x = min(g.x, cols-1)
	g.y = min(g.y, rows-1)
	g.saved.x = min(g.saved.x, cols-1)
	g.saved.y = min(g.saved.y, rows-1)
	g.markAll()
}

func (g *Grid) reset() {
	for y := range g.cells {
		g.clearRow(y, 0, g.cols)
	}
	g.x, g.y = 0, 0
	g.cursorVisible = true
	g.autoWrap = true
	g.top, g.bottom = 0, g.rows-1
	g.pen = pen{}
	g.saved = savedCursor{}
	g.markAll()
}

func (g *Grid) mark(y int) {
	g.dirty[y] = struct{}{}
}

func (g *Grid) markAll() {
	for y := 0; y < g.rows; y++ {
		g.dirty[y] = struct{}{}
	}
}

func (g *Grid) markRange(from, to int) {
	for y := from; y <= to; y++ {
		g.dirty[y] = struct{}{}
	}
}

// blankCell is an erased cell carrying the current background.
func (g *Grid) blankCell() Cell {
	c := blank
	c.Bg = g.pen.bg
	return c
}

func (g *Grid) clearRow(y, from, to int) {
	from = max(from, 0)
	to = min(to, g.cols)
	b := g.blankCell()
	for x := from; x < to; x++ {
		g.cells[y][x] = b
	}
	g.mark(y)
}

// put writes r at the cursor and advances it. A cursor parked past the last
// column wraps first when autowrap is on.
func (g *Grid) put(r rune) {
	w := runewidth.RuneWidth(r)
	if w == 0 {
		return
	}
	if w > 2 {
		w = 2
	}
	if w > g.cols {
		return
	}

	if g.x+w > g.cols {
		if g.autoWrap {
			g.x = 0
			g.lineFeed()
		} else {
			g.x = g.cols - w
		}
	}

	g.fixWideAt(g.x)
	if w == 2 {
		g.fixWideAt(g.x + 1)
	}
	cell := Cell{Rune: r, Width: w, Fg: g.pen.fg, Bg: g.pen.bg, Attrs: g.pen.attrs}
	g.cells[g.y][g.x] = cell
	if w == 2 {
		cell.Rune, cell.Width = 0, 0
		g.cells[g.y][g.x+1] = cell
	}
	g.mark(g.y)
	g.x += w
}

// fixWideAt blanks the other half of a wide rune about to be overwritten
// at column x.
func (g *Grid) fixWideAt(x int) {
	row := g.cells[g.y]
	switch {
	case row[x].Width == 0 && x > 0:
		row[x-1] = g.blankCell()
	case row[x].Width == 2 && x+1 < g.cols:
		row[x+1] = g.blankCell()
	}
}

func (g *Grid) moveTo(x, y int) {
	g.x = clamp(x, 0, g.cols-1)
	g.y = clamp(y, 0, g.rows-1)
}

func (g *Grid) moveBy(dx, dy int) {
	x := min(g.x, g.cols-1)
	g.moveTo(x+dx, g.y+dy)
}

func (g *Grid) carriageReturn() {
	g.x = 0
}

func (g *Grid) backspace() {
	if g.x > 0 {
		g.x = min(g.x, g.cols) - 1
	}
}

func (g *Grid) tab() {
	next := (min(g.x, g.cols-1)/8 + 1) * 8
	g.x = min(next, g.cols-1)
}

func (g *Grid) lineFeed() {
	if g.y == g.bottom {
		g.scrollUp(1)
		return
	}
	if g.y < g.rows-1 {
		g.y++
	}
}

func (g *Grid) reverseLineFeed() {
	if g.y == g.top {
		g.scrollDown(1)
		return
	}
	if g.y > 0 {
		g.y--
	}
}

// scrollUp moves the scroll region's content up n rows.
func (g *Grid) scrollUp(n int) {
	g.scrollRegionUp(g.top, n)
}

func (g *Grid) scrollRegionUp(top, n int) {
	size := g.bottom - top + 1
	if n <= 0 || size <= 0 {
		return
	}
	n = min(n, size)
	copy(g.cells[top:g.bottom+1], g.cells[top+n:g.bottom+1])
	for y := g.bottom - n + 1; y <= g.bottom; y++ {
		g.cells[y] = g.newRow()
	}
	g.markRange(top, g.bottom)
}

func (g *Grid) scrollDown(n int) {
	g.scrollRegionDown(g.top, n)
}

func (g *Grid) scrollRegionDown(top, n int) {
	size := g.bottom - top + 1
	if n <= 0 || size <= 0 {
		return
	}
	n = min(n, size)
	copy(g.cells[top+n:g.bottom+1], g.cells[top:g.bottom+1-n])
	for y := top; y < top+n; y++ {
		g.cells[y] = g.newRow()
	}
	g.markRange(top, g.bottom)
}

func (g *Grid) newRow() []Cell {
	row := make([]Cell, g.cols)
	b := g.blankCell()
	for x := range row {
		row[x] = b
	}
	return row
}

func (g *Grid) setScrollRegion(top, bottom int) {
	top = max(top, 0)
	bottom = min(bottom, g.rows-1)
	if top >= bottom {
		return
	}
	g.top, g.bottom = top, bottom
	g.x, g.y = 0, 0
}

// eraseDisplay implements ED: 0 below, 1 above, 2 and 3 all.
func (g *Grid) eraseDisplay(mode int) {
	x := min(g.x, g.cols-1)
	switch mode {
	case 0:
		g.clearRow(g.y, x, g.cols)
		for y := g.y + 1; y < g.rows; y++ {
			g.clearRow(y, 0, g.cols)
		}
	case 1:
		for y := 0; y < g.y; y++ {
			g.clearRow(y, 0, g.cols)
		}
		g.clearRow(g.y, 0, x+1)
	case 2, 3:
		for y := 0; y < g.rows; y++ {
			g.clearRow(y, 0, g.cols)
		}
	}
}

// eraseLine implements EL: 0 right, 1 left, 2 whole line.
func (g *Grid) eraseLine(mode int) {
	x := min(g.x, g.cols-1)
	switch mode {
	case 0:
		g.clearRow(g.y, x, g.cols)
	case 1:
		g.clearRow(g.y, 0, x+1)
	case 2:
		g.clearRow(g.y, 0, g.cols)
	}
}

func (g *Grid) eraseChars(n int) {
	x := min(g.x, g.cols-1)
	g.clearRow(g.y, x, x+n)
}

func (g *Grid) insertLines(n int) {
	if g.y < g.top || g.y > g.bottom {
		return
	}
	g.scrollRegionDown(g.y, n)
	g.x = 0
}

func (g *Grid) deleteLines(n int) {
	if g.y < g.top || g.y > g.bottom {
		return
	}
	g.scrollRegionUp(g.y, n)
	g.x = 0
}

func (g *Grid) insertChars(n int) {
	x := min(g.x, g.cols-1)
	n = min(n, g.cols-x)
	if n <= 0 {
		return
	}
	row := g.cells[g.y]
	copy(row[x+n:], row[x:g.cols-n])
	g.clearRow(g.y, x, x+n)
}

func (g *Grid) deleteChars(n int) {
	x := min(g.x, g.cols-1)
	n = min(n, g.cols-x)
	if n <= 0 {
		return
	}
	row := g.cells[g.y]
	copy(row[x:], row[x+n:])
	g.clearRow(g.y, g.cols-n, g.cols)
}

func (g *Grid) saveCursor() {
	g.saved = savedCursor{x: min(g.x, g.cols-1), y: g.y, pen: g.pen}
}

func (g *Grid) restoreCursor() {
	g.x, g.y = g.saved.x, g.saved.y
	g.pen = g.saved.pen
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
