// Package renderer turns a terminal.Grid into styled rows for a tcell screen.
//
// Two caches keep redraws cheap:
//
//   - Styles memoizes tcell styles by the (fg, bg, bold, italic, underline,
//     strike, reverse) tuple. A screen rarely holds more than a few dozen
//     distinct styles.
//   - Renderer keeps the built Line for every row except the cursor row.
//     Rows are rebuilt only after the grid reports them dirty, after
//     InvalidateCursor, or after Reset.
//
// Usage:
//
//	r := renderer.New(nil)
//	r.Draw(screen, emu.Grid(), focused)
//	screen.Show()
package renderer
