// Package terminal implements the VT emulation behind the interactive
// surface: a byte-stream parser that drives a fixed-size Grid of styled
// cells.
//
// Supported: cursor movement, erase, insert and delete of lines and
// characters, scroll regions, SGR attributes with 16, 256 and truecolor
// palettes, saved cursors, autowrap, cursor visibility and the alternate
// screen (treated as a clear). There is no scrollback and no mouse
// reporting.
//
// The Grid records which rows changed so a renderer only repaints those.
// All mutation happens under the Grid's lock inside Emulator.Write, so a
// renderer on another goroutine always sees a consistent screen.
package terminal
