package renderer

import (
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/spencer-dollahite/clitutor/internal/terminal"
)

// Default colors used when a cell carries the terminal default.
const (
	DefaultForeground = "white"
	DefaultBackground = "black"
)

// StyleKey identifies a cell style.
type StyleKey struct {
	Fg, Bg    string
	Bold      bool
	Italic    bool
	Underline bool
	Strike    bool
	Reverse   bool
}

// KeyOf returns the style key of a grid cell.
func KeyOf(c terminal.Cell) StyleKey {
	return StyleKey{
		Fg:        c.Fg.Name(),
		Bg:        c.Bg.Name(),
		Bold:      c.Bold(),
		Italic:    c.Italic(),
		Underline: c.Underline(),
		Strike:    c.Strike(),
		Reverse:   c.Reverse(),
	}
}

var colorTable = sync.OnceValue(func() map[string]tcell.Color {
	m := make(map[string]tcell.Color, len(terminal.ColorNames))
	for i, name := range terminal.ColorNames {
		m[name] = tcell.PaletteColor(i)
	}
	return m
})

// ColorByName resolves a palette name ("red", "brightblue") or a "#rrggbb"
// string. It reports false for "default" and anything it does not know.
func ColorByName(name string) (tcell.Color, bool) {
	if c, ok := colorTable()[name]; ok {
		return c, true
	}
	if strings.HasPrefix(name, "#") && len(name) == 7 {
		c := tcell.GetColor(name)
		if c != tcell.ColorDefault {
			return c, true
		}
	}
	return tcell.ColorDefault, false
}

func resolve(name, fallback string) tcell.Color {
	if c, ok := ColorByName(name); ok {
		return c
	}
	c, _ := ColorByName(fallback)
	return c
}

// Styles memoizes tcell styles by StyleKey. It is safe for concurrent use.
type Styles struct {
	mu    sync.Mutex
	cache map[StyleKey]tcell.Style
}

// NewStyles creates an empty style memo.
func NewStyles() *Styles {
	return &Styles{cache: make(map[StyleKey]tcell.Style)}
}

// Get returns the tcell style for key. Reverse swaps the resolved colors.
func (s *Styles) Get(key StyleKey) tcell.Style {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.cache[key]; ok {
		return st
	}

	fg := resolve(key.Fg, DefaultForeground)
	bg := resolve(key.Bg, DefaultBackground)
	if key.Reverse {
		fg, bg = bg, fg
	}
	st := tcell.StyleDefault.
		Foreground(fg).
		Background(bg).
		Bold(key.Bold).
		Italic(key.Italic).
		Underline(key.Underline).
		StrikeThrough(key.Strike)

	s.cache[key] = st
	return st
}

// Len returns the number of memoized styles.
func (s *Styles) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}
