package surface

import (
	"unicode"

	"github.com/gdamore/tcell/v2"
)

// KeyCode identifies a key the surface understands.
type KeyCode int

const (
	KeyNone KeyCode = iota
	KeyRune
	KeyEnter
	KeyBackspace
	KeyTab
	KeyEscape
	KeyUp
	KeyDown
	KeyRight
	KeyLeft
	KeyHome
	KeyEnd
	KeyInsert
	KeyDelete
	KeyPageUp
	KeyPageDown
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
	// KeyCtrl is Ctrl plus the lowercase letter in Rune.
	KeyCtrl
)

// Key is one key press.
type Key struct {
	Code KeyCode
	Rune rune
}

// Rune returns a printable character key.
func Rune(r rune) Key { return Key{Code: KeyRune, Rune: r} }

// Ctrl returns Ctrl plus letter.
func Ctrl(letter rune) Key { return Key{Code: KeyCtrl, Rune: unicode.ToLower(letter)} }

var keySequences = map[KeyCode]string{
	KeyUp:        "\x1b[A",
	KeyDown:      "\x1b[B",
	KeyRight:     "\x1b[C",
	KeyLeft:      "\x1b[D",
	KeyHome:      "\x1b[H",
	KeyEnd:       "\x1b[F",
	KeyInsert:    "\x1b[2~",
	KeyDelete:    "\x1b[3~",
	KeyPageUp:    "\x1b[5~",
	KeyPageDown:  "\x1b[6~",
	KeyF1:        "\x1bOP",
	KeyF2:        "\x1bOQ",
	KeyF3:        "\x1bOR",
	KeyF4:        "\x1bOS",
	KeyF5:        "\x1b[15~",
	KeyF6:        "\x1b[17~",
	KeyF7:        "\x1b[18~",
	KeyF8:        "\x1b[19~",
	KeyF9:        "\x1b[20~",
	KeyF10:       "\x1b[21~",
	KeyF11:       "\x1b[23~",
	KeyF12:       "\x1b[24~",
	KeyTab:       "\t",
	KeyEnter:     "\r",
	KeyBackspace: "\x7f",
}

// Sequence returns the bytes a terminal sends for k, or "" when k sends
// nothing on its own.
func Sequence(k Key) string {
	switch k.Code {
	case KeyRune:
		return string(k.Rune)
	case KeyCtrl:
		if b, ok := ctrlByte(k.Rune); ok {
			return string([]byte{b})
		}
		return ""
	}
	return keySequences[k.Code]
}

func ctrlByte(letter rune) (byte, bool) {
	letter = unicode.ToLower(letter)
	if letter < 'a' || letter > 'z' {
		return 0, false
	}
	return byte(letter-'a') + 1, true
}

// KeyFromEvent converts a tcell key event.
func KeyFromEvent(ev *tcell.EventKey) Key {
	switch ev.Key() {
	case tcell.KeyRune:
		if ev.Modifiers()&tcell.ModCtrl != 0 {
			return Ctrl(ev.Rune())
		}
		return Rune(ev.Rune())
	case tcell.KeyEscape:
		return Key{Code: KeyEscape}
	case tcell.KeyEnter:
		return Key{Code: KeyEnter}
	case tcell.KeyTab:
		return Key{Code: KeyTab}
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return Key{Code: KeyBackspace}
	case tcell.KeyDelete:
		return Key{Code: KeyDelete}
	case tcell.KeyInsert:
		return Key{Code: KeyInsert}
	case tcell.KeyHome:
		return Key{Code: KeyHome}
	case tcell.KeyEnd:
		return Key{Code: KeyEnd}
	case tcell.KeyPgUp:
		return Key{Code: KeyPageUp}
	case tcell.KeyPgDn:
		return Key{Code: KeyPageDown}
	case tcell.KeyUp:
		return Key{Code: KeyUp}
	case tcell.KeyDown:
		return Key{Code: KeyDown}
	case tcell.KeyLeft:
		return Key{Code: KeyLeft}
	case tcell.KeyRight:
		return Key{Code: KeyRight}
	}

	k := ev.Key()
	if k >= tcell.KeyF1 && k <= tcell.KeyF12 {
		return Key{Code: KeyF1 + KeyCode(k-tcell.KeyF1)}
	}
	if k >= tcell.KeyCtrlA && k <= tcell.KeyCtrlZ {
		return Ctrl('a' + rune(k-tcell.KeyCtrlA))
	}
	return Key{}
}
