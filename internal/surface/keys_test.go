package surface

import (
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
)

func TestSequence(t *testing.T) {
	tests := []struct {
		key  Key
		want string
	}{
		{Rune('x'), "x"},
		{Rune('é'), "é"},
		{Key{Code: KeyEnter}, "\r"},
		{Key{Code: KeyTab}, "\t"},
		{Key{Code: KeyBackspace}, "\x7f"},
		{Key{Code: KeyUp}, "\x1b[A"},
		{Key{Code: KeyLeft}, "\x1b[D"},
		{Key{Code: KeyHome}, "\x1b[H"},
		{Key{Code: KeyEnd}, "\x1b[F"},
		{Key{Code: KeyDelete}, "\x1b[3~"},
		{Key{Code: KeyPageDown}, "\x1b[6~"},
		{Key{Code: KeyF1}, "\x1bOP"},
		{Key{Code: KeyF5}, "\x1b[15~"},
		{Key{Code: KeyF12}, "\x1b[24~"},
		{Ctrl('a'), "\x01"},
		{Ctrl('C'), "\x03"},
		{Ctrl('z'), "\x1a"},
		{Ctrl('1'), ""},
		{Key{Code: KeyEscape}, ""},
		{Key{}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sequence(tt.key), "key %+v", tt.key)
	}
}

func TestKeyFromEvent(t *testing.T) {
	tests := []struct {
		ev   *tcell.EventKey
		want Key
	}{
		{tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone), Rune('q')},
		{tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone), Key{Code: KeyEnter}},
		{tcell.NewEventKey(tcell.KeyBackspace2, 0, tcell.ModNone), Key{Code: KeyBackspace}},
		{tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone), Key{Code: KeyEscape}},
		{tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModNone), Key{Code: KeyDown}},
		{tcell.NewEventKey(tcell.KeyPgUp, 0, tcell.ModNone), Key{Code: KeyPageUp}},
		{tcell.NewEventKey(tcell.KeyF7, 0, tcell.ModNone), Key{Code: KeyF7}},
		{tcell.NewEventKey(tcell.KeyCtrlR, 0, tcell.ModCtrl), Ctrl('r')},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KeyFromEvent(tt.ev), "event %v", tt.ev.Name())
	}
}
