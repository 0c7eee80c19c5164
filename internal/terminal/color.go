package terminal

import "fmt"

// ColorMode says how a Color is specified.
type ColorMode uint8

const (
	ColorDefault ColorMode = iota
	ColorIndexed
	ColorRGB
)

// Color is a cell color. The zero value is the terminal default.
type Color struct {
	Mode    ColorMode
	Index   uint8
	R, G, B uint8
}

// DefaultColor is the terminal's default foreground or background.
var DefaultColor = Color{}

// Indexed returns palette color i, clamped to 0-255.
func Indexed(i int) Color {
	if i < 0 {
		i = 0
	}
	if i > 255 {
		i = 255
	}
	return Color{Mode: ColorIndexed, Index: uint8(i)}
}

// RGB returns a truecolor value.
func RGB(r, g, b uint8) Color {
	return Color{Mode: ColorRGB, R: r, G: g, B: b}
}

// ColorNames are the names of the 16 base palette entries.
var ColorNames = [16]string{
	"black", "red", "green", "yellow", "blue", "magenta", "cyan", "white",
	"brightblack", "brightred", "brightgreen", "brightyellow",
	"brightblue", "brightmagenta", "brightcyan", "brightwhite",
}

// cubeLevels are the xterm 6x6x6 cube intensities.
var cubeLevels = [6]uint8{0, 95, 135, 175, 215, 255}

// Name returns "default", a palette name for the first 16 colors, or a
// "#rrggbb" hex string.
func (c Color) Name() string {
	switch c.Mode {
	case ColorDefault:
		return "default"
	case ColorIndexed:
		if c.Index < 16 {
			return ColorNames[c.Index]
		}
		r, g, b := paletteRGB(c.Index)
		return hex(r, g, b)
	default:
		return hex(c.R, c.G, c.B)
	}
}

func hex(r, g, b uint8) string {
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

// paletteRGB converts an extended palette index (16-255) to RGB.
func paletteRGB(i uint8) (uint8, uint8, uint8) {
	if i >= 232 {
		v := 8 + 10*(i-232)
		return v, v, v
	}
	n := int(i) - 16
	return cubeLevels[n/36], cubeLevels[(n/6)%6], cubeLevels[n%6]
}
