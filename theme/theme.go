package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"go-looper/looper"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// Progress bar
	BarFull  rune // █ played
	BarEmpty rune // ░ remaining
	BarHead  rune // ▌ playhead

	// Loop modes
	Stopped   rune // ■
	Playing   rune // ▶
	Recording rune // ●

	Planned rune // ◷ transition waiting for its trigger
	Trigger rune // ◆ wrapped this quantum
	Synced  rune // ⇢ follows another loop
	Cursor  rune // ▸ selected row
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			BarFull:  '█',
			BarEmpty: '░',
			BarHead:  '▌',

			Stopped:   '■',
			Playing:   '▶',
			Recording: '●',

			Planned: '◷',
			Trigger: '◆',
			Synced:  '⇢',
			Cursor:  '▸',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0 // deep purple
	RoleSurface = 0.1 // dark purple
	RoleMuted   = 0.2 // purple-magenta
	RoleFG      = 0.4 // pink-purple (readable)
	RoleAccent  = 0.5 // vivid magenta
	RoleCursor  = 0.6 // rose pink
	RoleActive  = 0.7 // soft red
	RoleWarning = 0.8 // orange
	RoleSuccess = 1.0 // bright yellow
)

// Style helpers

func (t *Theme) BG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleBG))
}

func (t *Theme) Surface() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleSurface))
}

func (t *Theme) FG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleFG))
}

func (t *Theme) Accent() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleAccent))
}

func (t *Theme) Muted() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleMuted))
}

func (t *Theme) Active() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleActive))
}

func (t *Theme) Cursor() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleCursor))
}

func (t *Theme) Warning() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleWarning))
}

func (t *Theme) Success() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleSuccess))
}

// ModeColor returns the color a loop in mode m is drawn with.
func (t *Theme) ModeColor(m looper.Mode) lipgloss.Color {
	switch m {
	case looper.Recording:
		return t.Active()
	case looper.Playing:
		return t.Success()
	default:
		return t.Muted()
	}
}

// ModeSymbol returns the glyph for mode m.
func (t *Theme) ModeSymbol(m looper.Mode) rune {
	switch m {
	case looper.Recording:
		return t.Symbols.Recording
	case looper.Playing:
		return t.Symbols.Playing
	default:
		return t.Symbols.Stopped
	}
}

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(norm))
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
