package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-looper/looper"
	"go-looper/theme"
)

// RenderProgress renders a width-cell bar filled to progress (0-1)
func RenderProgress(th *theme.Theme, width int, progress float64, color lipgloss.Color) string {
	if width <= 0 {
		return ""
	}
	progress = min(max(progress, 0), 1)
	filled := int(progress * float64(width))

	var bar strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i < filled:
			bar.WriteRune(th.Symbols.BarFull)
		case i == filled && progress > 0:
			bar.WriteRune(th.Symbols.BarHead)
		default:
			bar.WriteRune(th.Symbols.BarEmpty)
		}
	}
	return lipgloss.NewStyle().Foreground(color).Render(bar.String())
}

// FormatDuration renders a sample count as seconds, e.g. "3.25s"
func FormatDuration(samples uint32, sampleRate int) string {
	if sampleRate <= 0 {
		return fmt.Sprintf("%d", samples)
	}
	return fmt.Sprintf("%.2fs", float64(samples)/float64(sampleRate))
}

// RenderLoopRow renders one loop: cursor, mode, id, bar, length, sync
// source and pending transition.
func RenderLoopRow(th *theme.Theme, s looper.LoopSnapshot, selected bool, barWidth, sampleRate int) string {
	modeStyle := lipgloss.NewStyle().Foreground(th.ModeColor(s.Mode))
	dim := lipgloss.NewStyle().Foreground(th.Muted())

	cursor := " "
	if selected {
		cursor = lipgloss.NewStyle().Foreground(th.Cursor()).Render(string(th.Symbols.Cursor))
	}

	trig := " "
	if s.Triggering {
		trig = lipgloss.NewStyle().Foreground(th.Warning()).Render(string(th.Symbols.Trigger))
	}

	sync := dim.Render("   ")
	if s.SyncID >= 0 {
		sync = fmt.Sprintf("%c%-2d", th.Symbols.Synced, s.SyncID)
	}

	planned := ""
	if s.HasPlanned {
		planned = fmt.Sprintf(" %c %s %s", th.Symbols.Planned, s.Planned.Mode, s.Planned.Trigger)
		if s.Planned.Delay > 0 {
			planned += fmt.Sprintf("+%d", s.Planned.Delay)
		}
		planned = lipgloss.NewStyle().Foreground(th.Accent()).Render(planned)
	}

	chans := dim.Render(fmt.Sprintf("a%d m%d", s.AudioChannels, s.MIDIChannels))

	return fmt.Sprintf("%s %s %-2d %-9s %s %8s %s %s%s%s",
		cursor,
		modeStyle.Render(string(th.ModeSymbol(s.Mode))),
		s.ID,
		modeStyle.Render(s.Mode.String()),
		RenderProgress(th, barWidth, s.Progress(), th.ModeColor(s.Mode)),
		FormatDuration(s.Length, sampleRate),
		chans,
		sync,
		trig,
		planned,
	)
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
