package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-looper/export"
	"go-looper/looper"
	"go-looper/midi"
	"go-looper/theme"
	"go-looper/widgets"
)

const (
	barWidth    = 32
	callTimeout = 5 * time.Second
)

type Model struct {
	Engine    *looper.Engine
	Ports     *midi.PortManager // may be nil
	Theme     *theme.Theme
	ExportDir string

	loops    []looper.LoopSnapshot
	cursor   int
	delay    int // sync triggers to skip for the next synced transition
	status   string
	ports    []string
	fatal    error
	showHelp bool
	quitting bool
}

type UpdateMsg struct{}

type PortEventMsg midi.PortEvent

// FatalMsg reports that the engine stopped. The model shows it and quits.
type FatalMsg struct{ Err error }

type statusMsg string

func NewModel(e *looper.Engine, ports *midi.PortManager, th *theme.Theme, exportDir string) Model {
	return Model{
		Engine:    e,
		Ports:     ports,
		Theme:     th,
		ExportDir: exportDir,
	}
}

func ListenForUpdates(e *looper.Engine) tea.Cmd {
	return func() tea.Msg {
		<-e.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForPorts(pm *midi.PortManager) tea.Cmd {
	return func() tea.Msg {
		return PortEventMsg(<-pm.Events())
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{ListenForUpdates(m.Engine)}
	if m.Ports != nil {
		cmds = append(cmds, ListenForPorts(m.Ports))
	}
	return tea.Batch(cmds...)
}

// selected returns the loop under the cursor.
func (m Model) selected() (looper.LoopSnapshot, bool) {
	if m.cursor < 0 || m.cursor >= len(m.loops) {
		return looper.LoopSnapshot{}, false
	}
	return m.loops[m.cursor], true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case UpdateMsg:
		m.loops = m.Engine.Snapshot()
		m.cursor = min(m.cursor, max(len(m.loops)-1, 0))
		return m, ListenForUpdates(m.Engine)

	case FatalMsg:
		m.fatal = msg.Err
		return m, tea.Quit

	case PortEventMsg:
		ev := midi.PortEvent(msg)
		dir := "in"
		if ev.Out {
			dir = "out"
		}
		if ev.Type == midi.PortConnected {
			m.ports = append(m.ports, dir+":"+ev.Name)
		} else {
			m.ports = removeString(m.ports, dir+":"+ev.Name)
		}
		return m, ListenForPorts(m.Ports)

	case statusMsg:
		m.status = string(msg)
	}
	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	var err error
	s, ok := m.selected()

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp

	case "j", "down":
		m.cursor = min(m.cursor+1, max(len(m.loops)-1, 0))

	case "k", "up":
		m.cursor = max(m.cursor-1, 0)

	case "a":
		err = m.addLoop()

	case "r", "p", "s", "R", "P", "S":
		if !ok {
			break
		}
		t := looper.PlannedTransition{Mode: keyMode(key)}
		if strings.ToUpper(key) == key {
			t.Trigger = looper.OnSyncSourceWrap
			t.Delay = m.delay
		}
		err = m.Engine.PlanTransition(s.ID, t)

	case "c":
		if ok {
			err = m.Engine.ClearPlanned(s.ID)
		}

	case "+", "=":
		m.delay++

	case "-", "_":
		m.delay = max(m.delay-1, 0)

	case "y":
		// follow the loop above
		if ok && m.cursor > 0 {
			err = m.Engine.SetSyncSource(s.ID, m.loops[m.cursor-1].ID)
		}

	case "Y":
		if ok {
			err = m.Engine.SetSyncSource(s.ID, -1)
		}

	case "g":
		if ok {
			n := m.Engine.Config().RingBufferSamples()
			err = m.Engine.AdoptRingBuffer(s.ID, uint32(n))
		}

	case "0":
		if ok {
			err = m.Engine.SetPosition(s.ID, 0)
		}

	case "x":
		if ok {
			err = m.Engine.RemoveLoop(s.ID)
		}

	case "w":
		if ok {
			return m, m.save(s)
		}

	case "o":
		if ok {
			return m, m.load(s)
		}
	}

	if err != nil {
		m.status = err.Error()
	}
	return m, nil
}

func keyMode(key string) looper.Mode {
	switch strings.ToLower(key) {
	case "r":
		return looper.Recording
	case "p":
		return looper.Playing
	default:
		return looper.Stopped
	}
}

// addLoop creates a loop with one audio channel per input/output pair
// and a MIDI channel.
func (m Model) addLoop() error {
	id, err := m.Engine.AddLoop()
	if err != nil {
		return err
	}
	cfg := m.Engine.Config().Audio
	pairs := max(min(cfg.InputChannels, cfg.OutputChannels), 1)
	for i := 0; i < pairs; i++ {
		in := i
		if i >= cfg.InputChannels {
			in = -1
		}
		if err := m.Engine.AddAudioChannel(id, in, i); err != nil {
			return err
		}
	}
	return m.Engine.AddMIDIChannel(id)
}

func (m Model) save(s looper.LoopSnapshot) tea.Cmd {
	e, dir := m.Engine, m.ExportDir
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		paths, err := export.SaveLoop(ctx, e, s, dir)
		if err != nil {
			return statusMsg(fmt.Sprintf("save loop %d: %v", s.ID, err))
		}
		return statusMsg(fmt.Sprintf("saved %s", strings.Join(paths, ", ")))
	}
}

func (m Model) load(s looper.LoopSnapshot) tea.Cmd {
	e, dir := m.Engine, m.ExportDir
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		paths, err := export.LoadLoop(ctx, e, s, dir)
		if err != nil {
			return statusMsg(fmt.Sprintf("load loop %d: %v", s.ID, err))
		}
		if len(paths) == 0 {
			return statusMsg(fmt.Sprintf("nothing saved for loop %d in %s", s.ID, dir))
		}
		return statusMsg(fmt.Sprintf("loaded %s", strings.Join(paths, ", ")))
	}
}

func removeString(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

var keyHelp = []widgets.KeySection{
	{Title: "Loops", Keys: []widgets.KeyBinding{
		{Key: "a", Desc: "add loop"},
		{Key: "x", Desc: "remove loop"},
		{Key: "j/k", Desc: "select"},
		{Key: "0", Desc: "rewind"},
	}},
	{Title: "Transport", Keys: []widgets.KeyBinding{
		{Key: "r/p/s", Desc: "record/play/stop now"},
		{Key: "R/P/S", Desc: "record/play/stop on sync"},
		{Key: "+/-", Desc: "sync delay"},
		{Key: "c", Desc: "cancel planned"},
		{Key: "g", Desc: "grab pre-roll"},
	}},
	{Title: "Sync", Keys: []widgets.KeyBinding{
		{Key: "y", Desc: "follow loop above"},
		{Key: "Y", Desc: "clear sync"},
	}},
	{Title: "Files", Keys: []widgets.KeyBinding{
		{Key: "w", Desc: "save loop"},
		{Key: "o", Desc: "load loop"},
	}},
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	th := m.Theme
	headerStyle := lipgloss.NewStyle().Foreground(th.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())
	errStyle := lipgloss.NewStyle().Foreground(th.Warning())
	statusStyle := lipgloss.NewStyle().
		Foreground(th.FG()).
		Background(th.Surface()).
		Padding(0, 1)

	cfg := m.Engine.Config().Audio
	ports := "no MIDI"
	if len(m.ports) > 0 {
		ports = strings.Join(m.ports, " ")
	}
	header := headerStyle.Render(fmt.Sprintf("go-looper  %s %dHz/%d  delay:%d  %s",
		cfg.Backend, cfg.SampleRate, cfg.FramesPerBuffer, m.delay, ports))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")

	if m.fatal != nil {
		out.WriteString(errStyle.Render(fmt.Sprintf("ENGINE STOPPED: %v", m.fatal)))
		out.WriteString("\n\n")
	}

	if len(m.loops) == 0 {
		out.WriteString(dimStyle.Render("  no loops - press a to add one"))
		out.WriteString("\n")
	}
	for i, s := range m.loops {
		out.WriteString(widgets.RenderLoopRow(th, s, i == m.cursor, barWidth, cfg.SampleRate))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	if m.showHelp {
		out.WriteString(dimStyle.Render(widgets.RenderKeyHelp(keyHelp)))
	} else {
		out.WriteString(dimStyle.Render("a:add r/p/s:now R/P/S:synced y:sync g:grab w:save ?:help q:quit"))
	}

	if m.status != "" {
		out.WriteString("\n")
		out.WriteString(statusStyle.Render(m.status))
	}

	return out.String()
}
