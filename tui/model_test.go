package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"go-looper/config"
	"go-looper/debug"
	"go-looper/looper"
	"go-looper/theme"
)

type rig struct {
	t     *testing.T
	m     Model
	ports looper.Ports
}

func newRig(t *testing.T) *rig {
	cfg := config.DefaultConfig()
	cfg.Audio.Backend = config.BackendOffline
	cfg.Audio.SampleRate = 1000
	cfg.Audio.FramesPerBuffer = 16
	cfg.Audio.InputChannels = 1
	cfg.Audio.OutputChannels = 1
	cfg.Engine.RingBufferSeconds = 0.1
	cfg.Engine.PoolBufferSize = 16
	cfg.Engine.PoolBuffers = 32
	cfg.Engine.PoolLowWater = 0
	cfg.Engine.MaxChannelBuffers = 16
	cfg.Engine.MaxMIDIEvents = 16
	e := looper.NewEngine(cfg, debug.Discard())
	return &rig{
		t: t,
		m: NewModel(e, nil, theme.New(theme.Plasma()), t.TempDir()),
		ports: looper.Ports{
			AudioIn:  [][]float32{make([]float32, 16)},
			AudioOut: [][]float32{make([]float32, 16)},
		},
	}
}

func (r *rig) key(k string) {
	r.t.Helper()
	model, _ := r.m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
	r.m = model.(Model)
	if r.m.status != "" {
		r.t.Fatalf("key %q: %s", k, r.m.status)
	}
}

// quantum processes one quantum and delivers the UI update.
func (r *rig) quantum() {
	r.t.Helper()
	if err := r.m.Engine.Process(&r.ports, 16); err != nil {
		r.t.Fatal(err)
	}
	model, _ := r.m.Update(UpdateMsg{})
	r.m = model.(Model)
}

func TestAddAndRecord(t *testing.T) {
	r := newRig(t)
	r.key("a")
	r.quantum()
	if len(r.m.loops) != 1 {
		t.Fatalf("loops = %d, want 1", len(r.m.loops))
	}
	s := r.m.loops[0]
	if s.AudioChannels != 1 || s.MIDIChannels != 1 {
		t.Errorf("channels a%d m%d, want a1 m1", s.AudioChannels, s.MIDIChannels)
	}

	r.key("r")
	r.quantum()
	if got := r.m.loops[0].Mode; got != looper.Recording {
		t.Errorf("mode = %v, want Recording", got)
	}
	if !strings.Contains(r.m.View(), "Recording") {
		t.Error("view does not show the recording loop")
	}
}

func TestSyncedTransitionUsesDelay(t *testing.T) {
	r := newRig(t)
	r.key("a")
	r.key("a")
	r.quantum()
	r.key("j")
	r.key("y")
	r.key("+")
	r.key("P")
	r.quantum()

	s := r.m.loops[1]
	if s.SyncID != r.m.loops[0].ID {
		t.Errorf("SyncID = %d, want %d", s.SyncID, r.m.loops[0].ID)
	}
	if !s.HasPlanned || s.Planned.Trigger != looper.OnSyncSourceWrap || s.Planned.Delay != 1 {
		t.Errorf("planned %+v, want a synced play with delay 1", s.Planned)
	}
}

func TestCursorStaysInRange(t *testing.T) {
	r := newRig(t)
	r.key("j")
	r.key("k")
	if r.m.cursor != 0 {
		t.Errorf("cursor = %d with no loops", r.m.cursor)
	}
	r.key("a")
	r.quantum()
	r.key("x")
	r.quantum()
	if len(r.m.loops) != 0 || r.m.cursor != 0 {
		t.Errorf("after remove: %d loops, cursor %d", len(r.m.loops), r.m.cursor)
	}
	if !strings.Contains(r.m.View(), "no loops") {
		t.Error("empty view missing hint")
	}
}

func TestFatalShown(t *testing.T) {
	r := newRig(t)
	short := looper.Ports{AudioOut: [][]float32{make([]float32, 2)}}
	err := r.m.Engine.Process(&short, 16)
	model, _ := r.m.Update(FatalMsg{Err: err})
	r.m = model.(Model)
	if !strings.Contains(r.m.View(), "ENGINE STOPPED") {
		t.Error("fatal error not shown")
	}
}
