package export

import (
	"context"
	"testing"
	"time"

	"go-looper/config"
	"go-looper/debug"
	"go-looper/looper"
	"go-looper/midi"
)

// pump runs quanta until stop is closed so blocking engine calls complete.
func pump(e *looper.Engine, stop <-chan struct{}) {
	out := make([]float32, 16)
	p := looper.Ports{AudioOut: [][]float32{out}}
	for {
		select {
		case <-stop:
			return
		default:
			e.Process(&p, 16)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestSaveAndLoadLoop(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Audio.SampleRate = 8000
	cfg.Audio.OutputChannels = 1
	cfg.Engine.PoolBufferSize = 64
	cfg.Engine.PoolBuffers = 32
	cfg.Engine.PoolLowWater = 0
	cfg.Engine.MaxChannelBuffers = 8
	cfg.Engine.MaxMIDIEvents = 16
	e := looper.NewEngine(cfg, debug.Discard())

	stop := make(chan struct{})
	defer close(stop)
	go pump(e, stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := e.AddLoop()
	if err != nil {
		t.Fatal(err)
	}
	if err := e.AddAudioChannel(id, -1, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.AddMIDIChannel(id); err != nil {
		t.Fatal(err)
	}
	if err := e.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	samples := []float32{0, 0.25, 0.5, -0.5}
	audio := looper.ChannelRef{Loop: id, Channel: 0}
	notes := looper.ChannelRef{Loop: id, Channel: 1}
	if err := e.SetAudioContents(ctx, audio, samples); err != nil {
		t.Fatal(err)
	}
	if err := e.SetMIDIContents(ctx, notes, []midi.Message{midi.NewMessage(0, []byte{midi.NoteOn, 60, 100})}); err != nil {
		t.Fatal(err)
	}
	if err := e.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	var snap looper.LoopSnapshot
	for _, s := range e.Snapshot() {
		if s.ID == id {
			snap = s
		}
	}
	if len(snap.ChannelKinds()) != 2 {
		t.Fatalf("snapshot channels %v", snap.ChannelKinds())
	}

	dir := t.TempDir()
	paths, err := SaveLoop(ctx, e, snap, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 || paths[0] != ChannelPath(dir, audio, looper.AudioKind) {
		t.Fatalf("saved %v", paths)
	}

	if err := e.SetAudioContents(ctx, audio, []float32{1}); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLoop(ctx, e, snap, dir); err != nil {
		t.Fatal(err)
	}
	got, _, err := e.AudioContents(ctx, audio)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(samples) {
		t.Fatalf("reloaded %v", got)
	}
	for i := range samples {
		if d := got[i] - samples[i]; d > 1e-3 || d < -1e-3 {
			t.Errorf("sample %d = %v, want %v", i, got[i], samples[i])
		}
	}
	msgs, err := e.MIDIContents(ctx, notes)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || !midi.IsNoteOn(msgs[0]) {
		t.Errorf("reloaded MIDI %v", msgs)
	}
}

func TestLoopWindow(t *testing.T) {
	samples := []float32{9, 9, 9, 1, 2, 3, 4, 5}
	tests := []struct {
		name   string
		start  int
		length uint32
		want   []float32
	}{
		{"skips pre-roll", 3, 4, []float32{1, 2, 3, 4}},
		{"no length set", 3, 0, []float32{1, 2, 3, 4, 5}},
		{"length past the data", 3, 40, []float32{1, 2, 3, 4, 5}},
		{"start past the data", 12, 4, []float32{}},
		{"negative start", -2, 2, []float32{9, 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := loopWindow(samples, tt.start, tt.length)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestToMonoResamples(t *testing.T) {
	a := Audio{Samples: []float32{1, 0, 1, 0}, Channels: 2, SampleRate: 4000}
	mono := ToMono(a, 8000)
	if len(mono) != 4 {
		t.Fatalf("len = %d, want 4", len(mono))
	}
	for _, v := range mono {
		if v != 0.5 {
			t.Errorf("mono = %v, want all 0.5", mono)
			break
		}
	}
}
