package looper

import "testing"

func newLoop(mode Mode, length, position uint32) *Loop {
	l := NewLoop()
	l.mode = mode
	l.length = length
	l.position = position
	return l
}

func process(t *testing.T, n uint32, loops ...*Loop) {
	t.Helper()
	if err := ProcessLoops(loops, n); err != nil {
		t.Fatalf("ProcessLoops(%d): %v", n, err)
	}
}

func TestBasicSoftSync(t *testing.T) {
	b := newLoop(Playing, 100, 0)
	b.triggering = true

	a := newLoop(Stopped, 10, 0)
	a.SetSyncSource(b)
	a.PlanTransition(PlannedTransition{Mode: Playing, Trigger: OnSyncSourceWrap})

	a.HandleSync()

	if a.Mode() != Playing {
		t.Fatalf("a.Mode() = %v, want Playing", a.Mode())
	}
	if _, ok := a.Planned(); ok {
		t.Error("planned transition still pending after firing")
	}
}

func TestSyncWithOffsetRestart(t *testing.T) {
	b := newLoop(Playing, 100, 90)
	a := newLoop(Stopped, 100, 0)
	a.SetSyncSource(b)
	a.PlanTransition(PlannedTransition{Mode: Playing, Trigger: OnSyncSourceWrap})

	process(t, 20, a, b)

	if b.Position() != 10 || b.Mode() != Playing {
		t.Errorf("b: mode %v pos %d, want Playing pos 10", b.Mode(), b.Position())
	}
	if b.Triggering() {
		t.Error("b still triggering after the quantum")
	}
	if a.Mode() != Playing || a.Position() != 10 {
		t.Errorf("a: mode %v pos %d, want Playing pos 10", a.Mode(), a.Position())
	}
}

func TestPlayingLoopResyncsOnSourceWrap(t *testing.T) {
	b := newLoop(Playing, 150, 90)
	a := newLoop(Playing, 100, 90)
	a.SetSyncSource(b)

	process(t, 20, a, b)
	if b.Position() != 110 {
		t.Errorf("b.Position() = %d, want 110", b.Position())
	}
	if a.Position() != 100 {
		t.Errorf("a.Position() = %d, want 100 (waiting at end)", a.Position())
	}

	process(t, 50, a, b)
	if b.Position() != 10 {
		t.Errorf("b.Position() = %d, want 10", b.Position())
	}
	if a.Position() != 10 {
		t.Errorf("a.Position() = %d, want 10", a.Position())
	}
}

func TestSourceTriggerMidCycleDoesNotRestart(t *testing.T) {
	b := newLoop(Playing, 10, 5)
	a := newLoop(Playing, 100, 0)
	a.SetSyncSource(b)

	process(t, 20, a, b)

	if a.Position() != 20 {
		t.Errorf("a.Position() = %d, want 20", a.Position())
	}
	if b.Position() != 5 {
		t.Errorf("b.Position() = %d, want 5", b.Position())
	}
}

func TestWrapIdempotence(t *testing.T) {
	for _, length := range []uint32{1, 7, 64, 100, 4096} {
		for _, start := range []uint32{0, length / 2, length - 1} {
			for _, chunk := range []uint32{1, 13, 256} {
				l := newLoop(Playing, length, start)
				left := length
				for left > 0 {
					n := min(chunk, left)
					process(t, n, l)
					left -= n
				}
				if l.Position() != start {
					t.Errorf("length %d start %d chunk %d: position %d after one cycle",
						length, start, chunk, l.Position())
				}
			}
		}
	}
}

func TestWrapTriggersOnExactSample(t *testing.T) {
	l := newLoop(Playing, 10, 7)
	if poi, ok := l.NextPOI(); !ok || poi != 3 {
		t.Fatalf("NextPOI() = %d, %v; want 3, true", poi, ok)
	}
	l.Process(3)
	l.HandlePOI()
	if l.Position() != 0 || !l.Triggering() {
		t.Errorf("after wrap: pos %d triggering %v", l.Position(), l.Triggering())
	}
}

func TestRecordingGrowsThenPlays(t *testing.T) {
	l := NewLoop()
	l.SetMode(Recording)
	process(t, 100, l)
	process(t, 28, l)

	if l.Length() != 128 || l.Position() != 0 {
		t.Fatalf("recording: length %d pos %d, want 128 0", l.Length(), l.Position())
	}

	l.SetMode(Playing)
	if l.Position() != 0 || !l.Triggering() {
		t.Errorf("after record->play: pos %d triggering %v", l.Position(), l.Triggering())
	}
	process(t, 28, l)
	if l.Length() != 128 || l.Position() != 28 {
		t.Errorf("playing: length %d pos %d", l.Length(), l.Position())
	}
}

func TestRecordingResetsLoop(t *testing.T) {
	l := newLoop(Playing, 50, 20)
	l.SetMode(Recording)
	if l.Length() != 0 || l.Position() != 0 {
		t.Errorf("entering record: length %d pos %d, want 0 0", l.Length(), l.Position())
	}
}

func TestRecordLimitStopsRecording(t *testing.T) {
	l := NewLoop()
	l.SetMode(Recording)
	l.SetLength(64)

	process(t, 100, l)

	if l.Mode() != Playing {
		t.Fatalf("mode %v, want Playing", l.Mode())
	}
	if l.Length() != 64 {
		t.Errorf("length %d, want 64", l.Length())
	}
	if l.Position() != 36 {
		t.Errorf("position %d, want 36", l.Position())
	}
}

func TestPlayingToStoppedKeepsPosition(t *testing.T) {
	l := newLoop(Playing, 100, 0)
	process(t, 30, l)
	l.SetMode(Stopped)
	process(t, 30, l)
	if l.Position() != 30 {
		t.Errorf("position %d, want 30", l.Position())
	}
}

func TestSameModeTransitionIsNoop(t *testing.T) {
	l := newLoop(Playing, 100, 40)
	l.PlanTransition(PlannedTransition{Mode: Playing, Trigger: Immediate})

	process(t, 10, l)

	if l.Position() != 50 || l.Mode() != Playing {
		t.Errorf("mode %v pos %d, want Playing 50", l.Mode(), l.Position())
	}
	if _, ok := l.Planned(); ok {
		t.Error("planned transition was not consumed")
	}
}

func TestImmediateTransitionAtNextPOI(t *testing.T) {
	l := newLoop(Stopped, 100, 0)
	l.PlanTransition(PlannedTransition{Mode: Playing, Trigger: Immediate})

	if poi, ok := l.NextPOI(); !ok || poi != 0 {
		t.Fatalf("NextPOI() = %d, %v; want 0, true", poi, ok)
	}
	process(t, 10, l)
	if l.Mode() != Playing || l.Position() != 10 {
		t.Errorf("mode %v pos %d, want Playing 10", l.Mode(), l.Position())
	}
}

func TestSetModeClearsPlanned(t *testing.T) {
	l := newLoop(Stopped, 100, 0)
	l.PlanTransition(PlannedTransition{Mode: Recording, Trigger: OnSyncSourceWrap})
	l.SetMode(Playing)
	if _, ok := l.Planned(); ok {
		t.Error("SetMode left a planned transition")
	}
}

func TestPlannedDelaySkipsTriggers(t *testing.T) {
	b := newLoop(Playing, 10, 0)
	a := newLoop(Stopped, 10, 0)
	a.SetSyncSource(b)
	a.PlanTransition(PlannedTransition{Mode: Playing, Trigger: OnSyncSourceWrap, Delay: 2})

	process(t, 10, a, b) // b wraps once
	if a.Mode() != Stopped {
		t.Fatalf("fired after 1 trigger with delay 2")
	}
	process(t, 10, a, b)
	if a.Mode() != Stopped {
		t.Fatalf("fired after 2 triggers with delay 2")
	}
	process(t, 10, a, b)
	if a.Mode() != Playing || a.Position() != 0 {
		t.Errorf("after 3 triggers: mode %v pos %d, want Playing 0", a.Mode(), a.Position())
	}
}

func TestExpiredSourceResolvesImmediately(t *testing.T) {
	b := newLoop(Playing, 100, 0)
	a := newLoop(Stopped, 100, 0)
	a.SetSyncSource(b)
	a.PlanTransition(PlannedTransition{Mode: Playing, Trigger: OnSyncSourceWrap})

	b.removed = true
	if a.SyncSource() != nil {
		t.Fatal("removed source still resolved")
	}
	process(t, 5, a)
	if a.Mode() != Playing {
		t.Errorf("mode %v, want Playing", a.Mode())
	}
}

func TestSyncCycleMeansNoSync(t *testing.T) {
	a := newLoop(Playing, 10, 0)
	b := newLoop(Playing, 10, 0)
	a.SetSyncSource(b)
	b.SetSyncSource(a)

	if a.SyncSource() != nil || b.SyncSource() != nil {
		t.Fatal("cyclic chain resolved to a source")
	}

	// both behave as free-running loops
	process(t, 25, a, b)
	if a.Position() != 5 || b.Position() != 5 {
		t.Errorf("positions %d, %d; want 5, 5", a.Position(), b.Position())
	}
}

func TestSelfSyncMeansNoSync(t *testing.T) {
	a := newLoop(Playing, 10, 0)
	a.SetSyncSource(a)
	if a.SyncSource() != nil {
		t.Error("self sync resolved")
	}
}

func TestSyncChainDepthBound(t *testing.T) {
	chain := make([]*Loop, MaxSyncChainDepth+2)
	for i := range chain {
		chain[i] = NewLoop()
		if i > 0 {
			chain[i].SetSyncSource(chain[i-1])
		}
	}
	last := chain[len(chain)-1]
	if last.SyncSource() != nil {
		t.Error("chain deeper than the bound resolved")
	}
	short := chain[MaxSyncChainDepth-1]
	if short.SyncSource() != chain[MaxSyncChainDepth-2] {
		t.Error("chain within the bound did not resolve")
	}
}

func TestSetLengthClampsPosition(t *testing.T) {
	l := newLoop(Stopped, 100, 80)
	l.SetLength(50)
	if l.Position() != 50 {
		t.Errorf("position %d, want 50", l.Position())
	}
	l.SetMode(Playing)
	process(t, 5, l)
	if l.Position() != 5 {
		t.Errorf("position after wrap %d, want 5", l.Position())
	}
}

func TestEmptyPlayingLoopHasNoPOI(t *testing.T) {
	l := newLoop(Playing, 0, 0)
	if _, ok := l.NextPOI(); ok {
		t.Error("empty loop reported a POI")
	}
	process(t, 64, l)
	if l.Position() != 0 {
		t.Errorf("position %d, want 0", l.Position())
	}
}
