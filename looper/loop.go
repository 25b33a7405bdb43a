package looper

import "weak"

const (
	// MaxSyncChainDepth bounds how far a sync chain is followed. Longer
	// chains, and chains that come back to the loop, count as no sync.
	MaxSyncChainDepth = 16

	// MaxChannelsPerLoop is the channel capacity reserved per loop.
	MaxChannelsPerLoop = 16
)

// Loop is one looping track: a mode, a position within a length, an
// optional planned transition and an optional sync source. It owns its
// channels but not its sync source.
//
// A loop is mutated by the scheduler (Process, HandlePOI, HandleSync)
// and by the control setters; both must run on the same goroutine.
type Loop struct {
	id       int
	mode     Mode
	position uint32
	length   uint32

	// recording stops growing at recordLimit when non-zero
	recordLimit uint32

	planned    PlannedTransition
	hasPlanned bool

	sync    weak.Pointer[Loop]
	hasSync bool
	removed bool

	triggering bool

	adoptPending bool
	adoptN       uint32

	channels []*Channel
}

// NewLoop returns an empty stopped loop.
func NewLoop() *Loop {
	return &Loop{channels: make([]*Channel, 0, MaxChannelsPerLoop)}
}

func (l *Loop) ID() int              { return l.id }
func (l *Loop) Mode() Mode           { return l.mode }
func (l *Loop) Position() uint32     { return l.position }
func (l *Loop) Length() uint32       { return l.length }
func (l *Loop) Triggering() bool     { return l.triggering }
func (l *Loop) Channels() []*Channel { return l.channels }

// Planned returns the pending transition, if any.
func (l *Loop) Planned() (PlannedTransition, bool) {
	return l.planned, l.hasPlanned
}

// AddChannel appends c; it fails when the loop is at channel capacity.
func (l *Loop) AddChannel(c *Channel) bool {
	if len(l.channels) == cap(l.channels) {
		return false
	}
	l.channels = append(l.channels, c)
	return true
}

// RemoveChannel detaches channel i and returns it.
func (l *Loop) RemoveChannel(i int) *Channel {
	if i < 0 || i >= len(l.channels) {
		return nil
	}
	c := l.channels[i]
	copy(l.channels[i:], l.channels[i+1:])
	l.channels[len(l.channels)-1] = nil
	l.channels = l.channels[:len(l.channels)-1]
	return c
}

// SetMode switches mode right away and drops any planned transition.
func (l *Loop) SetMode(m Mode) {
	l.hasPlanned = false
	l.transition(m, false)
}

// PlanTransition replaces the pending transition.
func (l *Loop) PlanTransition(t PlannedTransition) {
	if t.Delay < 0 {
		t.Delay = 0
	}
	l.planned = t
	l.hasPlanned = true
}

// ClearPlanned drops the pending transition.
func (l *Loop) ClearPlanned() {
	l.hasPlanned = false
}

// SetLength sets the loop length. While recording it instead sets the
// length at which recording stops and playback starts; 0 removes that
// limit.
func (l *Loop) SetLength(n uint32) {
	if l.mode == Recording {
		l.recordLimit = n
		return
	}
	l.length = n
	if l.position > n {
		l.position = n
	}
}

// SetPosition moves the play position, wrapped into the loop length.
func (l *Loop) SetPosition(p uint32) {
	if l.length == 0 {
		l.position = 0
		return
	}
	l.position = p % l.length
}

// SetSyncSource makes l follow src; nil removes the relation.
func (l *Loop) SetSyncSource(src *Loop) {
	if src == nil {
		l.sync = weak.Pointer[Loop]{}
		l.hasSync = false
		return
	}
	l.sync = weak.Make(src)
	l.hasSync = true
}

// setSync installs a weak reference made elsewhere, so the audio thread
// never has to call weak.Make.
func (l *Loop) setSync(w weak.Pointer[Loop], ok bool) {
	l.sync = w
	l.hasSync = ok
}

func (l *Loop) syncTarget() *Loop {
	if !l.hasSync {
		return nil
	}
	s := l.sync.Value()
	if s == nil || s.removed {
		return nil
	}
	return s
}

// SyncSource returns the loop l follows, or nil when there is none, it
// expired, or the chain through it cycles or runs too deep.
func (l *Loop) SyncSource() *Loop {
	src := l.syncTarget()
	if src == nil {
		return nil
	}
	cur := src
	for depth := 0; cur != nil; depth++ {
		if cur == l || depth >= MaxSyncChainDepth {
			return nil
		}
		cur = cur.syncTarget()
	}
	return src
}

// AdoptRingBuffer turns the last n samples of pre-roll into loop content
// on the next Process call. A stopped loop becomes an n-sample loop; a
// recording loop gets the pre-roll prepended to its take. Playing loops
// ignore it.
func (l *Loop) AdoptRingBuffer(n uint32) {
	if l.mode == Playing {
		return
	}
	l.adoptPending = true
	l.adoptN = n
	for _, c := range l.channels {
		if c.Kind == AudioKind {
			c.Audio.AdoptRingBuffer(int(n))
		}
	}
}

func (l *Loop) applyAdopt() {
	l.adoptPending = false
	switch l.mode {
	case Recording:
		for _, c := range l.channels {
			if c.Kind == MIDIKind {
				c.MIDI.shift(l.adoptN)
			}
		}
		l.length += l.adoptN
	case Stopped:
		for _, c := range l.channels {
			c.clear()
		}
		l.length = l.adoptN
		l.position = 0
	}
}

// transition applies a mode change. synced marks a change caused by the
// sync source, which restarts playback from the top.
func (l *Loop) transition(target Mode, synced bool) {
	if target == l.mode {
		return
	}
	from := l.mode
	l.mode = target

	switch target {
	case Recording:
		for _, c := range l.channels {
			c.clear()
		}
		l.length = 0
		l.position = 0
		l.recordLimit = 0
	case Playing:
		if from == Recording || synced {
			l.position = 0
		}
		if l.position == 0 && l.length > 0 {
			l.triggering = true
		}
	case Stopped:
		if from == Recording {
			l.position = 0
		}
	}
}

// NextPOI returns the offset from now at which l must be revisited, or
// false if nothing is due within any horizon.
func (l *Loop) NextPOI() (uint32, bool) {
	if l.hasPlanned && (l.planned.Trigger == Immediate || l.SyncSource() == nil) {
		return 0, true
	}
	switch l.mode {
	case Playing:
		if l.length == 0 {
			return 0, false
		}
		if l.position < l.length {
			return l.length - l.position, true
		}
		if l.SyncSource() == nil {
			return 0, true
		}
	case Recording:
		if l.recordLimit > 0 {
			if l.length >= l.recordLimit {
				return 0, true
			}
			return l.recordLimit - l.length, true
		}
	}
	return 0, false
}

// Process advances l by n samples and runs its channels over them. n must
// not exceed NextPOI for position-exact behaviour; an overrun wraps (or,
// for synced loops, holds at the end).
func (l *Loop) Process(n uint32) {
	l.triggering = false
	if l.adoptPending {
		l.applyAdopt()
	}

	posBefore, lenBefore := l.position, l.length
	chMode := l.mode

	switch l.mode {
	case Playing:
		if l.length == 0 || l.position >= l.length {
			// empty, or waiting at the end for the sync source
			chMode = Stopped
			break
		}
		l.position += n
		if l.position > l.length {
			if l.SyncSource() != nil {
				l.position = l.length
			} else {
				l.position %= l.length
				l.triggering = true
			}
		}
	case Recording:
		l.length += n
	}

	for _, c := range l.channels {
		c.Process(chMode, n, posBefore, l.position, lenBefore, l.length)
	}
	for _, c := range l.channels {
		c.Finalize()
	}
}

// HandlePOI applies whatever is due at the current offset: immediate
// transitions, the wrap of an unsynced loop, the end of a limited take.
func (l *Loop) HandlePOI() {
	if l.hasPlanned && (l.planned.Trigger == Immediate || l.SyncSource() == nil) {
		t := l.planned
		l.hasPlanned = false
		l.transition(t.Mode, false)
	}

	switch l.mode {
	case Playing:
		if l.length > 0 && l.position >= l.length && l.SyncSource() == nil {
			l.position %= l.length
			l.triggering = true
		}
	case Recording:
		if l.recordLimit > 0 && l.length >= l.recordLimit {
			l.length = l.recordLimit
			l.recordLimit = 0
			l.transition(Playing, false)
		}
	}
}

// HandleSync reacts to the sync source having wrapped or been triggered:
// it fires a sync-planned transition (after its delay) or restarts a
// playing loop that is waiting at its end.
func (l *Loop) HandleSync() {
	src := l.SyncSource()
	if src == nil || !src.triggering {
		return
	}

	if l.hasPlanned && l.planned.Trigger == OnSyncSourceWrap {
		if l.planned.Delay > 0 {
			l.planned.Delay--
		} else {
			t := l.planned
			l.hasPlanned = false
			l.transition(t.Mode, true)
			return
		}
	}

	if l.mode == Playing && l.length > 0 && l.position >= l.length {
		l.position = 0
		l.triggering = true
	}
}

// stop silences every channel; used when the loop is discarded.
func (l *Loop) stop() {
	for _, c := range l.channels {
		c.stop()
	}
}
