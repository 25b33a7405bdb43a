package looper

// LoopSnapshot is a copy of one loop's state, safe to read from any
// goroutine.
type LoopSnapshot struct {
	ID         int
	Mode       Mode
	Position   uint32
	Length     uint32
	SyncID     int // -1 when the loop has no effective sync source
	Planned    PlannedTransition
	HasPlanned bool
	Triggering bool

	AudioChannels int
	MIDIChannels  int
	Events        int    // committed MIDI messages over all channels
	Dropped       uint64 // samples and messages lost to full storage

	// Kinds holds each channel's kind; see ChannelKinds.
	Kinds [MaxChannelsPerLoop]ChannelKind
}

// Progress returns position/length in [0, 1].
func (s LoopSnapshot) Progress() float64 {
	if s.Length == 0 {
		return 0
	}
	return float64(s.Position) / float64(s.Length)
}

// ChannelKinds returns the kind of each channel, indexed like ChannelRef.
func (s LoopSnapshot) ChannelKinds() []ChannelKind {
	return s.Kinds[:s.AudioChannels+s.MIDIChannels]
}

func (l *Loop) snapshot() LoopSnapshot {
	s := LoopSnapshot{
		ID:         l.id,
		Mode:       l.mode,
		Position:   l.position,
		Length:     l.length,
		SyncID:     -1,
		Planned:    l.planned,
		HasPlanned: l.hasPlanned,
		Triggering: l.triggering,
	}
	if src := l.SyncSource(); src != nil {
		s.SyncID = src.id
	}
	for i, c := range l.channels {
		s.Kinds[i] = c.Kind
		switch c.Kind {
		case AudioKind:
			s.AudioChannels++
			s.Dropped += c.Audio.Dropped()
		case MIDIKind:
			s.MIDIChannels++
			s.Events += c.MIDI.Len()
			s.Dropped += c.MIDI.Dropped()
		}
	}
	return s
}
