package looper

// ChannelKind tags which variant a Channel holds.
type ChannelKind uint8

const (
	AudioKind ChannelKind = iota
	MIDIKind
)

func (k ChannelKind) String() string {
	if k == MIDIKind {
		return "midi"
	}
	return "audio"
}

// Channel is one data lane of a loop. Exactly one of Audio and MIDI is
// set, matching Kind; operations switch on Kind instead of going through
// an interface.
type Channel struct {
	Kind  ChannelKind
	Audio *AudioChannel
	MIDI  *MIDIChannel
}

func NewAudio(c *AudioChannel) *Channel {
	return &Channel{Kind: AudioKind, Audio: c}
}

func NewMIDI(c *MIDIChannel) *Channel {
	return &Channel{Kind: MIDIKind, MIDI: c}
}

func (c *Channel) Process(mode Mode, n, posBefore, posAfter, lenBefore, lenAfter uint32) {
	switch c.Kind {
	case AudioKind:
		c.Audio.Process(mode, n, posBefore, posAfter, lenBefore, lenAfter)
	case MIDIKind:
		c.MIDI.Process(mode, n, posBefore, posAfter, lenBefore, lenAfter)
	}
}

func (c *Channel) Finalize() {
	switch c.Kind {
	case AudioKind:
		c.Audio.Finalize()
	case MIDIKind:
		c.MIDI.Finalize()
	}
}

func (c *Channel) clear() {
	switch c.Kind {
	case AudioKind:
		c.Audio.clear()
	case MIDIKind:
		c.MIDI.clear()
	}
}

// stop cuts playback short: sounding MIDI notes get their note-offs.
func (c *Channel) stop() {
	if c.Kind == MIDIKind {
		c.MIDI.Stop()
	}
}

// release frees pooled storage when the channel is discarded.
func (c *Channel) release() {
	if c.Kind == AudioKind {
		c.Audio.Release()
	}
}

// Len returns the committed content length: samples for audio, messages
// for MIDI.
func (c *Channel) Len() int {
	switch c.Kind {
	case AudioKind:
		return c.Audio.Len()
	case MIDIKind:
		return c.MIDI.Len()
	}
	return 0
}
