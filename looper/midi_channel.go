package looper

import (
	"fmt"
	"sort"

	"go-looper/midi"
)

// MIDIChannel records time-ordered MIDI messages and replays them against
// the owning loop's position. Message times are loop positions in samples.
type MIDIChannel struct {
	msgs      []midi.Message // Data slices point into arena
	arena     []byte
	committed int

	// replay cursor, valid while the loop position is expectPos
	cursor    int
	expectPos uint32
	seeked    bool

	// per-quantum I/O
	in     []midi.Message
	inIdx  int
	out    *[]midi.Message
	offset uint32

	active   midi.ActiveNotes
	noteOffs [midi.NumChannels][midi.NumNotes][3]byte
	playing  bool

	dropped uint64
}

// NewMIDIChannel creates a channel holding at most maxEvents messages.
// Recorded message bytes share an arena of maxEvents*3 bytes plus room
// for a few longer messages.
func NewMIDIChannel(maxEvents int) *MIDIChannel {
	return &MIDIChannel{
		msgs:  make([]midi.Message, 0, maxEvents),
		arena: make([]byte, 0, maxEvents*midi.MaxChannelVoiceSize+4096),
	}
}

// Len returns the committed message count.
func (c *MIDIChannel) Len() int {
	return c.committed
}

// Dropped returns how many messages could not be stored or emitted.
func (c *MIDIChannel) Dropped() uint64 {
	return c.dropped
}

// ActiveNotes returns the number of notes this channel has left sounding.
func (c *MIDIChannel) ActiveNotes() int {
	return c.active.Count()
}

// Prepare binds this quantum's input (times relative to the quantum
// start, ascending) and the output the channel appends to.
func (c *MIDIChannel) Prepare(in []midi.Message, out *[]midi.Message) {
	c.in = in
	c.inIdx = 0
	c.out = out
	c.offset = 0
}

// Process handles n samples of the current quantum.
func (c *MIDIChannel) Process(mode Mode, n, posBefore, posAfter, lenBefore, lenAfter uint32) {
	start, end := c.offset, c.offset+n

	if mode != Playing && c.playing {
		c.silence(start)
	}

	switch mode {
	case Recording:
		for c.inIdx < len(c.in) && c.in[c.inIdx].Time < end {
			m := c.in[c.inIdx]
			rel := uint32(0)
			if m.Time > start {
				rel = m.Time - start
			}
			c.record(lenBefore+rel, m)
			c.inIdx++
		}
	case Playing:
		c.play(start, n, posBefore, lenAfter)
		c.expectPos = posAfter
	}

	// input outside recording is not stored
	for c.inIdx < len(c.in) && c.in[c.inIdx].Time < end {
		c.inIdx++
	}

	c.playing = mode == Playing
	c.offset = end
}

func (c *MIDIChannel) record(t uint32, m midi.Message) {
	if len(c.msgs) == cap(c.msgs) || len(c.arena)+len(m.Data) > cap(c.arena) {
		c.dropped++
		return
	}
	at := len(c.arena)
	c.arena = append(c.arena, m.Data...)
	c.msgs = append(c.msgs, midi.Message{
		Time: t,
		Size: uint32(len(m.Data)),
		Data: c.arena[at:len(c.arena):len(c.arena)],
	})
}

func (c *MIDIChannel) play(start, n, pos, length uint32) {
	if length == 0 {
		return
	}
	if !c.seeked || pos != c.expectPos {
		// position jumped (wrap, restart, seek): nothing recorded before
		// the jump may keep sounding
		if c.playing {
			c.silence(start)
		}
		c.seek(pos)
	}

	first := n
	if pos+n > length {
		first = length - pos
	}
	c.emitRange(start, pos, pos+first)
	if first < n {
		// wrapped inside this step
		c.silence(start + first)
		c.seek(0)
		c.emitRange(start+first, 0, n-first)
	}
}

func (c *MIDIChannel) seek(pos uint32) {
	c.cursor = sort.Search(c.committed, func(i int) bool { return c.msgs[i].Time >= pos })
	c.seeked = true
}

// emitRange emits committed messages with loop time in [from, to) at
// quantum offset base.
func (c *MIDIChannel) emitRange(base, from, to uint32) {
	for c.cursor < c.committed && c.msgs[c.cursor].Time < to {
		m := c.msgs[c.cursor]
		c.cursor++
		if m.Time < from {
			continue
		}
		m.Time = base + (m.Time - from)
		c.emit(m)
		c.active.ProcessMessage(m)
	}
}

func (c *MIDIChannel) emit(m midi.Message) {
	if c.out == nil {
		return
	}
	if len(*c.out) == cap(*c.out) {
		c.dropped++
		return
	}
	*c.out = append(*c.out, m)
}

// silence emits a note-off for every note this channel left sounding.
func (c *MIDIChannel) silence(at uint32) {
	c.active.ForEach(func(ch, note uint8) {
		buf := &c.noteOffs[ch][note]
		midi.NoteOffBytes(buf, ch, note)
		c.emit(midi.NewMessage(at, buf[:]))
	})
	c.active.Reset()
}

// Finalize makes this quantum's recorded messages visible.
func (c *MIDIChannel) Finalize() {
	c.committed = len(c.msgs)
}

// shift moves every recorded message n samples later, for content
// prepended ahead of the take.
func (c *MIDIChannel) shift(n uint32) {
	for i := range c.msgs {
		c.msgs[i].Time += n
	}
	c.seeked = false
}

func (c *MIDIChannel) clear() {
	c.msgs = c.msgs[:0]
	c.arena = c.arena[:0]
	c.committed = 0
	c.cursor = 0
	c.seeked = false
}

// Stop silences the channel at the current quantum offset.
func (c *MIDIChannel) Stop() {
	c.silence(c.offset)
	c.playing = false
}

// SetContents replaces the stored messages with a verbatim copy of msgs.
// It does not allocate; messages beyond capacity are rejected.
func (c *MIDIChannel) SetContents(msgs []midi.Message) error {
	size := 0
	for _, m := range msgs {
		size += len(m.Data)
	}
	if len(msgs) > cap(c.msgs) || size > cap(c.arena) {
		return fmt.Errorf("%d messages (%d bytes) exceed channel capacity", len(msgs), size)
	}
	c.clear()
	for _, m := range msgs {
		at := len(c.arena)
		c.arena = append(c.arena, m.Data...)
		c.msgs = append(c.msgs, midi.Message{
			Time: m.Time,
			Size: m.Size,
			Data: c.arena[at:len(c.arena):len(c.arena)],
		})
	}
	c.committed = len(c.msgs)
	return nil
}

// ContentsInto appends a copy of the committed messages to dst, with their
// bytes copied into buf. Both are used within their capacity only, so a
// caller that sized them in advance causes no allocation.
func (c *MIDIChannel) ContentsInto(dst []midi.Message, buf []byte) ([]midi.Message, []byte) {
	for _, m := range c.msgs[:c.committed] {
		if len(dst) == cap(dst) || len(buf)+len(m.Data) > cap(buf) {
			break
		}
		at := len(buf)
		buf = append(buf, m.Data...)
		dst = append(dst, midi.Message{Time: m.Time, Size: m.Size, Data: buf[at:len(buf):len(buf)]})
	}
	return dst, buf
}

// Contents returns a copy of the committed messages.
func (c *MIDIChannel) Contents() []midi.Message {
	dst, _ := c.ContentsInto(make([]midi.Message, 0, c.committed), make([]byte, 0, len(c.arena)))
	return dst
}
