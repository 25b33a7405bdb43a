package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// MIDI status nibbles, used to build messages in place
const (
	NoteOff uint8 = 0x80
	NoteOn  uint8 = 0x90
	CC      uint8 = 0xB0
)

// Channel mode controllers
const (
	CCAllSoundOff uint8 = 120
	CCAllNotesOff uint8 = 123
)

const (
	NumChannels = 16
	NumNotes    = 128

	// MaxChannelVoiceSize is the largest message the classifier understands.
	// Anything bigger passes through unclassified.
	MaxChannelVoiceSize = 3
)

// Message is a time-stamped raw MIDI message. Time is in samples,
// relative to whatever origin the owner uses (quantum start, loop start).
type Message struct {
	Time uint32
	Size uint32
	Data []byte
}

// NewMessage wraps data; Size always equals len(data).
func NewMessage(time uint32, data []byte) Message {
	return Message{Time: time, Size: uint32(len(data)), Data: data}
}

func (m Message) String() string {
	return fmt.Sprintf("@%d %s", m.Time, gomidi.Message(m.Data).String())
}

// wire views m's bytes as a gomidi message without copying.
func wire(m Message) gomidi.Message { return gomidi.Message(m.Data) }

// Classifiable reports whether m is a channel voice message the helpers
// below can be applied to.
func Classifiable(m Message) bool {
	var ch uint8
	return m.Size >= 1 && m.Size <= MaxChannelVoiceSize && wire(m).GetChannel(&ch)
}

// Channel returns the zero-based MIDI channel.
func Channel(m Message) uint8 {
	var ch uint8
	wire(m).GetChannel(&ch)
	return ch
}

// noteFields returns the key and velocity of a note-on or note-off.
func noteFields(m Message) (key, vel uint8, ok bool) {
	var ch uint8
	msg := wire(m)
	if msg.GetNoteOn(&ch, &key, &vel) || msg.GetNoteOff(&ch, &key, &vel) {
		return key, vel, true
	}
	return 0, 0, false
}

// Note returns the key of a note message, 0 for anything else.
func Note(m Message) uint8 {
	key, _, _ := noteFields(m)
	return key
}

// Velocity returns the velocity of a note message, 0 for anything else.
func Velocity(m Message) uint8 {
	_, vel, _ := noteFields(m)
	return vel
}

// IsNoteOn reports a note-on with non-zero velocity.
func IsNoteOn(m Message) bool {
	var ch, key, vel uint8
	return wire(m).GetNoteStart(&ch, &key, &vel)
}

// IsNoteOff reports a note-off, including a note-on with velocity 0.
func IsNoteOff(m Message) bool {
	var ch, key uint8
	return wire(m).GetNoteEnd(&ch, &key)
}

func IsControlChange(m Message) bool {
	var ch, cc, val uint8
	return wire(m).GetControlChange(&ch, &cc, &val)
}

// channelModeFor returns the channel of a control change to controller.
func channelModeFor(m Message, controller uint8) (uint8, bool) {
	var ch, cc, val uint8
	if wire(m).GetControlChange(&ch, &cc, &val) && cc == controller {
		return ch, true
	}
	return 0, false
}

// AllNotesOffFor returns the channel an "all notes off" message applies to.
func AllNotesOffFor(m Message) (uint8, bool) {
	return channelModeFor(m, CCAllNotesOff)
}

// AllSoundOffFor returns the channel an "all sound off" message applies to.
func AllSoundOffFor(m Message) (uint8, bool) {
	return channelModeFor(m, CCAllSoundOff)
}

// NoteOffBytes writes a note-off for (channel, note) into dst.
func NoteOffBytes(dst *[3]byte, channel, note uint8) {
	dst[0] = NoteOff | (channel & 0x0F)
	dst[1] = note & 0x7F
	dst[2] = 0
}
