package midi

import "math/bits"

// ActiveNotes tracks which (channel, note) pairs are currently sounding.
// It is used to silence a device cleanly when playback is cut short.
// The zero value is ready to use and never allocates.
type ActiveNotes struct {
	bits  [NumChannels][NumNotes / 64]uint64
	count int
}

// ProcessMessage updates the tracker with a message flowing to a device.
// A note-on with velocity 0 counts as a note-off.
func (a *ActiveNotes) ProcessMessage(m Message) {
	if !Classifiable(m) {
		return
	}
	var ch, key, val uint8
	msg := wire(m)
	switch {
	case msg.GetNoteStart(&ch, &key, &val):
		a.set(ch, key)
	case msg.GetNoteEnd(&ch, &key):
		a.clear(ch, key)
	case msg.GetControlChange(&ch, &key, &val) && (key == CCAllNotesOff || key == CCAllSoundOff):
		a.clearChannel(ch)
	}
}

func (a *ActiveNotes) set(ch, note uint8) {
	w, b := (note&0x7F)>>6, uint64(1)<<(note&63)
	if a.bits[ch][w]&b == 0 {
		a.bits[ch][w] |= b
		a.count++
	}
}

func (a *ActiveNotes) clear(ch, note uint8) {
	w, b := (note&0x7F)>>6, uint64(1)<<(note&63)
	if a.bits[ch][w]&b != 0 {
		a.bits[ch][w] &^= b
		if a.count > 0 {
			a.count--
		}
	}
}

func (a *ActiveNotes) clearChannel(ch uint8) {
	for w := range a.bits[ch] {
		a.count -= bits.OnesCount64(a.bits[ch][w])
		a.bits[ch][w] = 0
	}
	if a.count < 0 {
		a.count = 0
	}
}

// IsActive reports whether note is sounding on channel.
func (a *ActiveNotes) IsActive(ch, note uint8) bool {
	return a.bits[ch&0x0F][(note&0x7F)>>6]&(uint64(1)<<(note&63)) != 0
}

// Count returns the number of sounding notes.
func (a *ActiveNotes) Count() int {
	return a.count
}

// ForEach calls fn for every sounding note, in channel then note order.
func (a *ActiveNotes) ForEach(fn func(ch, note uint8)) {
	if a.count == 0 {
		return
	}
	for ch := range a.bits {
		for w, word := range a.bits[ch] {
			for word != 0 {
				i := bits.TrailingZeros64(word)
				fn(uint8(ch), uint8(w*64+i))
				word &^= uint64(1) << i
			}
		}
	}
}

// Reset forgets every note without emitting anything.
func (a *ActiveNotes) Reset() {
	*a = ActiveNotes{}
}
