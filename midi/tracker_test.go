package midi

import (
	"math/rand"
	"testing"
)

func TestTrackerNoteOnOff(t *testing.T) {
	var a ActiveNotes
	a.ProcessMessage(msg(0x90, 60, 100))
	a.ProcessMessage(msg(0x90, 60, 100)) // repeat does not count twice
	a.ProcessMessage(msg(0x91, 60, 100))
	if a.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", a.Count())
	}
	a.ProcessMessage(msg(0x90, 60, 0)) // velocity 0 is a note-off
	a.ProcessMessage(msg(0x81, 60, 0))
	a.ProcessMessage(msg(0x81, 60, 0)) // count never goes negative
	if a.Count() != 0 {
		t.Errorf("Count() = %d, want 0", a.Count())
	}
}

func TestTrackerAllNotesOff(t *testing.T) {
	var a ActiveNotes
	for n := uint8(0); n < 128; n += 3 {
		a.ProcessMessage(msg(0x92, n, 1))
	}
	a.ProcessMessage(msg(0x93, 10, 1))
	a.ProcessMessage(msg(0xB2, CCAllNotesOff, 0))
	if a.Count() != 1 || !a.IsActive(3, 10) {
		t.Errorf("after all notes off: count %d", a.Count())
	}
}

// For any message sequence the count stays non-negative and matches the
// set bits.
func TestTrackerCountMatchesBits(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var a ActiveNotes
	for i := 0; i < 20000; i++ {
		ch := byte(rng.Intn(4))
		note := byte(rng.Intn(128))
		var m Message
		switch rng.Intn(10) {
		case 0:
			m = msg(0xB0|ch, CCAllNotesOff, 0)
		case 1:
			m = msg(0xB0|ch, CCAllSoundOff, 0)
		case 2, 3, 4:
			m = msg(0x80|ch, note, 0)
		default:
			m = msg(0x90|ch, note, byte(rng.Intn(128)))
		}
		a.ProcessMessage(m)

		set := 0
		a.ForEach(func(c, n uint8) {
			if !a.IsActive(c, n) {
				t.Fatalf("ForEach yielded inactive %d/%d", c, n)
			}
			set++
		})
		if a.Count() < 0 || a.Count() != set {
			t.Fatalf("step %d: count %d, set bits %d", i, a.Count(), set)
		}
	}
}

func TestTrackerForEachOrder(t *testing.T) {
	var a ActiveNotes
	a.ProcessMessage(msg(0x91, 100, 1))
	a.ProcessMessage(msg(0x90, 70, 1))
	a.ProcessMessage(msg(0x90, 3, 1))

	var got [][2]uint8
	a.ForEach(func(c, n uint8) { got = append(got, [2]uint8{c, n}) })
	want := [][2]uint8{{0, 3}, {0, 70}, {1, 100}}
	if len(got) != len(want) {
		t.Fatalf("ForEach = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ForEach[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
