package export

import (
	"fmt"
	"io"
	"os"
	"sort"

	"go-looper/midi"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// ticksPerQuarter is the SMF resolution used for export.
const ticksPerQuarter = 960

// DefaultBPM is the tempo written when none is given. Loop times are in
// samples, so the tempo only decides how ticks map back to samples.
const DefaultBPM = 120.0

// WriteSMF writes msgs (times in samples at sampleRate) as a single-track
// Standard MIDI File.
func WriteSMF(w io.Writer, msgs []midi.Message, sampleRate int, bpm float64) error {
	if sampleRate <= 0 {
		return fmt.Errorf("smf: invalid sample rate %d", sampleRate)
	}
	if bpm <= 0 {
		bpm = DefaultBPM
	}
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	ticksPerSample := bpm / 60 * ticksPerQuarter / float64(sampleRate)

	var track smf.Track
	track.Add(0, smf.MetaTempo(bpm))
	var last uint32
	for _, m := range msgs {
		abs := uint32(float64(m.Time)*ticksPerSample + 0.5)
		if abs < last {
			abs = last
		}
		track.Add(abs-last, gomidi.Message(m.Data))
		last = abs
	}
	track.Close(0)

	if err := sm.Add(track); err != nil {
		return fmt.Errorf("smf: add track: %w", err)
	}
	if _, err := sm.WriteTo(w); err != nil {
		return fmt.Errorf("smf: %w", err)
	}
	return nil
}

// WriteSMFFile writes msgs to path.
func WriteSMFFile(path string, msgs []midi.Message, sampleRate int, bpm float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSMF(f, msgs, sampleRate, bpm); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadSMF reads every playable message of every track, merged in time
// order, with times converted to samples at sampleRate. Tempo changes in
// the file are honoured.
func ReadSMF(r io.Reader, sampleRate int) ([]midi.Message, error) {
	sm, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("smf: %w", err)
	}

	var out []midi.Message
	for _, tr := range sm.Tracks {
		var abs int64
		for _, ev := range tr {
			abs += int64(ev.Delta)
			if !ev.Message.IsPlayable() {
				continue
			}
			us := sm.TimeAt(abs)
			data := append([]byte(nil), ev.Message.Bytes()...)
			out = append(out, midi.NewMessage(uint32((us*int64(sampleRate)+500_000)/1_000_000), data))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

// ReadSMFFile reads the MIDI file at path.
func ReadSMFFile(path string, sampleRate int) ([]midi.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSMF(f, sampleRate)
}
