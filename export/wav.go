// Package export moves channel contents in and out of standard files: WAV
// for audio, Standard MIDI Files for MIDI.
package export

import (
	"fmt"
	"io"
	"math"
	"os"

	wav "github.com/youpy/go-wav"
)

const wavBits = 16

// Audio is interleaved float32 sample data.
type Audio struct {
	Samples    []float32
	Channels   int
	SampleRate int
}

// Frames returns the number of frames in a.
func (a Audio) Frames() int {
	if a.Channels <= 0 {
		return 0
	}
	return len(a.Samples) / a.Channels
}

// WriteWAV encodes a as 16-bit PCM. Mono and stereo are supported.
func WriteWAV(w io.Writer, a Audio) error {
	if a.Channels < 1 || a.Channels > 2 {
		return fmt.Errorf("wav: %d channels not supported", a.Channels)
	}
	frames := a.Frames()
	ww := wav.NewWriter(w, uint32(frames), uint16(a.Channels), uint32(a.SampleRate), wavBits)

	samples := make([]wav.Sample, frames)
	for i := range samples {
		for c := 0; c < a.Channels; c++ {
			samples[i].Values[c] = toPCM(a.Samples[i*a.Channels+c])
		}
	}
	if err := ww.WriteSamples(samples); err != nil {
		return fmt.Errorf("wav: %w", err)
	}
	return nil
}

func toPCM(v float32) int {
	v = max(-1, min(1, v))
	return int(math.Round(float64(v) * math.MaxInt16))
}

// WriteWAVFile writes a to path.
func WriteWAVFile(path string, a Audio) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(f, a); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WAVSource is what the WAV decoder reads from (os.File, bytes.Reader).
type WAVSource interface {
	io.Reader
	io.ReaderAt
}

// ReadWAV decodes a PCM WAV stream into float32 samples.
func ReadWAV(r WAVSource) (Audio, error) {
	wr := wav.NewReader(r)
	format, err := wr.Format()
	if err != nil {
		return Audio{}, fmt.Errorf("wav: %w", err)
	}
	a := Audio{
		Channels:   int(format.NumChannels),
		SampleRate: int(format.SampleRate),
	}
	if a.Channels < 1 || a.Channels > 2 {
		return Audio{}, fmt.Errorf("wav: %d channels not supported", a.Channels)
	}
	for {
		samples, err := wr.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Audio{}, fmt.Errorf("wav: %w", err)
		}
		for _, s := range samples {
			for c := 0; c < a.Channels; c++ {
				a.Samples = append(a.Samples, float32(wr.FloatValue(s, uint(c))))
			}
		}
	}
	return a, nil
}

// ReadWAVFile reads the WAV file at path.
func ReadWAVFile(path string) (Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return Audio{}, err
	}
	defer f.Close()
	return ReadWAV(f)
}

// Deinterleave splits a into one slice per channel.
func Deinterleave(a Audio) [][]float32 {
	out := make([][]float32, a.Channels)
	frames := a.Frames()
	for c := range out {
		out[c] = make([]float32, frames)
		for i := 0; i < frames; i++ {
			out[c][i] = a.Samples[i*a.Channels+c]
		}
	}
	return out
}

// Interleave joins equal-length channel slices into one Audio.
func Interleave(channels [][]float32, sampleRate int) Audio {
	a := Audio{Channels: len(channels), SampleRate: sampleRate}
	if len(channels) == 0 {
		return a
	}
	frames := len(channels[0])
	for _, ch := range channels[1:] {
		frames = min(frames, len(ch))
	}
	a.Samples = make([]float32, frames*len(channels))
	for i := 0; i < frames; i++ {
		for c, ch := range channels {
			a.Samples[i*len(channels)+c] = ch[i]
		}
	}
	return a
}
