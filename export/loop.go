package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go-looper/looper"
	"go-looper/resample"
)

// ChannelPath returns the file a loop channel is saved to inside dir:
// loop<id>-<channel>.wav for audio, .mid for MIDI.
func ChannelPath(dir string, ref looper.ChannelRef, kind looper.ChannelKind) string {
	ext := ".wav"
	if kind == looper.MIDIKind {
		ext = ".mid"
	}
	return filepath.Join(dir, fmt.Sprintf("loop%d-%d%s", ref.Loop, ref.Channel, ext))
}

// SaveLoop writes every channel of the loop described by s into dir and
// returns the paths written. Audio files hold loop positions 0 to the
// loop length; pre-roll history before position 0 is not saved.
func SaveLoop(ctx context.Context, e *looper.Engine, s looper.LoopSnapshot, dir string) ([]string, error) {
	rate := e.Config().Audio.SampleRate
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	var paths []string
	for i, kind := range s.ChannelKinds() {
		ref := looper.ChannelRef{Loop: s.ID, Channel: i}
		path := ChannelPath(dir, ref, kind)
		switch kind {
		case looper.AudioKind:
			samples, start, err := e.AudioContents(ctx, ref)
			if err != nil {
				return paths, err
			}
			window := loopWindow(samples, start, s.Length)
			if err := WriteWAVFile(path, Audio{Samples: window, Channels: 1, SampleRate: rate}); err != nil {
				return paths, fmt.Errorf("save %s: %w", path, err)
			}
		case looper.MIDIKind:
			msgs, err := e.MIDIContents(ctx, ref)
			if err != nil {
				return paths, err
			}
			if err := WriteSMFFile(path, msgs, rate, DefaultBPM); err != nil {
				return paths, fmt.Errorf("save %s: %w", path, err)
			}
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// loopWindow returns the samples playing at loop positions [0, length),
// given that position 0 is samples[start]. A zero length takes everything
// from start on.
func loopWindow(samples []float32, start int, length uint32) []float32 {
	start = min(max(start, 0), len(samples))
	end := len(samples)
	if length > 0 {
		end = min(start+int(length), end)
	}
	return samples[start:end]
}

// LoadLoop replaces the contents of every channel of s that has a saved
// file in dir. WAV files at another sample rate are resampled and mixed
// down to mono. It returns the paths read.
func LoadLoop(ctx context.Context, e *looper.Engine, s looper.LoopSnapshot, dir string) ([]string, error) {
	rate := e.Config().Audio.SampleRate

	var paths []string
	for i, kind := range s.ChannelKinds() {
		ref := looper.ChannelRef{Loop: s.ID, Channel: i}
		path := ChannelPath(dir, ref, kind)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		switch kind {
		case looper.AudioKind:
			a, err := ReadWAVFile(path)
			if err != nil {
				return paths, err
			}
			if err := e.SetAudioContents(ctx, ref, ToMono(a, rate)); err != nil {
				return paths, fmt.Errorf("load %s: %w", path, err)
			}
		case looper.MIDIKind:
			msgs, err := ReadSMFFile(path, rate)
			if err != nil {
				return paths, err
			}
			if err := e.SetMIDIContents(ctx, ref, msgs); err != nil {
				return paths, fmt.Errorf("load %s: %w", path, err)
			}
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ToMono averages a's channels and resamples the result to rate.
func ToMono(a Audio, rate int) []float32 {
	frames := a.Frames()
	mono := make([]float32, frames)
	for i := range mono {
		var sum float32
		for c := 0; c < a.Channels; c++ {
			sum += a.Samples[i*a.Channels+c]
		}
		mono[i] = sum / float32(a.Channels)
	}
	if a.SampleRate == rate || a.SampleRate <= 0 || frames == 0 {
		return mono
	}
	outFrames := int(int64(frames) * int64(rate) / int64(a.SampleRate))
	return resample.Resample(mono, 1, frames, outFrames)
}
