package backend

import (
	"context"
	"time"

	"go-looper/config"
	"go-looper/looper"
	"go-looper/midi"
)

// Offline drives the engine from code: one quantum per Step, with input
// supplied by the caller. Tests and the render command use it; as a
// Driver it paces quanta in real time with silent audio input.
type Offline struct {
	cycle *cycle
	cfg   config.AudioConfig
	in    [][]float32
	out   [][]float32
}

func NewOffline(e *looper.Engine, mp MIDIPort) *Offline {
	cfg := e.Config().Audio
	o := &Offline{
		cycle: newCycle(e, mp),
		cfg:   cfg,
		in:    makePlanar(cfg.InputChannels, cfg.FramesPerBuffer),
		out:   makePlanar(cfg.OutputChannels, cfg.FramesPerBuffer),
	}
	o.cycle.ports.AudioIn = o.in
	o.cycle.ports.AudioOut = o.out
	return o
}

// Frames returns the quantum size.
func (o *Offline) Frames() int {
	return o.cfg.FramesPerBuffer
}

// QueueMIDI injects messages into the next quantum's MIDI input. Times are
// offsets into that quantum, ascending.
func (o *Offline) QueueMIDI(msgs ...midi.Message) {
	for _, m := range msgs {
		if len(o.cycle.queued) < cap(o.cycle.queued) {
			o.cycle.queued = append(o.cycle.queued, m)
		}
	}
}

// Step runs one quantum. src[i] feeds input port i; missing ports and
// short slices are silent. The returned buffers are reused by the next
// Step.
func (o *Offline) Step(src [][]float32) ([][]float32, error) {
	for i, in := range o.in {
		clear(in)
		if i < len(src) {
			copy(in, src[i])
		}
	}
	err := o.cycle.run(o.cfg.FramesPerBuffer)
	return o.out, err
}

// MIDIOut returns the MIDI produced by the last Step, valid until the
// next one.
func (o *Offline) MIDIOut() []midi.Message {
	return o.cycle.ports.MIDIOut
}

// Render runs quanta until at least frames frames have been produced and
// returns them interleaved. input, if non-nil, fills each quantum's input
// ports; start is the frame index of the quantum.
func (o *Offline) Render(frames int, input func(start int, in [][]float32)) ([]float32, error) {
	ch := len(o.out)
	q := o.cfg.FramesPerBuffer
	res := make([]float32, 0, (frames+q-1)/q*q*ch)
	for start := 0; start < frames; start += q {
		for _, in := range o.in {
			clear(in)
		}
		if input != nil {
			input(start, o.in)
		}
		if err := o.cycle.run(q); err != nil {
			return res, err
		}
		for i := 0; i < q; i++ {
			for _, s := range o.out {
				res = append(res, s[i])
			}
		}
	}
	return res[:frames*ch], nil
}

// Run processes silent quanta at the configured rate until ctx is done.
// MIDI still flows through the port, so loops can record and play MIDI
// without an audio device.
func (o *Offline) Run(ctx context.Context) error {
	period := time.Duration(o.cfg.FramesPerBuffer) * time.Second / time.Duration(o.cfg.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, in := range o.in {
				clear(in)
			}
			if err := o.cycle.run(o.cfg.FramesPerBuffer); err != nil {
				return err
			}
		}
	}
}
