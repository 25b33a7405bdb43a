package backend

import (
	"context"
	"fmt"
	"strings"

	"go-looper/config"
	"go-looper/debug"
	"go-looper/looper"

	"github.com/gordonklaus/portaudio"
)

// PortAudio runs the engine from a duplex PortAudio stream. The stream
// callback is the audio thread.
type PortAudio struct {
	cycle  *cycle
	cfg    config.AudioConfig
	log    *debug.Logger
	stream *portaudio.Stream
}

func NewPortAudio(e *looper.Engine, mp MIDIPort, dbg *debug.Context) *PortAudio {
	return &PortAudio{
		cycle: newCycle(e, mp),
		cfg:   e.Config().Audio,
		log:   dbg.Logger("portaudio"),
	}
}

// Start opens and starts the stream.
func (p *PortAudio) Start() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	stream, err := p.open()
	if err != nil {
		portaudio.Terminate()
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("start stream: %w", err)
	}
	p.stream = stream
	info := stream.Info()
	p.log.Log("stream started: %.0f Hz, in latency %v, out latency %v",
		info.SampleRate, info.InputLatency, info.OutputLatency)
	return nil
}

func (p *PortAudio) open() (*portaudio.Stream, error) {
	if p.cfg.Device == "" {
		stream, err := portaudio.OpenDefaultStream(p.cfg.InputChannels, p.cfg.OutputChannels,
			float64(p.cfg.SampleRate), p.cfg.FramesPerBuffer, p.process)
		if err != nil {
			return nil, fmt.Errorf("open default stream: %w", err)
		}
		return stream, nil
	}

	dev, err := findDevice(p.cfg.Device)
	if err != nil {
		return nil, err
	}
	var in *portaudio.DeviceInfo
	if p.cfg.InputChannels > 0 {
		in = dev
	}
	params := portaudio.LowLatencyParameters(in, dev)
	params.Input.Channels = p.cfg.InputChannels
	params.Output.Channels = p.cfg.OutputChannels
	params.SampleRate = float64(p.cfg.SampleRate)
	params.FramesPerBuffer = p.cfg.FramesPerBuffer
	stream, err := portaudio.OpenStream(params, p.process)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dev.Name, err)
	}
	return stream, nil
}

func findDevice(name string) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}
	want := strings.ToLower(name)
	for _, d := range devs {
		if strings.Contains(strings.ToLower(d.Name), want) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no audio device matching %q", name)
}

// process is the stream callback. Buffers are non-interleaved, one slice
// per channel.
func (p *PortAudio) process(in, out [][]float32) {
	p.cycle.ports.AudioIn = in
	p.cycle.ports.AudioOut = out
	n := 0
	if len(out) > 0 {
		n = len(out[0])
	}
	p.cycle.run(n)
}

// Stop stops and closes the stream.
func (p *PortAudio) Stop() error {
	if p.stream == nil {
		return nil
	}
	err := p.stream.Stop()
	if cerr := p.stream.Close(); err == nil {
		err = cerr
	}
	p.stream = nil
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}

// Run starts the stream and stops it when ctx is done.
func (p *PortAudio) Run(ctx context.Context) error {
	if err := p.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return p.Stop()
}
