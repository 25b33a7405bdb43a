// Package backend drives a looper.Engine from an audio device, or from
// code for tests and offline rendering.
package backend

import (
	"context"
	"fmt"

	"go-looper/config"
	"go-looper/debug"
	"go-looper/looper"
	"go-looper/midi"
)

// MIDIPort is the engine's MIDI I/O. midi.PortManager implements it.
// Both methods are called from the audio thread and must not block.
type MIDIPort interface {
	Receive(dst []midi.Message) []midi.Message
	Send(msgs []midi.Message)
}

// Driver runs the engine until ctx is done.
type Driver interface {
	Run(ctx context.Context) error
}

// New returns the driver selected by the engine's config.
func New(e *looper.Engine, mp MIDIPort, dbg *debug.Context) (Driver, error) {
	switch b := e.Config().Audio.Backend; b {
	case config.BackendPortAudio:
		return NewPortAudio(e, mp, dbg), nil
	case config.BackendOto:
		return NewOto(e, mp, dbg), nil
	case config.BackendOffline:
		return NewOffline(e, mp), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", b)
	}
}

// cycle is the per-quantum glue every driver shares: it gathers MIDI
// input, runs the engine over ports and forwards MIDI output.
type cycle struct {
	engine *looper.Engine
	port   MIDIPort
	ports  looper.Ports
	midiIn []midi.Message
	queued []midi.Message // injected input for the next quantum
}

func newCycle(e *looper.Engine, mp MIDIPort) *cycle {
	n := e.Config().Engine.MaxMIDIEvents
	return &cycle{
		engine: e,
		port:   mp,
		midiIn: make([]midi.Message, 0, n),
		queued: make([]midi.Message, 0, n),
	}
}

// run processes one quantum of n frames over c.ports. Errors are fatal
// and also reach Engine.FatalChan.
func (c *cycle) run(n int) error {
	in := c.midiIn[:0]
	if c.port != nil {
		in = c.port.Receive(in)
	}
	for _, m := range c.queued {
		if len(in) == cap(in) {
			break
		}
		in = append(in, m)
	}
	c.queued = c.queued[:0]
	c.ports.MIDIIn = in

	err := c.engine.Process(&c.ports, uint32(n))
	if c.port != nil && len(c.ports.MIDIOut) > 0 {
		c.port.Send(c.ports.MIDIOut)
	}
	return err
}

func makePlanar(channels, frames int) [][]float32 {
	bufs := make([][]float32, channels)
	for i := range bufs {
		bufs[i] = make([]float32, frames)
	}
	return bufs
}
