package backend

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"go-looper/config"
	"go-looper/debug"
	"go-looper/looper"

	"github.com/ebitengine/oto/v3"
)

// Oto runs the engine from an oto player: each Read pulls as many quanta
// as it needs. There is no audio input.
type Oto struct {
	cycle *cycle
	cfg   config.AudioConfig
	log   *debug.Logger

	out [][]float32
	buf []byte // one quantum, interleaved float32 LE
	off int    // bytes of buf already handed out
}

func NewOto(e *looper.Engine, mp MIDIPort, dbg *debug.Context) *Oto {
	cfg := e.Config().Audio
	o := &Oto{
		cycle: newCycle(e, mp),
		cfg:   cfg,
		log:   dbg.Logger("oto"),
		out:   makePlanar(cfg.OutputChannels, cfg.FramesPerBuffer),
		buf:   make([]byte, cfg.FramesPerBuffer*cfg.OutputChannels*4),
	}
	o.off = len(o.buf)
	o.cycle.ports.AudioOut = o.out
	return o
}

// Read implements io.Reader for oto.Player.
func (o *Oto) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if o.off == len(o.buf) {
			o.render()
		}
		c := copy(p[n:], o.buf[o.off:])
		o.off += c
		n += c
	}
	return n, nil
}

// render runs one quantum and interleaves it into buf. After a fatal
// error the engine outputs silence, which is what gets played.
func (o *Oto) render() {
	o.cycle.run(o.cfg.FramesPerBuffer)
	ch := len(o.out)
	for i := 0; i < o.cfg.FramesPerBuffer; i++ {
		for c, s := range o.out {
			binary.LittleEndian.PutUint32(o.buf[(i*ch+c)*4:], math.Float32bits(s[i]))
		}
	}
	o.off = 0
}

// Run plays until ctx is done. oto allows one context per process.
func (o *Oto) Run(ctx context.Context) error {
	octx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   o.cfg.SampleRate,
		ChannelCount: o.cfg.OutputChannels,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return fmt.Errorf("oto context: %w", err)
	}
	select {
	case <-ready:
	case <-ctx.Done():
		return nil
	}

	player := octx.NewPlayer(o)
	player.SetBufferSize(len(o.buf) * 2)
	player.Play()
	o.log.Log("playing: %d Hz, %d channels", o.cfg.SampleRate, o.cfg.OutputChannels)

	<-ctx.Done()
	return player.Close()
}
