package looper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"go-looper/config"
	"go-looper/debug"
	"go-looper/midi"
	"go-looper/pool"

	"github.com/pkg/errors"
)

// Ports carries one quantum of I/O. Inputs and outputs are indexed by
// port; every slice must hold at least the quantum's frame count.
// MIDIIn times are offsets into the quantum, ascending.
type Ports struct {
	AudioIn  [][]float32
	AudioOut [][]float32
	MIDIIn   []midi.Message

	// MIDIOut is set by Process and stays valid until the next call.
	MIDIOut []midi.Message
}

// ChannelRef addresses one channel of one loop.
type ChannelRef struct {
	Loop    int
	Channel int
}

// Engine owns the loops and runs them once per audio quantum. Process is
// called from the audio thread; everything else is safe to call from
// control goroutines and reaches the loops through the command queue.
type Engine struct {
	cfg  *config.Config
	log  *debug.Logger
	pool *pool.Pool

	queue    *CommandQueue
	maxSteps int
	ringSize int

	// audio thread only
	loops   []*Loop
	midiOut []midi.Message

	// control side view of which loops exist
	ctrlMu sync.Mutex
	byID   map[int]*Loop
	nextID int

	snapMu sync.Mutex
	snaps  []LoopSnapshot

	failed    atomic.Bool
	fatalMu   sync.Mutex
	fatalErr  error
	fatalChan chan error

	quanta     atomic.Uint64
	staleSnaps atomic.Uint64
	rejected   atomic.Uint64

	// UpdateChan is signalled (non-blocking) when new state is available
	UpdateChan chan struct{}
}

// NewEngine allocates everything the audio thread will need.
func NewEngine(cfg *config.Config, dbg *debug.Context) *Engine {
	ec := cfg.Engine
	maxLoops := ec.MaxLoops
	if maxLoops <= 0 {
		maxLoops = 1
	}
	maxSteps := ec.MaxQuantumSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Engine{
		cfg:        cfg,
		log:        dbg.Logger("engine"),
		pool:       pool.New(ec.PoolBufferSize, ec.PoolBuffers, ec.PoolBuffers*4, ec.PoolLowWater),
		queue:      NewCommandQueue(ec.CommandQueueSize),
		maxSteps:   maxSteps,
		ringSize:   cfg.RingBufferSamples(),
		loops:      make([]*Loop, 0, maxLoops),
		midiOut:    make([]midi.Message, 0, ec.MaxMIDIEvents),
		byID:       make(map[int]*Loop),
		snaps:      make([]LoopSnapshot, 0, maxLoops),
		fatalChan:  make(chan error, 1),
		UpdateChan: make(chan struct{}, 1),
	}
}

// Pool returns the engine's buffer pool.
func (e *Engine) Pool() *pool.Pool {
	return e.pool
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Process runs one quantum of n frames. It never blocks or allocates. A
// non-nil error is fatal: from then on the engine only outputs silence.
func (e *Engine) Process(p *Ports, n uint32) error {
	for _, out := range p.AudioOut {
		clear(out)
	}
	e.midiOut = e.midiOut[:0]
	p.MIDIOut = e.midiOut

	if e.failed.Load() {
		return e.Fatal()
	}
	if err := validatePorts(p, n); err != nil {
		e.fail(err)
		return err
	}

	e.queue.Drain()

	for _, l := range e.loops {
		e.bind(l, p, n)
	}

	if err := processLoops(e.loops, n, e.maxSteps); err != nil {
		e.fail(err)
		for _, out := range p.AudioOut {
			clear(out)
		}
		e.midiOut = e.midiOut[:0]
		p.MIDIOut = e.midiOut
		return err
	}

	e.publish()
	e.quanta.Add(1)
	p.MIDIOut = e.midiOut
	return nil
}

func validatePorts(p *Ports, n uint32) error {
	for i, in := range p.AudioIn {
		if len(in) < int(n) {
			return errors.Wrapf(ErrInvalidBufferSize, "audio input %d has %d frames, quantum is %d", i, len(in), n)
		}
	}
	for i, out := range p.AudioOut {
		if len(out) < int(n) {
			return errors.Wrapf(ErrInvalidBufferSize, "audio output %d has %d frames, quantum is %d", i, len(out), n)
		}
	}
	return nil
}

// bind points l's channels at this quantum's buffers.
func (e *Engine) bind(l *Loop, p *Ports, n uint32) {
	for _, c := range l.channels {
		switch c.Kind {
		case AudioKind:
			var in, out []float32
			if a := c.Audio; a.InPort >= 0 && a.InPort < len(p.AudioIn) {
				in = p.AudioIn[a.InPort][:n]
			}
			if a := c.Audio; a.OutPort >= 0 && a.OutPort < len(p.AudioOut) {
				out = p.AudioOut[a.OutPort][:n]
			}
			c.Audio.Prepare(in, out)
		case MIDIKind:
			c.MIDI.Prepare(p.MIDIIn, &e.midiOut)
		}
	}
}

func (e *Engine) fail(err error) {
	e.fatalMu.Lock()
	defer e.fatalMu.Unlock()
	if e.fatalErr != nil {
		return
	}
	e.fatalErr = err
	e.failed.Store(true)
	select {
	case e.fatalChan <- err:
	default:
	}
}

// Fatal returns the error that stopped the engine, if any.
func (e *Engine) Fatal() error {
	e.fatalMu.Lock()
	defer e.fatalMu.Unlock()
	return e.fatalErr
}

// FatalChan delivers the first fatal error.
func (e *Engine) FatalChan() <-chan error {
	return e.fatalChan
}

// publish copies loop state for readers, skipping the quantum if a reader
// holds the lock.
func (e *Engine) publish() {
	if !e.snapMu.TryLock() {
		e.staleSnaps.Add(1)
		return
	}
	e.snaps = e.snaps[:0]
	for _, l := range e.loops {
		e.snaps = append(e.snaps, l.snapshot())
	}
	e.snapMu.Unlock()
}

// Snapshot returns the state published after the latest quantum.
func (e *Engine) Snapshot() []LoopSnapshot {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	out := make([]LoopSnapshot, len(e.snaps))
	copy(out, e.snaps)
	return out
}

// Quanta returns how many quanta have been processed.
func (e *Engine) Quanta() uint64 {
	return e.quanta.Load()
}

// Run does the engine's housekeeping until ctx is done: pool refills, UI
// notification at a fixed rate, periodic stats.
func (e *Engine) Run(ctx context.Context) {
	go e.pool.Run(ctx)

	ticker := time.NewTicker(time.Second / uiFPS)
	defer ticker.Stop()

	var last uint64
	reported := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if q := e.quanta.Load(); q != last {
				last = q
				e.notify()
			}
			if err := e.Fatal(); err != nil && !reported {
				reported = true
				e.log.Error(err, "engine stopped")
				e.notify()
			}
			st := e.pool.Stats()
			e.log.LogEvery(uiFPS*10, "quanta=%d pool free=%d allocated=%d misses=%d stale snapshots=%d rejected commands=%d",
				last, st.Free, st.Allocated, st.Misses, e.staleSnaps.Load(), e.rejected.Load())
		}
	}
}

const uiFPS = 30

func (e *Engine) notify() {
	select {
	case e.UpdateChan <- struct{}{}:
	default:
	}
}

// push enqueues cmd, counting rejections.
func (e *Engine) push(cmd Command) error {
	if err := e.queue.TryPush(cmd); err != nil {
		e.rejected.Add(1)
		return err
	}
	return nil
}

// find looks a loop up on the audio thread.
func (e *Engine) find(id int) *Loop {
	for _, l := range e.loops {
		if l.id == id {
			return l
		}
	}
	return nil
}

func (e *Engine) findChannel(ref ChannelRef) *Channel {
	l := e.find(ref.Loop)
	if l == nil || ref.Channel < 0 || ref.Channel >= len(l.channels) {
		return nil
	}
	return l.channels[ref.Channel]
}

// ErrUnknownLoop is returned for loop IDs the engine does not know.
var ErrUnknownLoop = errors.New("unknown loop")

// ErrTooManyLoops is returned by AddLoop when MaxLoops exist.
var ErrTooManyLoops = errors.New("too many loops")

func (e *Engine) lookup(id int) (*Loop, error) {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()
	l, ok := e.byID[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownLoop, "loop %d", id)
	}
	return l, nil
}

// AddLoop creates a stopped, empty loop and returns its ID.
func (e *Engine) AddLoop() (int, error) {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()
	if len(e.byID) >= cap(e.loops) {
		return 0, ErrTooManyLoops
	}
	l := NewLoop()
	l.id = e.nextID
	if err := e.push(func() {
		if len(e.loops) < cap(e.loops) {
			e.loops = append(e.loops, l)
		}
	}); err != nil {
		return 0, err
	}
	e.nextID++
	e.byID[l.id] = l
	e.log.Log("add loop %d", l.id)
	return l.id, nil
}

// RemoveLoop discards a loop. Sounding notes get note-offs, its audio
// buffers go back to the pool, and loops synced to it lose their source.
func (e *Engine) RemoveLoop(id int) error {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()
	if _, ok := e.byID[id]; !ok {
		return errors.Wrapf(ErrUnknownLoop, "loop %d", id)
	}
	if err := e.push(func() {
		for i, l := range e.loops {
			if l.id != id {
				continue
			}
			l.removed = true
			for _, c := range l.channels {
				if c.Kind == MIDIKind {
					c.MIDI.Prepare(nil, &e.midiOut)
				}
			}
			l.stop()
			for _, c := range l.channels {
				c.release()
			}
			copy(e.loops[i:], e.loops[i+1:])
			e.loops[len(e.loops)-1] = nil
			e.loops = e.loops[:len(e.loops)-1]
			return
		}
	}); err != nil {
		return err
	}
	delete(e.byID, id)
	e.log.Log("remove loop %d", id)
	return nil
}

// AddAudioChannel gives a loop an audio channel reading input port in and
// mixing into output port out (-1 for none).
func (e *Engine) AddAudioChannel(id, in, out int) error {
	if _, err := e.lookup(id); err != nil {
		return err
	}
	a := NewAudioChannel(e.pool, e.cfg.Engine.MaxChannelBuffers, e.ringSize)
	a.InPort, a.OutPort = in, out
	c := NewAudio(a)
	return e.push(func() {
		if l := e.find(id); l == nil || !l.AddChannel(c) {
			a.Release()
		}
	})
}

// AddMIDIChannel gives a loop a MIDI channel on the engine's MIDI I/O.
func (e *Engine) AddMIDIChannel(id int) error {
	if _, err := e.lookup(id); err != nil {
		return err
	}
	c := NewMIDI(NewMIDIChannel(e.cfg.Engine.MaxMIDIEvents))
	return e.push(func() {
		if l := e.find(id); l != nil {
			l.AddChannel(c)
		}
	})
}

// onLoop queues fn to run against loop id.
func (e *Engine) onLoop(id int, fn func(l *Loop)) error {
	if _, err := e.lookup(id); err != nil {
		return err
	}
	return e.push(func() {
		if l := e.find(id); l != nil {
			fn(l)
		}
	})
}

func (e *Engine) SetMode(id int, m Mode) error {
	return e.onLoop(id, func(l *Loop) { l.SetMode(m) })
}

func (e *Engine) PlanTransition(id int, t PlannedTransition) error {
	return e.onLoop(id, func(l *Loop) { l.PlanTransition(t) })
}

func (e *Engine) ClearPlanned(id int) error {
	return e.onLoop(id, func(l *Loop) { l.ClearPlanned() })
}

func (e *Engine) SetLength(id int, n uint32) error {
	return e.onLoop(id, func(l *Loop) { l.SetLength(n) })
}

func (e *Engine) SetPosition(id int, p uint32) error {
	return e.onLoop(id, func(l *Loop) { l.SetPosition(p) })
}

func (e *Engine) AdoptRingBuffer(id int, n uint32) error {
	return e.onLoop(id, func(l *Loop) { l.AdoptRingBuffer(n) })
}

// SetSyncSource makes loop id follow loop src; a negative src clears it.
func (e *Engine) SetSyncSource(id, src int) error {
	var w weak.Pointer[Loop]
	if src >= 0 {
		s, err := e.lookup(src)
		if err != nil {
			return err
		}
		w = weak.Make(s)
	}
	ok := src >= 0
	return e.onLoop(id, func(l *Loop) { l.setSync(w, ok) })
}

// SetAudioContents replaces a channel's samples. The data is staged in
// pool buffers here and swapped in on the audio thread.
func (e *Engine) SetAudioContents(ctx context.Context, ref ChannelRef, samples []float32) error {
	if _, err := e.lookup(ref.Loop); err != nil {
		return err
	}
	d, err := NewAudioData(e.pool, samples, e.cfg.Engine.MaxChannelBuffers)
	if err != nil {
		return err
	}
	var swapped, found bool
	if err := e.queue.CallOwned(ctx, func() {
		if c := e.findChannel(ref); c != nil && c.Kind == AudioKind {
			found = true
			swapped = c.Audio.swap(d)
		}
	}, d.Release); err != nil {
		return err
	}
	d.Release()
	switch {
	case !found:
		return fmt.Errorf("loop %d has no audio channel %d", ref.Loop, ref.Channel)
	case !swapped:
		return fmt.Errorf("content does not fit channel %d of loop %d", ref.Channel, ref.Loop)
	}
	return nil
}

// AudioContents returns a copy of a channel's committed samples and the
// index of loop position 0 within them.
func (e *Engine) AudioContents(ctx context.Context, ref ChannelRef) ([]float32, int, error) {
	if _, err := e.lookup(ref.Loop); err != nil {
		return nil, 0, err
	}
	bufs := make([]*pool.Buffer, 0, e.cfg.Engine.MaxChannelBuffers)
	var used, start int
	found := false
	if err := e.queue.CallOwned(ctx, func() {
		if c := e.findChannel(ref); c != nil && c.Kind == AudioKind {
			found = true
			bufs, used, start = c.Audio.Lend(bufs)
		}
	}, func() { releaseBuffers(bufs) }); err != nil {
		return nil, 0, err
	}
	if !found {
		return nil, 0, fmt.Errorf("loop %d has no audio channel %d", ref.Loop, ref.Channel)
	}
	return Assemble(bufs, used), start, nil
}

func releaseBuffers(bufs []*pool.Buffer) {
	for _, b := range bufs {
		b.Release()
	}
}

// SetMIDIContents replaces a channel's messages with a copy of msgs.
func (e *Engine) SetMIDIContents(ctx context.Context, ref ChannelRef, msgs []midi.Message) error {
	if _, err := e.lookup(ref.Loop); err != nil {
		return err
	}
	var cerr error
	found := false
	if err := e.queue.Call(ctx, func() {
		if c := e.findChannel(ref); c != nil && c.Kind == MIDIKind {
			found = true
			cerr = c.MIDI.SetContents(msgs)
		}
	}); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("loop %d has no MIDI channel %d", ref.Loop, ref.Channel)
	}
	return cerr
}

// MIDIContents returns a copy of a channel's committed messages.
func (e *Engine) MIDIContents(ctx context.Context, ref ChannelRef) ([]midi.Message, error) {
	if _, err := e.lookup(ref.Loop); err != nil {
		return nil, err
	}
	limit := e.cfg.Engine.MaxMIDIEvents
	dst := make([]midi.Message, 0, limit)
	buf := make([]byte, 0, limit*midi.MaxChannelVoiceSize+4096)
	found := false
	if err := e.queue.Call(ctx, func() {
		if c := e.findChannel(ref); c != nil && c.Kind == MIDIKind {
			found = true
			dst, buf = c.MIDI.ContentsInto(dst, buf)
		}
	}); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("loop %d has no MIDI channel %d", ref.Loop, ref.Channel)
	}
	return dst, nil
}

// Sync runs an empty command through the queue, returning once every
// command queued before it has been applied.
func (e *Engine) Sync(ctx context.Context) error {
	return e.queue.Call(ctx, func() {})
}
