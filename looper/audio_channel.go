package looper

import (
	"fmt"

	"go-looper/pool"
)

// AudioChannel stores recorded samples in pooled buffers and keeps a ring
// buffer of the most recent input for pre-roll adoption.
//
// Loop position p plays data[startOffset+p]. Samples before startOffset
// are history kept from an adoption.
type AudioChannel struct {
	pool        *pool.Pool
	chunks      []*pool.Buffer // capacity fixed at creation
	chunkSize   int
	used        int // samples written, including history
	committed   int // samples visible to readers
	startOffset int

	ring       []float32
	ringPos    int
	ringFilled int

	adoptPending bool
	adoptN       int

	// per-quantum I/O, bound by Prepare
	in     []float32
	out    []float32
	cursor int

	InPort  int // index into the engine's audio inputs, -1 for none
	OutPort int // index into the engine's audio outputs, -1 for none

	dropped uint64
}

// NewAudioChannel creates a channel holding at most maxBuffers pooled
// buffers and a pre-roll ring of ringSize samples.
func NewAudioChannel(p *pool.Pool, maxBuffers, ringSize int) *AudioChannel {
	return &AudioChannel{
		pool:      p,
		chunks:    make([]*pool.Buffer, 0, maxBuffers),
		chunkSize: p.BufferSize(),
		ring:      make([]float32, ringSize),
		InPort:    -1,
		OutPort:   -1,
	}
}

// Capacity returns the maximum number of samples the channel can hold.
func (c *AudioChannel) Capacity() int {
	return cap(c.chunks) * c.chunkSize
}

// Len returns the committed sample count, history included.
func (c *AudioChannel) Len() int {
	return c.committed
}

// StartOffset returns the data index of loop position 0.
func (c *AudioChannel) StartOffset() int {
	return c.startOffset
}

// Dropped returns how many samples could not be stored.
func (c *AudioChannel) Dropped() uint64 {
	return c.dropped
}

// Prepare binds this quantum's buffers. Either may be nil.
func (c *AudioChannel) Prepare(in, out []float32) {
	c.in = in
	c.out = out
	c.cursor = 0
}

// AdoptRingBuffer schedules the ring buffer history to be spliced in
// front of the stored data at the start of the next Process call, with the
// newest n samples becoming the start of the loop.
func (c *AudioChannel) AdoptRingBuffer(n int) {
	c.adoptPending = true
	c.adoptN = n
}

func (c *AudioChannel) at(i int) float32 {
	return c.chunks[i/c.chunkSize].Data[i%c.chunkSize]
}

func (c *AudioChannel) set(i int, v float32) {
	c.chunks[i/c.chunkSize].Data[i%c.chunkSize] = v
}

// reserve makes sure index i is backed by a buffer.
func (c *AudioChannel) reserve(i int) bool {
	for i >= len(c.chunks)*c.chunkSize {
		if len(c.chunks) == cap(c.chunks) {
			return false
		}
		b := c.pool.Acquire()
		if b == nil {
			return false
		}
		c.chunks = append(c.chunks, b)
	}
	return true
}

func (c *AudioChannel) input(i int) float32 {
	if c.in == nil || c.cursor+i >= len(c.in) {
		return 0
	}
	return c.in[c.cursor+i]
}

// Process handles n samples of the current quantum. Positions and lengths
// are the owning loop's before and after this step.
func (c *AudioChannel) Process(mode Mode, n, posBefore, posAfter, lenBefore, lenAfter uint32) {
	if c.adoptPending {
		c.applyAdopt()
	}

	switch mode {
	case Recording:
		for i := 0; i < int(n); i++ {
			idx := c.startOffset + int(lenBefore) + i
			if !c.reserve(idx) {
				c.dropped++
				continue
			}
			c.set(idx, c.input(i))
			if idx+1 > c.used {
				c.used = idx + 1
			}
		}
	case Playing:
		if c.out != nil && lenAfter > 0 {
			for i := 0; i < int(n); i++ {
				p := posBefore + uint32(i)
				if p >= lenAfter {
					p %= lenAfter
				}
				idx := c.startOffset + int(p)
				if idx < c.used && c.cursor+i < len(c.out) {
					c.out[c.cursor+i] += c.at(idx)
				}
			}
		}
	}

	c.recordRing(int(n))
	c.cursor += int(n)
}

// recordRing appends this step's input to the pre-roll history.
func (c *AudioChannel) recordRing(n int) {
	size := len(c.ring)
	if size == 0 {
		return
	}
	for i := 0; i < n; i++ {
		c.ring[c.ringPos] = c.input(i)
		c.ringPos++
		if c.ringPos == size {
			c.ringPos = 0
		}
	}
	c.ringFilled += n
	if c.ringFilled > size {
		c.ringFilled = size
	}
}

func (c *AudioChannel) applyAdopt() {
	c.adoptPending = false
	n := c.adoptN
	if n < 0 {
		n = 0
	}

	h := c.ringFilled
	prefix := h
	if n > prefix {
		prefix = n // not enough history: the missing part is silence
	}
	if prefix == 0 {
		return
	}

	total := c.used + prefix
	if total > c.Capacity() {
		total = c.Capacity()
	}
	if total > 0 && !c.reserve(total-1) {
		total = len(c.chunks) * c.chunkSize
	}

	// shift existing data right, dropping whatever no longer fits
	for i := total - 1; i >= prefix; i-- {
		c.set(i, c.at(i-prefix))
	}
	if c.used+prefix > total {
		c.dropped += uint64(c.used + prefix - total)
	}

	zeros := prefix - h
	oldest := c.ringPos - h
	if oldest < 0 {
		oldest += len(c.ring)
	}
	for i := 0; i < prefix && i < total; i++ {
		if i < zeros {
			c.set(i, 0)
			continue
		}
		c.set(i, c.ring[(oldest+i-zeros)%len(c.ring)])
	}

	c.startOffset += prefix - n
	c.used = total
}

// Finalize makes this quantum's writes visible.
func (c *AudioChannel) Finalize() {
	c.committed = c.used
}

// clear forgets all stored data. Buffers go back to the pool, or stay
// with whoever still holds them.
func (c *AudioChannel) clear() {
	for i, b := range c.chunks {
		b.Release()
		c.chunks[i] = nil
	}
	c.chunks = c.chunks[:0]
	c.used = 0
	c.committed = 0
	c.startOffset = 0
}

// Release returns every buffer; the channel is empty afterwards.
func (c *AudioChannel) Release() {
	c.clear()
}

// AudioData is channel content staged off the audio thread.
type AudioData struct {
	chunks      []*pool.Buffer
	used        int
	startOffset int
}

// NewAudioData copies samples into pooled buffers. It may be called from
// any goroutine.
func NewAudioData(p *pool.Pool, samples []float32, maxBuffers int) (*AudioData, error) {
	size := p.BufferSize()
	need := (len(samples) + size - 1) / size
	if need > maxBuffers {
		return nil, fmt.Errorf("%d samples exceed channel capacity of %d", len(samples), maxBuffers*size)
	}
	d := &AudioData{chunks: make([]*pool.Buffer, 0, maxBuffers), used: len(samples)}
	for i := 0; i < need; i++ {
		b := p.Acquire()
		if b == nil {
			p.Replenish()
			if b = p.Acquire(); b == nil {
				d.Release()
				return nil, fmt.Errorf("buffer pool exhausted after %d of %d buffers", i, need)
			}
		}
		copy(b.Data, samples[i*size:])
		d.chunks = append(d.chunks, b)
	}
	return d, nil
}

// Release drops d's hold on its buffers.
func (d *AudioData) Release() {
	for _, b := range d.chunks {
		b.Release()
	}
	d.chunks = nil
}

// swap exchanges the channel's content with d. It does not allocate:
// both sides were sized to the same buffer limit.
func (c *AudioChannel) swap(d *AudioData) bool {
	cl, dl := len(c.chunks), len(d.chunks)
	if cap(d.chunks) < cl || dl > cap(c.chunks) {
		return false
	}
	n := max(cl, dl)
	c.chunks = c.chunks[:n]
	d.chunks = d.chunks[:n]
	for i := 0; i < n; i++ {
		c.chunks[i], d.chunks[i] = d.chunks[i], c.chunks[i]
	}
	c.chunks = c.chunks[:dl]
	d.chunks = d.chunks[:cl]

	c.used, d.used = d.used, c.used
	c.startOffset, d.startOffset = d.startOffset, c.startOffset
	c.committed = c.used
	return true
}

// SetContents replaces the stored data with samples and resets the start
// offset. Call it only while the channel is not being processed.
func (c *AudioChannel) SetContents(samples []float32) error {
	d, err := NewAudioData(c.pool, samples, cap(c.chunks))
	if err != nil {
		return err
	}
	ok := c.swap(d)
	d.Release()
	if !ok {
		return fmt.Errorf("content does not fit channel")
	}
	return nil
}

// Contents returns a copy of the committed data, history included.
func (c *AudioChannel) Contents() []float32 {
	out := make([]float32, c.committed)
	for i := range out {
		out[i] = c.at(i)
	}
	return out
}

// Lend appends retained references to the buffers backing the committed
// data to dst. The caller must Release each one.
func (c *AudioChannel) Lend(dst []*pool.Buffer) (bufs []*pool.Buffer, used, startOffset int) {
	need := (c.committed + c.chunkSize - 1) / c.chunkSize
	for i := 0; i < need && len(dst) < cap(dst); i++ {
		dst = append(dst, c.chunks[i].Retain())
	}
	return dst, c.committed, c.startOffset
}

// Assemble copies lent buffers into one slice of used samples and releases
// them.
func Assemble(bufs []*pool.Buffer, used int) []float32 {
	out := make([]float32, 0, used)
	for _, b := range bufs {
		take := used - len(out)
		if take > len(b.Data) {
			take = len(b.Data)
		}
		out = append(out, b.Data[:take]...)
		b.Release()
	}
	return out
}
