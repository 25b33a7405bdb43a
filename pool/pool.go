// Package pool hands out fixed-size sample buffers without allocating on
// the audio thread. Buffers are reference counted so they can be lent to
// other goroutines; a buffer only returns to the free list when its last
// holder releases it.
package pool

import (
	"context"
	"sync/atomic"
	"time"
)

// Buffer is one pooled block of samples. Data always has the pool's
// buffer size.
type Buffer struct {
	Data []float32
	refs atomic.Int32
	pool *Pool
}

// Retain adds a holder.
func (b *Buffer) Retain() *Buffer {
	b.refs.Add(1)
	return b
}

// Release drops a holder; the last release returns b to its pool.
func (b *Buffer) Release() {
	switch n := b.refs.Add(-1); {
	case n == 0:
		b.pool.put(b)
	case n < 0:
		panic("pool: buffer released more times than retained")
	}
}

// Refs reports the current number of holders.
func (b *Buffer) Refs() int32 {
	return b.refs.Load()
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Free      int
	Allocated int
	Misses    uint64
}

// Pool is a bounded free list of Buffers.
type Pool struct {
	size     int
	target   int
	max      int
	lowWater int

	free      chan *Buffer
	wake      chan struct{}
	allocated atomic.Int64
	misses    atomic.Uint64
}

// New creates a pool of initial buffers of bufferSize samples. The pool
// never holds more than max buffers; the replenisher keeps the free count
// at or above lowWater while allowed to grow.
func New(bufferSize, initial, max, lowWater int) *Pool {
	if max < initial {
		max = initial
	}
	p := &Pool{
		size:     bufferSize,
		target:   initial,
		max:      max,
		lowWater: lowWater,
		free:     make(chan *Buffer, max),
		wake:     make(chan struct{}, 1),
	}
	for i := 0; i < initial; i++ {
		p.free <- p.newBuffer()
	}
	return p
}

func (p *Pool) newBuffer() *Buffer {
	p.allocated.Add(1)
	return &Buffer{Data: make([]float32, p.size), pool: p}
}

// BufferSize returns the number of samples per buffer.
func (p *Pool) BufferSize() int {
	return p.size
}

// Acquire takes a buffer with one holder, or returns nil if the pool is
// exhausted. It never allocates.
func (p *Pool) Acquire() *Buffer {
	select {
	case b := <-p.free:
		b.refs.Store(1)
		if len(p.free) < p.lowWater {
			p.signal()
		}
		return b
	default:
		p.misses.Add(1)
		p.signal()
		return nil
	}
}

func (p *Pool) put(b *Buffer) {
	select {
	case p.free <- b:
	default:
		// over capacity; let the GC have it
		p.allocated.Add(-1)
	}
}

func (p *Pool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Free:      len(p.free),
		Allocated: int(p.allocated.Load()),
		Misses:    p.misses.Load(),
	}
}

// Replenish allocates buffers until the free list is back at its initial
// size or the pool reaches max. It returns how many were added. Call it
// off the audio thread.
func (p *Pool) Replenish() int {
	added := 0
	for len(p.free) < p.target && int(p.allocated.Load()) < p.max {
		b := p.newBuffer()
		select {
		case p.free <- b:
			added++
		default:
			p.allocated.Add(-1)
			return added
		}
	}
	return added
}

// Run replenishes the pool whenever it runs low until ctx is done.
func (p *Pool) Run(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			p.Replenish()
		case <-ticker.C:
			if len(p.free) < p.lowWater {
				p.Replenish()
			}
		}
	}
}
