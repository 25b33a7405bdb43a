package looper

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrQueueFull is returned by TryPush when the command queue is at
// capacity.
var ErrQueueFull = errors.New("command queue full")

// Command is a deferred mutation run on the audio thread.
type Command func()

// CommandQueue carries commands from control goroutines to the audio
// thread. It has a fixed capacity; the audio side never blocks on it.
type CommandQueue struct {
	ch chan Command
}

func NewCommandQueue(size int) *CommandQueue {
	if size < 1 {
		size = 1
	}
	return &CommandQueue{ch: make(chan Command, size)}
}

// TryPush enqueues cmd without blocking.
func (q *CommandQueue) TryPush(cmd Command) error {
	select {
	case q.ch <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Push enqueues cmd, waiting for room. Never call it from the audio
// thread.
func (q *CommandQueue) Push(ctx context.Context, cmd Command) error {
	select {
	case q.ch <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain runs queued commands in FIFO order and returns how many ran.
// Commands pushed while draining wait for the next call once the
// capacity's worth has run.
func (q *CommandQueue) Drain() int {
	n := 0
	for n < cap(q.ch) {
		select {
		case cmd := <-q.ch:
			cmd()
			n++
		default:
			return n
		}
	}
	return n
}

// Len returns the number of queued commands.
func (q *CommandQueue) Len() int {
	return len(q.ch)
}

// Call runs fn on the audio thread and waits for it to finish.
func (q *CommandQueue) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := q.Push(ctx, func() {
		fn()
		close(done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const (
	callPending int32 = iota
	callDone
	callAbandoned
)

// CallOwned is Call for commands whose results hold resources. When the
// caller gives up, cleanup runs exactly once: on the audio thread after
// fn if fn had not run yet, otherwise on the calling goroutine.
func (q *CommandQueue) CallOwned(ctx context.Context, fn, cleanup func()) error {
	var state atomic.Int32
	done := make(chan struct{})
	if err := q.Push(ctx, func() {
		fn()
		if !state.CompareAndSwap(callPending, callDone) {
			cleanup()
		}
		close(done)
	}); err != nil {
		cleanup()
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if !state.CompareAndSwap(callPending, callAbandoned) {
			// fn already ran; its results are ours to drop
			cleanup()
		}
		return ctx.Err()
	}
}
