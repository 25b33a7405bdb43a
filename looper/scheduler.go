package looper

import (
	"fmt"

	"github.com/pkg/errors"
)

// DefaultMaxSteps is how many zero-length sub-quanta in a row the
// scheduler tolerates before declaring itself stuck.
const DefaultMaxSteps = 1000

// ErrInvalidBufferSize reports I/O buffers shorter than the quantum.
var ErrInvalidBufferSize = errors.New("invalid buffer size")

// StuckProcessingError means the scheduler kept finding points of interest
// at the current offset without making progress.
type StuckProcessingError struct {
	Steps     int
	Remaining uint32
}

func (e *StuckProcessingError) Error() string {
	return fmt.Sprintf("loop processing stuck: %d zero-length steps with %d samples left", e.Steps, e.Remaining)
}

// ProcessLoops advances all loops together by n samples, splitting the
// quantum at every point of interest so wraps and transitions land on the
// exact sample. Each step processes every loop, then handles POIs on
// every loop, then sync on every loop.
func ProcessLoops(loops []*Loop, n uint32) error {
	return processLoops(loops, n, DefaultMaxSteps)
}

// scheduled is what the scheduler needs from a loop.
type scheduled interface {
	NextPOI() (uint32, bool)
	Process(n uint32)
	HandlePOI()
	HandleSync()
}

func processLoops[L scheduled](loops []L, n uint32, maxSteps int) error {
	stalled := 0
	for {
		until := n
		for _, l := range loops {
			if poi, ok := l.NextPOI(); ok && poi < until {
				until = poi
			}
		}

		for _, l := range loops {
			l.Process(until)
		}
		for _, l := range loops {
			l.HandlePOI()
		}
		for _, l := range loops {
			l.HandleSync()
		}

		if until >= n {
			return nil
		}
		n -= until

		if until == 0 {
			stalled++
			if stalled > maxSteps {
				return errors.WithStack(&StuckProcessingError{Steps: stalled, Remaining: n})
			}
		} else {
			stalled = 0
		}
	}
}
