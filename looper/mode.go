package looper

// Mode is what a loop is doing with its channels.
type Mode uint8

const (
	Stopped Mode = iota
	Playing
	Recording
)

func (m Mode) String() string {
	switch m {
	case Stopped:
		return "Stopped"
	case Playing:
		return "Playing"
	case Recording:
		return "Recording"
	default:
		return "Unknown"
	}
}

// Trigger decides when a planned transition fires.
type Trigger uint8

const (
	// Immediate fires at the next point of interest (the current offset).
	Immediate Trigger = iota
	// OnSyncSourceWrap fires when the sync source wraps or is triggered.
	OnSyncSourceWrap
)

func (t Trigger) String() string {
	if t == OnSyncSourceWrap {
		return "OnSync"
	}
	return "Immediate"
}

// PlannedTransition is a mode change waiting for its trigger.
// Delay is the number of sync triggers to let pass first; it is ignored
// for Immediate transitions.
type PlannedTransition struct {
	Mode    Mode
	Trigger Trigger
	Delay   int
}
