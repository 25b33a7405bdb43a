package midi

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go-looper/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// PortEvent is emitted when a configured port connects or disconnects
type PortEvent struct {
	Type PortEventType
	Name string
	Out  bool // output port (otherwise input)
}

type PortEventType int

const (
	PortConnected PortEventType = iota
	PortDisconnected
)

// outMsg is a message queued for the sender goroutine, copied inline so
// the audio thread never allocates.
type outMsg struct {
	data [MaxChannelVoiceSize]byte
	n    uint8
}

// PortManager connects the engine to one MIDI input and one MIDI output,
// reconnecting when the devices come and go. Receive and Send are called
// from the audio thread and never block.
type PortManager struct {
	log      *debug.Logger
	inName   string
	outName  string
	pollRate time.Duration

	mu         sync.Mutex
	inPort     drivers.In
	outPort    drivers.Out
	stopListen func()
	send       func(gomidi.Message) error

	inbox  chan Message
	outbox chan outMsg
	events chan PortEvent

	droppedIn  atomic.Uint64
	droppedOut atomic.Uint64
}

// NewPortManager watches for ports whose names contain inName and outName
// (case-insensitive). An empty name disables that direction.
func NewPortManager(inName, outName string, dbg *debug.Context) *PortManager {
	return &PortManager{
		log:      dbg.Logger("midi"),
		inName:   inName,
		outName:  outName,
		pollRate: time.Second,
		inbox:    make(chan Message, 1024),
		outbox:   make(chan outMsg, 1024),
		events:   make(chan PortEvent, 16),
	}
}

// Events returns a channel of connect/disconnect events
func (pm *PortManager) Events() <-chan PortEvent {
	return pm.events
}

// Dropped returns how many input and output messages were lost to full
// queues. Output longer than a channel voice message counts as dropped.
func (pm *PortManager) Dropped() (in, out uint64) {
	return pm.droppedIn.Load(), pm.droppedOut.Load()
}

// Receive appends pending input to dst, all stamped at the start of the
// quantum.
func (pm *PortManager) Receive(dst []Message) []Message {
	for len(dst) < cap(dst) {
		select {
		case m := <-pm.inbox:
			m.Time = 0
			dst = append(dst, m)
		default:
			return dst
		}
	}
	return dst
}

// Send queues msgs for output. Message bytes are copied; messages longer
// than MaxChannelVoiceSize are dropped.
func (pm *PortManager) Send(msgs []Message) {
	for _, m := range msgs {
		if len(m.Data) == 0 || len(m.Data) > MaxChannelVoiceSize {
			pm.droppedOut.Add(1)
			continue
		}
		var o outMsg
		o.n = uint8(copy(o.data[:], m.Data))
		select {
		case pm.outbox <- o:
		default:
			pm.droppedOut.Add(1)
		}
	}
}

// deliver hands a message from the driver to the audio thread.
func (pm *PortManager) deliver(data []byte) {
	b := make([]byte, len(data))
	copy(b, data)
	select {
	case pm.inbox <- NewMessage(0, b):
	default:
		pm.droppedIn.Add(1)
	}
}

// Run polls for ports and forwards output until ctx is done (blocking - run
// in goroutine)
func (pm *PortManager) Run(ctx context.Context) {
	ticker := time.NewTicker(pm.pollRate)
	defer ticker.Stop()

	pm.scan()

	for {
		select {
		case <-ctx.Done():
			pm.closeAll()
			return
		case <-ticker.C:
			pm.scan()
		case o := <-pm.outbox:
			pm.write(o)
		}
	}
}

func (pm *PortManager) write(o outMsg) {
	pm.mu.Lock()
	send := pm.send
	pm.mu.Unlock()
	if send == nil {
		return
	}
	if err := send(gomidi.Message(o.data[:o.n])); err != nil {
		pm.log.LogEvery(100, "send failed: %v", err)
	}
}

// listPorts gets the driver's ports, giving up after 3s (CoreMIDI can hang)
func listPorts() ([]drivers.In, []drivers.Out, error) {
	type portsResult struct {
		in  []drivers.In
		out []drivers.Out
	}
	ch := make(chan portsResult, 1)
	go func() {
		ch <- portsResult{in: gomidi.GetInPorts(), out: gomidi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		return r.in, r.out, nil
	case <-time.After(3 * time.Second):
		return nil, nil, fmt.Errorf("MIDI port listing timed out")
	}
}

// ListPorts returns the names of all MIDI input and output ports.
func ListPorts() (ins, outs []string, err error) {
	in, out, err := listPorts()
	if err != nil {
		return nil, nil, err
	}
	for _, p := range in {
		ins = append(ins, p.String())
	}
	for _, p := range out {
		outs = append(outs, p.String())
	}
	return ins, outs, nil
}

// matchPort returns the index of the first name containing want, or -1.
func matchPort(names []string, want string) int {
	if want == "" {
		return -1
	}
	want = strings.ToLower(want)
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), want) {
			return i
		}
	}
	return -1
}

func (pm *PortManager) scan() {
	inPorts, outPorts, err := listPorts()
	if err != nil {
		// skip this scan; user may need to restart the MIDI server
		pm.log.LogEvery(10, "%v", err)
		return
	}

	inNames := make([]string, len(inPorts))
	for i, p := range inPorts {
		inNames[i] = p.String()
	}
	outNames := make([]string, len(outPorts))
	for i, p := range outPorts {
		outNames[i] = p.String()
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if i := matchPort(inNames, pm.inName); i >= 0 {
		if pm.inPort == nil || pm.inPort.String() != inNames[i] {
			pm.closeIn()
			pm.openIn(inPorts[i])
		}
	} else if pm.inPort != nil {
		pm.closeIn()
	}

	if i := matchPort(outNames, pm.outName); i >= 0 {
		if pm.outPort == nil || pm.outPort.String() != outNames[i] {
			pm.closeOut()
			pm.openOut(outPorts[i])
		}
	} else if pm.outPort != nil {
		pm.closeOut()
	}
}

func (pm *PortManager) openIn(p drivers.In) {
	stop, err := gomidi.ListenTo(p, func(msg gomidi.Message, timestampms int32) {
		pm.deliver(msg.Bytes())
	}, gomidi.UseSysEx())
	if err != nil {
		pm.log.Error(err, "open input %s", p.String())
		return
	}
	pm.inPort = p
	pm.stopListen = stop
	pm.log.Log("input connected: %s", p.String())
	pm.emit(PortEvent{Type: PortConnected, Name: p.String()})
}

func (pm *PortManager) openOut(p drivers.Out) {
	send, err := gomidi.SendTo(p)
	if err != nil {
		pm.log.Error(err, "open output %s", p.String())
		return
	}
	pm.outPort = p
	pm.send = send
	pm.log.Log("output connected: %s", p.String())
	pm.emit(PortEvent{Type: PortConnected, Name: p.String(), Out: true})
}

func (pm *PortManager) closeIn() {
	if pm.inPort == nil {
		return
	}
	if pm.stopListen != nil {
		pm.stopListen()
	}
	name := pm.inPort.String()
	pm.inPort = nil
	pm.stopListen = nil
	pm.log.Log("input disconnected: %s", name)
	pm.emit(PortEvent{Type: PortDisconnected, Name: name})
}

func (pm *PortManager) closeOut() {
	if pm.outPort == nil {
		return
	}
	name := pm.outPort.String()
	pm.outPort = nil
	pm.send = nil
	pm.log.Log("output disconnected: %s", name)
	pm.emit(PortEvent{Type: PortDisconnected, Name: name, Out: true})
}

func (pm *PortManager) closeAll() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.closeIn()
	pm.closeOut()
}

func (pm *PortManager) emit(ev PortEvent) {
	select {
	case pm.events <- ev:
	default:
	}
}
