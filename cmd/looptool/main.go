package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"time"

	"go-looper/backend"
	"go-looper/config"
	"go-looper/debug"
	"go-looper/export"
	"go-looper/looper"
	"go-looper/midi"
	"go-looper/resample"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "ports":
		err = listPorts()
	case "watch":
		err = watch(arg(2), arg(3))
	case "render":
		if len(os.Args) < 3 {
			usage()
			return
		}
		seconds := 4.0
		if s := arg(3); s != "" {
			if seconds, err = strconv.ParseFloat(s, 64); err != nil {
				break
			}
		}
		err = render(os.Args[2], seconds)
	case "resample":
		if len(os.Args) < 5 {
			usage()
			return
		}
		var rate int
		if rate, err = strconv.Atoi(os.Args[4]); err != nil {
			break
		}
		err = resampleFile(os.Args[2], os.Args[3], rate)
	default:
		usage()
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func arg(i int) string {
	if i < len(os.Args) {
		return os.Args[i]
	}
	return ""
}

func usage() {
	fmt.Println("Looper Tools")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  ports                        - List all MIDI ports")
	fmt.Println("  watch <in> [out]             - Connect ports and print MIDI until Ctrl-C")
	fmt.Println("  render <out.wav> [seconds]   - Render a two-loop demo offline")
	fmt.Println("  resample <in> <out> <rate>   - Convert a WAV file's sample rate")
}

func listPorts() error {
	fmt.Println("(waiting up to 3 seconds...)")
	ins, outs, err := midi.ListPorts()
	if err != nil {
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return err
	}
	fmt.Println("=== MIDI Input Ports ===")
	for i, p := range ins {
		fmt.Printf("  %d: %s\n", i, p)
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, p := range outs {
		fmt.Printf("  %d: %s\n", i, p)
	}
	return nil
}

// watch runs a PortManager and prints connection changes and input,
// echoing input to the output port.
func watch(in, out string) error {
	if in == "" {
		return fmt.Errorf("watch needs an input port name")
	}
	dbg, err := debug.New(debug.Options{Output: os.Stderr, Level: "info"})
	if err != nil {
		return err
	}
	defer dbg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pm := midi.NewPortManager(in, out, dbg)
	go pm.Run(ctx)
	fmt.Println("Watching for ports - press Ctrl-C to stop")

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	buf := make([]midi.Message, 0, 256)
	for {
		select {
		case <-ctx.Done():
			dropIn, dropOut := pm.Dropped()
			fmt.Printf("\ndropped: %d in, %d out\n", dropIn, dropOut)
			return nil
		case ev := <-pm.Events():
			state := "connected"
			if ev.Type == midi.PortDisconnected {
				state = "disconnected"
			}
			fmt.Printf("[%s] %s %s\n", time.Now().Format("15:04:05"), state, ev.Name)
		case <-ticker.C:
			buf = pm.Receive(buf[:0])
			for _, m := range buf {
				fmt.Printf("  %v\n", m)
			}
			pm.Send(buf)
		}
	}
}

// render records one second of a tone into a master loop, then a second
// loop synced to it records the next second at another pitch. The master
// plays on the left channel, the follower on the right.
func render(path string, seconds float64) error {
	cfg := config.DefaultConfig()
	cfg.Audio.Backend = config.BackendOffline
	cfg.Audio.InputChannels = 1
	cfg.Audio.OutputChannels = 2
	rate := cfg.Audio.SampleRate

	e := looper.NewEngine(cfg, debug.Discard())
	off := backend.NewOffline(e, nil)

	master, err := e.AddLoop()
	if err != nil {
		return err
	}
	follower, err := e.AddLoop()
	if err != nil {
		return err
	}
	steps := []error{
		e.AddAudioChannel(master, 0, 0),
		e.SetMode(master, looper.Recording),
		e.SetLength(master, uint32(rate)),
		e.AddAudioChannel(follower, 0, 1),
		e.SetSyncSource(follower, master),
		e.PlanTransition(follower, looper.PlannedTransition{Mode: looper.Recording, Trigger: looper.OnSyncSourceWrap}),
	}
	for _, err := range steps {
		if err != nil {
			return err
		}
	}

	q := off.Frames()
	frames := int(seconds * float64(rate))
	if frames <= 0 {
		return fmt.Errorf("invalid duration %v", seconds)
	}
	out := make([]float32, 0, (frames/q+1)*q*2)
	tone := make([]float32, q)
	phase := 0.0
	planned := false

	for done := 0; done < frames; done += q {
		freq := 220.0
		if done >= rate {
			freq = 330.0
		}
		for i := range tone {
			tone[i] = float32(0.5 * math.Sin(phase))
			phase += 2 * math.Pi * freq / float64(rate)
		}
		bufs, err := off.Step([][]float32{tone})
		if err != nil {
			return err
		}
		for i := 0; i < q; i++ {
			out = append(out, bufs[0][i], bufs[1][i])
		}

		if !planned {
			for _, s := range e.Snapshot() {
				if s.ID == follower && s.Mode == looper.Recording {
					if err := e.PlanTransition(follower, looper.PlannedTransition{Mode: looper.Playing, Trigger: looper.OnSyncSourceWrap}); err != nil {
						return err
					}
					planned = true
				}
			}
		}
	}

	a := export.Audio{Samples: out[:frames*2], Channels: 2, SampleRate: rate}
	if err := export.WriteWAVFile(path, a); err != nil {
		return err
	}
	for _, s := range e.Snapshot() {
		fmt.Printf("loop %d: %s, %d samples\n", s.ID, s.Mode, s.Length)
	}
	fmt.Printf("wrote %s (%.2fs)\n", path, seconds)
	return nil
}

func resampleFile(in, out string, rate int) error {
	if rate <= 0 {
		return fmt.Errorf("invalid sample rate %d", rate)
	}
	a, err := export.ReadWAVFile(in)
	if err != nil {
		return err
	}
	if a.SampleRate <= 0 {
		return fmt.Errorf("%s: invalid sample rate %d", in, a.SampleRate)
	}
	frames := a.Frames()
	outFrames := int(int64(frames) * int64(rate) / int64(a.SampleRate))
	if r := resample.Ratio(frames, outFrames); r*float64(frames) < float64(outFrames) {
		fmt.Printf("warning: ratio clamped to %.3f, tail will repeat the last frame\n", r)
	}
	res := export.Audio{
		Samples:    resample.Resample(a.Samples, a.Channels, frames, outFrames),
		Channels:   a.Channels,
		SampleRate: rate,
	}
	if err := export.WriteWAVFile(out, res); err != nil {
		return err
	}
	fmt.Printf("%s: %d Hz -> %s: %d Hz (%d frames)\n", in, a.SampleRate, out, rate, outFrames)
	return nil
}
