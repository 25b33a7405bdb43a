package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"go-looper/backend"
	"go-looper/config"
	"go-looper/debug"
	"go-looper/looper"
	"go-looper/midi"
	"go-looper/theme"
	"go-looper/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logPath := cfg.Log.Path
	if logPath == "" {
		logPath = config.DefaultLogPath()
	}
	dbg, err := debug.New(debug.Options{Path: logPath, Level: cfg.Log.Level})
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer dbg.Close()
	log := dbg.Logger("main")

	palette, err := theme.Load(cfg.UI.Palette)
	if err != nil {
		return err
	}
	th := theme.New(palette)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := looper.NewEngine(cfg, dbg)
	go engine.Run(ctx)

	// MIDI device manager (handles hot-plug)
	var ports *midi.PortManager
	var port backend.MIDIPort
	if cfg.MIDI.AutoConnect && (cfg.MIDI.InputPort != "" || cfg.MIDI.OutputPort != "") {
		ports = midi.NewPortManager(cfg.MIDI.InputPort, cfg.MIDI.OutputPort, dbg)
		port = ports
		go ports.Run(ctx)
	}

	driver, err := backend.New(engine, port, dbg)
	if err != nil {
		return err
	}
	driverErr := make(chan error, 1)
	go func() { driverErr <- driver.Run(ctx) }()

	exportDir := "."
	if dir, err := config.ConfigDir(); err == nil {
		exportDir = filepath.Join(dir, "loops")
	}

	m := tui.NewModel(engine, ports, th, exportDir)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// a fatal engine or backend error ends the program
	failed := make(chan error, 1)
	go func() {
		var err error
		select {
		case err = <-engine.FatalChan():
		case err = <-driverErr:
			if err == nil {
				return
			}
			err = fmt.Errorf("audio backend: %w", err)
		case <-ctx.Done():
			return
		}
		failed <- err
		p.Send(tui.FatalMsg{Err: err})
	}()

	log.Log("starting: backend=%s rate=%d quantum=%d", cfg.Audio.Backend, cfg.Audio.SampleRate, cfg.Audio.FramesPerBuffer)
	if _, err := p.Run(); err != nil {
		return err
	}
	cancel()

	select {
	case err := <-failed:
		log.Error(err, "exiting after fatal error")
		return fmt.Errorf("%+v", err)
	default:
		return nil
	}
}
