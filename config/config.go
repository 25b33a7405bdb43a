package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Backend identifies the audio driver
type Backend string

const (
	BackendPortAudio Backend = "portaudio"
	BackendOto       Backend = "oto"
	BackendOffline   Backend = "offline"
)

// AudioConfig describes the audio device and quantum size
type AudioConfig struct {
	Backend         Backend `json:"backend"`
	Device          string  `json:"device,omitempty"` // empty = system default
	SampleRate      int     `json:"sampleRate"`
	FramesPerBuffer int     `json:"framesPerBuffer"`
	InputChannels   int     `json:"inputChannels"`
	OutputChannels  int     `json:"outputChannels"`
}

// MIDIConfig names the MIDI ports to connect (substring match)
type MIDIConfig struct {
	InputPort   string `json:"inputPort,omitempty"`
	OutputPort  string `json:"outputPort,omitempty"`
	AutoConnect bool   `json:"autoConnect"`
}

// EngineConfig sizes the real-time resources. Everything here is
// allocated up front so the audio thread never has to.
type EngineConfig struct {
	RingBufferSeconds float64 `json:"ringBufferSeconds"`
	PoolBufferSize    int     `json:"poolBufferSize"`    // samples per pooled buffer
	PoolBuffers       int     `json:"poolBuffers"`       // buffers allocated at startup
	PoolLowWater      int     `json:"poolLowWater"`      // replenish below this many free
	MaxChannelBuffers int     `json:"maxChannelBuffers"` // per audio channel
	MaxMIDIEvents     int     `json:"maxMIDIEvents"`     // per MIDI channel
	CommandQueueSize  int     `json:"commandQueueSize"`
	MaxQuantumSteps   int     `json:"maxQuantumSteps"` // sub-quantum iteration ceiling
	MaxLoops          int     `json:"maxLoops"`
}

// LogConfig controls the debug log
type LogConfig struct {
	Path  string `json:"path,omitempty"`
	Level string `json:"level,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette string `json:"palette,omitempty"` // GIMP .gpl file
}

// Config is the main configuration structure
type Config struct {
	Audio  AudioConfig  `json:"audio"`
	MIDI   MIDIConfig   `json:"midi"`
	Engine EngineConfig `json:"engine"`
	Log    LogConfig    `json:"log,omitempty"`
	UI     UIConfig     `json:"ui,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			Backend:         BackendPortAudio,
			SampleRate:      48000,
			FramesPerBuffer: 256,
			InputChannels:   2,
			OutputChannels:  2,
		},
		MIDI: MIDIConfig{
			AutoConnect: true,
		},
		Engine: EngineConfig{
			RingBufferSeconds: 4,
			PoolBufferSize:    16384,
			PoolBuffers:       256,
			PoolLowWater:      64,
			MaxChannelBuffers: 2048,
			MaxMIDIEvents:     65536,
			CommandQueueSize:  256,
			MaxQuantumSteps:   1000,
			MaxLoops:          64,
		},
	}
}

// RingBufferSamples converts the configured pre-roll length to samples.
func (c *Config) RingBufferSamples() int {
	return int(c.Engine.RingBufferSeconds * float64(c.Audio.SampleRate))
}

// Validate rejects configs the engine cannot run with.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sampleRate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.FramesPerBuffer <= 0 {
		return fmt.Errorf("audio.framesPerBuffer must be positive, got %d", c.Audio.FramesPerBuffer)
	}
	if c.Audio.InputChannels < 0 || c.Audio.OutputChannels <= 0 {
		return fmt.Errorf("audio channel counts invalid: in=%d out=%d", c.Audio.InputChannels, c.Audio.OutputChannels)
	}
	if c.Engine.PoolBufferSize <= 0 || c.Engine.PoolBuffers <= 0 {
		return fmt.Errorf("engine pool must have positive size and count")
	}
	if c.Engine.CommandQueueSize <= 0 {
		return fmt.Errorf("engine.commandQueueSize must be positive")
	}
	if c.Engine.MaxQuantumSteps <= 0 {
		return fmt.Errorf("engine.maxQuantumSteps must be positive")
	}
	switch c.Audio.Backend {
	case BackendPortAudio, BackendOto, BackendOffline:
	default:
		return fmt.Errorf("unknown audio backend %q", c.Audio.Backend)
	}
	return nil
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-looper"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultLogPath returns ~/.config/go-looper/debug.log
func DefaultLogPath() string {
	dir, err := ConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "debug.log")
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a config file. Missing fields keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating its directory.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
