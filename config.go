package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ShowConfig is the root YAML configuration for the runner: where the
// song library lives, which backend drives the rig, and how the control
// surfaces are exposed.
type ShowConfig struct {
	SongsDir string  `yaml:"songs_dir"`
	Channels int     `yaml:"channels"`
	Volume   float64 `yaml:"volume"`
	IdleMode int     `yaml:"idle_mode"` // mode applied at startup and between shows

	Output OutputConfig `yaml:"output"`
	Player PlayerConfig `yaml:"player"`
	API    APIConfig    `yaml:"api"`
}

// OutputConfig selects and tunes the channel backend.
type OutputConfig struct {
	Backend string       `yaml:"backend"` // memory, artnet, serial, midi
	ArtNet  ArtNetConfig `yaml:"artnet"`
	Serial  SerialConfig `yaml:"serial"`
	MIDI    MIDIConfig   `yaml:"midi"`
}

// ArtNetConfig tunes the DMX broadcast backend.
type ArtNetConfig struct {
	BroadcastSubnet string `yaml:"broadcast_subnet,omitempty"`
	Universe        uint16 `yaml:"universe"`
}

// SerialConfig points at the relay board.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// MIDIConfig tunes the MIDI note backend.
type MIDIConfig struct {
	Port     string `yaml:"port"`
	BaseNote uint8  `yaml:"base_note"`
}

// PlayerConfig selects real or simulated audio.
type PlayerConfig struct {
	Simulate bool    `yaml:"simulate"`
	Length   float64 `yaml:"length"` // simulated track length, seconds
}

// APIConfig configures the control API and the home automation
// integration endpoints.
type APIConfig struct {
	Listen              string `yaml:"listen"`
	IntegrationCheckURL string `yaml:"integration_check_url"`
	IntegrationDoneURL  string `yaml:"integration_done_url"`
}

// defaultConfig is a runnable configuration for a ten channel rig with
// in-memory output.
func defaultConfig() ShowConfig {
	return ShowConfig{
		SongsDir: "songs",
		Channels: 10,
		Output:   OutputConfig{Backend: "memory"},
		Player:   PlayerConfig{Length: 300},
		API:      APIConfig{Listen: ":8080"},
	}
}

// loadConfig overlays the YAML file at path onto cfg, then applies
// environment overrides for the integration URLs.
func loadConfig(path string, cfg *ShowConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	if cfg.Channels <= 0 {
		cfg.Channels = 10
	}
	if cfg.Output.Serial.Baud <= 0 {
		cfg.Output.Serial.Baud = 9600
	}
	if cfg.Output.MIDI.BaseNote == 0 {
		cfg.Output.MIDI.BaseNote = 60
	}
	return nil
}

// applyEnvOverrides lets deployment environments point the integration
// poller somewhere else without editing the show file.
func applyEnvOverrides(cfg *ShowConfig) {
	if v := os.Getenv("INTEGRATION_CHECK_URL"); v != "" {
		cfg.API.IntegrationCheckURL = v
	}
	if v := os.Getenv("INTEGRATION_DONE_URL"); v != "" {
		cfg.API.IntegrationDoneURL = v
	}
}
