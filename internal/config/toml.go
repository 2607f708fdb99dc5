// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/verte-zerg/klsim/internal/model"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Simulation SimulationConfig `toml:"simulation"`
	Log        LogConfig        `toml:"log"`
	Scenarios  ScenarioConfig   `toml:"scenarios"`
}

// SimulationConfig maps simulation settings.
type SimulationConfig struct {
	AutoBlock             *bool   `toml:"auto-block"`
	ScanDuration          *string `toml:"scan-duration"`
	PlaybackSpeed         *string `toml:"playback-speed"`
	TransmissionAnimation *bool   `toml:"transmission-animation"`
	MediumThreshold       *int    `toml:"medium-threshold"`
	HighThreshold         *int    `toml:"high-threshold"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level  *string `toml:"level"`
	Format *string `toml:"format"`
	File   *string `toml:"file"`
}

// ScenarioConfig maps scenario settings.
type ScenarioConfig struct {
	Pack *string `toml:"pack"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Patch converts the simulation section into a settings patch. Unset keys
// stay nil.
func (c SimulationConfig) Patch() (model.SettingsPatch, error) {
	patch := model.SettingsPatch{
		AutoBlockingEnabled:          c.AutoBlock,
		TransmissionAnimationEnabled: c.TransmissionAnimation,
		MediumThreshold:              c.MediumThreshold,
		HighThreshold:                c.HighThreshold,
	}
	if c.ScanDuration != nil {
		d, err := time.ParseDuration(*c.ScanDuration)
		if err != nil {
			return model.SettingsPatch{}, fmt.Errorf("invalid scan-duration: %w", err)
		}
		patch.AVScanDuration = &d
	}
	if c.PlaybackSpeed != nil {
		d, err := time.ParseDuration(*c.PlaybackSpeed)
		if err != nil {
			return model.SettingsPatch{}, fmt.Errorf("invalid playback-speed: %w", err)
		}
		patch.ScenarioPlaybackSpeed = &d
	}
	return patch, nil
}

// Template is written by `klsim config` when no config file exists.
const Template = `# klsim configuration. Command-line flags take precedence.

[simulation]
# auto-block = true
# scan-duration = "2s"        # 1s..1m
# playback-speed = "100ms"    # 10ms..2s, per character
# transmission-animation = true
# medium-threshold = 30       # 0..100
# high-threshold = 60         # 0..100

[log]
# level = "info"              # debug, info, warn, error
# format = "text"             # text or json
# file = ""                   # defaults to $XDG_STATE_HOME/klsim/klsim.log

[scenarios]
# pack = ""                   # YAML file with extra scenarios
`
