package config

import (
	_ "embed"
)

//go:embed defaults/settings.yaml
var defaultSettingsYAML []byte

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return Settings{
		DelayMs:        0,
		OverdriveKey:   "space",
		KeyHoldMs:      50,
		LaneKeys:       []string{"a", "s", "j", "k", "l"},
		SoundFile:      "",
		SoundVolume:    0.5,
		ChartFile:      "songs.json",
		DBPath:         "~/.overdriver/runs.db",
		Actuator:       "keybd",
		Trigger:        "hook",
		DefaultInst:    "Vocals",
		DefaultDiff:    "Expert",
		ShutdownGrace:  1000,
		SpinWindowUsec: 1000,
	}
}

// DefaultYAML returns the embedded default settings file.
func DefaultYAML() []byte {
	return defaultSettingsYAML
}
