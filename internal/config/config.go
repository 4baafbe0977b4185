// Package config provides YAML-based settings loading for overdriver.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Settings contains everything a run needs besides the chart itself.
// Field names follow the original settings.json keys so that file loads as-is.
type Settings struct {
	DelayMs        int      `yaml:"delay_ms"`             // Shift applied to every offset; positive fires earlier
	OverdriveKey   string   `yaml:"overdrive_key"`        // Key the actuator presses
	KeyHoldMs      int      `yaml:"key_hold_duration_ms"` // How long the key stays down
	LaneKeys       []string `yaml:"lane_keys"`            // Pressing one of these starts an armed run
	SoundFile      string   `yaml:"sound_file"`           // Optional audio cue (wav, mp3, ogg)
	SoundVolume    float64  `yaml:"sound_volume"`         // 0.0 to 1.0
	ChartFile      string   `yaml:"chart_file"`           // Song catalog (songs.json)
	DBPath         string   `yaml:"db_path"`              // Run history database
	Actuator       string   `yaml:"actuator"`             // Key backend: "keybd" or "dry-run"
	Trigger        string   `yaml:"trigger"`              // Lane key source: "hook" or "terminal"
	DefaultInst    string   `yaml:"instrument"`           // Preselected instrument in the pickers
	DefaultDiff    string   `yaml:"difficulty"`           // Preselected difficulty in the pickers
	ShutdownGrace  int      `yaml:"shutdown_grace_ms"`    // Join timeout for in-flight presses on exit
	SpinWindowUsec int      `yaml:"spin_window_us"`       // Busy-wait window before each deadline
}

// KeyHold returns the hold duration.
func (s Settings) KeyHold() time.Duration {
	return time.Duration(s.KeyHoldMs) * time.Millisecond
}

// Grace returns the shutdown grace period.
func (s Settings) Grace() time.Duration {
	return time.Duration(s.ShutdownGrace) * time.Millisecond
}

// SpinWindow returns the busy-wait window of the scheduler.
func (s Settings) SpinWindow() time.Duration {
	return time.Duration(s.SpinWindowUsec) * time.Microsecond
}

// Validate reports every invalid value at once.
func (s Settings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.OverdriveKey) == "" {
		errs = append(errs, errors.New("overdrive_key is empty"))
	}
	if s.KeyHoldMs < 0 {
		errs = append(errs, fmt.Errorf("key_hold_duration_ms must not be negative, got %d", s.KeyHoldMs))
	}
	if s.Trigger != "hook" && s.Trigger != "terminal" {
		errs = append(errs, fmt.Errorf("trigger must be hook or terminal, got %q", s.Trigger))
	}
	if len(s.LaneKeys) == 0 {
		errs = append(errs, errors.New("lane_keys is empty"))
	}
	if s.SoundVolume < 0 || s.SoundVolume > 1 {
		errs = append(errs, fmt.Errorf("sound_volume must be within 0.0-1.0, got %v", s.SoundVolume))
	}
	if s.ShutdownGrace < 0 {
		errs = append(errs, fmt.Errorf("shutdown_grace_ms must not be negative, got %d", s.ShutdownGrace))
	}
	if s.SpinWindowUsec < 0 {
		errs = append(errs, fmt.Errorf("spin_window_us must not be negative, got %d", s.SpinWindowUsec))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid settings: %w", errors.Join(errs...))
	}
	return nil
}
