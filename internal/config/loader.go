package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// EmbeddedSource is reported as the source when no settings file was found.
const EmbeddedSource = "(embedded defaults)"

// Load loads settings and reports which file they came from.
// Search order: customPath -> ~/.overdriver/settings.yaml -> ./settings.yaml ->
// ./settings.json -> embedded default.
// Keys missing from a file keep their default values.
func Load(fs afero.Fs, customPath string) (Settings, string, error) {
	// Try custom path first
	if customPath != "" {
		cfg, err := parseFile(fs, customPath)
		if err != nil {
			return cfg, customPath, err
		}
		return cfg, customPath, nil
	}

	candidates := []string{"settings.yaml", "settings.json"}
	if userCfgPath := userConfigPath("settings.yaml"); userCfgPath != "" {
		candidates = append([]string{userCfgPath}, candidates...)
	}

	for _, path := range candidates {
		if exists, _ := afero.Exists(fs, path); !exists {
			continue
		}
		cfg, err := parseFile(fs, path)
		if err != nil {
			return cfg, path, err
		}
		return cfg, path, nil
	}

	// Use embedded default YAML
	cfg := DefaultSettings()
	if err := yaml.Unmarshal(defaultSettingsYAML, &cfg); err != nil {
		return DefaultSettings(), EmbeddedSource, nil // Fallback to hardcoded if embed fails
	}
	return cfg, EmbeddedSource, nil
}

func parseFile(fs afero.Fs, path string) (Settings, error) {
	cfg := DefaultSettings()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// userConfigPath returns the path to a user config file, or empty if home is unavailable.
func userConfigPath(filename string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".overdriver", filename)
}

// UserDir returns ~/.overdriver, or empty if home is unavailable.
func UserDir() string {
	return userConfigPath("")
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: cannot expand home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// Write saves settings as YAML, creating parent directories.
func Write(fs afero.Fs, path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("config: cannot encode settings: %w", err)
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: cannot create directory for %s: %w", path, err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("config: cannot write %s: %w", path, err)
	}
	return nil
}
