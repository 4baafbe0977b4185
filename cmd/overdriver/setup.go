package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"golang.org/x/term"

	"github.com/vovakirdan/overdriver/internal/actuator"
	"github.com/vovakirdan/overdriver/internal/chart"
	"github.com/vovakirdan/overdriver/internal/config"
	"github.com/vovakirdan/overdriver/internal/cue"
	"github.com/vovakirdan/overdriver/internal/session"
	"github.com/vovakirdan/overdriver/internal/storage"
	"github.com/vovakirdan/overdriver/internal/trigger"
)

// osFs is the filesystem settings, charts and cues are read from.
var osFs = afero.NewOsFs()

// newLogger creates the command logger at the level given by --log-level.
func newLogger(w io.Writer) (*log.Logger, error) {
	level, err := log.ParseLevel(flagLogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", flagLogLevel, err)
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          "overdriver",
		Level:           level,
	}), nil
}

// openLogFile opens ~/.overdriver/overdriver.log for commands that own the
// terminal. Falls back to discarding logs.
func openLogFile() io.WriteCloser {
	dir := config.UserDir()
	if dir == "" {
		return nopCloser{io.Discard}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nopCloser{io.Discard}
	}
	f, err := os.OpenFile(filepath.Join(dir, "overdriver.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nopCloser{io.Discard}
	}
	return f
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// loadSettings loads settings and applies command line overrides.
func loadSettings(logger *log.Logger) (config.Settings, error) {
	settings, source, err := config.Load(osFs, flagSettings)
	if err != nil {
		return settings, err
	}
	logger.Debug("settings loaded", "source", source)

	if flagChart != "" {
		settings.ChartFile = flagChart
	}
	if flagDBPath != "" {
		settings.DBPath = flagDBPath
	}
	if flagActuator != "" {
		settings.Actuator = flagActuator
	}
	if flagTrigger != "" {
		settings.Trigger = flagTrigger
	}
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	if !actuator.Exists(settings.Actuator) {
		return settings, fmt.Errorf("unknown actuator %q", settings.Actuator)
	}
	if !trigger.ValidSource(settings.Trigger) {
		return settings, fmt.Errorf("unknown trigger %q", settings.Trigger)
	}
	return settings, nil
}

// loadCatalog reads the song catalog named by the settings.
func loadCatalog(settings config.Settings) (*chart.Catalog, error) {
	path, err := config.ExpandPath(settings.ChartFile)
	if err != nil {
		return nil, err
	}
	return chart.Load(osFs, path)
}

// openStore opens the run history. Failures are logged and history is
// disabled; the engine works without it.
func openStore(settings config.Settings, logger *log.Logger) *storage.Store {
	if flagNoDB {
		return nil
	}
	store, err := storage.Open(settings.DBPath)
	if err != nil {
		logger.Warn("could not open run history", "path", settings.DBPath, "error", err)
		return nil
	}
	return store
}

// openSession wires settings, catalog, actuator, cue and history into a
// session. The caller owns Shutdown.
func openSession(logger *log.Logger) (*session.Session, error) {
	settings, err := loadSettings(logger)
	if err != nil {
		return nil, err
	}

	catalog, err := loadCatalog(settings)
	if err != nil {
		return nil, err
	}
	logger.Debug("catalog loaded", "songs", catalog.Len())

	backend, err := actuator.Create(settings.Actuator, logger.WithPrefix(settings.Actuator))
	if err != nil {
		return nil, err
	}

	soundPath, err := config.ExpandPath(settings.SoundFile)
	if err != nil {
		return nil, err
	}
	player, err := cue.Load(osFs, soundPath, settings.SoundVolume)
	if err != nil {
		// Runs still work without the audio cue.
		logger.Warn("audio cue disabled", "error", err)
	}

	// Keys typed into overdriver always reach the listener as well.
	var keys trigger.Source
	if settings.Trigger == trigger.SourceHook {
		keys = trigger.NewHook(logger.WithPrefix("hook"))
	}

	return session.New(session.Options{
		Settings: settings,
		Catalog:  catalog,
		Backend:  backend,
		Cue:      player,
		Store:    openStore(settings, logger),
		Keys:     keys,
		Logger:   logger,
	}), nil
}

// terminalSize returns the size of stdout, or 80x24.
func terminalSize() (int, int) {
	width, height := 80, 24 // Defaults
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width = w
		height = h
	}
	return width, height
}
