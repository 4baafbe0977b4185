package actuator

import (
	"github.com/charmbracelet/log"
)

func init() {
	Register("dry-run", "log key presses without touching the keyboard", func(logger *log.Logger) (Backend, error) {
		return NewDryRun(logger), nil
	})
}

// DryRun is a backend that only logs.
type DryRun struct {
	logger *log.Logger
}

// NewDryRun creates a logging-only backend.
func NewDryRun(logger *log.Logger) *DryRun {
	if logger == nil {
		logger = log.Default()
	}
	return &DryRun{logger: logger}
}

// Press logs the press.
func (d *DryRun) Press(key string) error {
	d.logger.Info("press", "key", key)
	return nil
}

// Release logs the release.
func (d *DryRun) Release(key string) error {
	d.logger.Info("release", "key", key)
	return nil
}
