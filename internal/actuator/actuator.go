// Package actuator simulates timed key presses on the host.
// Each Fire runs on its own goroutine so the caller never waits for the hold.
package actuator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Backend injects raw key transitions into the host input system.
type Backend interface {
	Press(key string) error
	Release(key string) error
}

// Actuator performs fire-and-forget press/hold/release cycles.
type Actuator struct {
	backend  Backend
	logger   *log.Logger
	wg       sync.WaitGroup
	inFlight atomic.Int32
}

// New creates an actuator on the given backend. A nil logger uses log.Default().
func New(backend Backend, logger *log.Logger) *Actuator {
	if logger == nil {
		logger = log.Default()
	}
	return &Actuator{backend: backend, logger: logger}
}

// Fire presses key immediately, holds it for hold and releases it.
// It returns at once. Overlapping calls are independent presses.
// Failures are logged and never retried.
func (a *Actuator) Fire(key string, hold time.Duration) {
	a.wg.Add(1)
	a.inFlight.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.inFlight.Add(-1)
		a.pressAndRelease(key, hold)
	}()
}

func (a *Actuator) pressAndRelease(key string, hold time.Duration) {
	if err := a.backend.Press(key); err != nil {
		a.logger.Error("cannot press key", "key", key, "error", err)
		return
	}
	if hold > 0 {
		time.Sleep(hold)
	}
	if err := a.backend.Release(key); err != nil {
		a.logger.Error("cannot release key", "key", key, "error", err)
	}
}

// InFlight returns the number of presses not yet released.
func (a *Actuator) InFlight() int {
	return int(a.inFlight.Load())
}

// Wait blocks until every in-flight press has released or timeout passes.
// It reports whether all presses finished.
func (a *Actuator) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		a.logger.Warn("abandoning in-flight key presses", "count", a.InFlight())
		return false
	}
}
