// Package trigger watches raw key transitions and reports the start signal
// when a lane key is pressed while armed.
package trigger

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// KeyEvent is a raw key transition from an input source.
type KeyEvent struct {
	Key     string
	Pressed bool
}

// Press is shorthand for a press event.
func Press(key string) KeyEvent {
	return KeyEvent{Key: key, Pressed: true}
}

// Release is shorthand for a release event.
func Release(key string) KeyEvent {
	return KeyEvent{Key: key, Pressed: false}
}

// Listener reports at most one start signal per arming.
type Listener struct {
	lanes  map[string]struct{}
	active func() bool

	mu      sync.Mutex
	onStart func()
	pressed map[string]struct{}
}

// NewListener creates a disarmed listener for the given lane keys.
// active reports whether a run is already going; presses are ignored then.
// A nil active is treated as never active.
func NewListener(laneKeys []string, active func() bool) *Listener {
	lanes := make(map[string]struct{}, len(laneKeys))
	for _, k := range laneKeys {
		lanes[normalize(k)] = struct{}{}
	}
	if active == nil {
		active = func() bool { return false }
	}
	return &Listener{
		lanes:   lanes,
		active:  active,
		pressed: make(map[string]struct{}),
	}
}

// Arm sets the callback for the next start signal, replacing any previous one.
func (l *Listener) Arm(onStart func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onStart = onStart
}

// Disarm drops the pending callback.
func (l *Listener) Disarm() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onStart = nil
}

// Armed reports whether a start signal is pending.
func (l *Listener) Armed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.onStart != nil
}

// IsLane reports whether key is one of the configured lane keys.
func (l *Listener) IsLane(key string) bool {
	_, ok := l.lanes[normalize(key)]
	return ok
}

// Handle processes one event without blocking. A qualifying press disarms
// the listener and runs the callback on its own goroutine.
// It reports whether the event produced the start signal.
func (l *Listener) Handle(ev KeyEvent) bool {
	key := normalize(ev.Key)
	if _, ok := l.lanes[key]; !ok {
		return false
	}

	l.mu.Lock()
	if !ev.Pressed {
		delete(l.pressed, key)
		l.mu.Unlock()
		return false
	}

	l.pressed[key] = struct{}{}
	onStart := l.onStart
	if onStart == nil || l.active() {
		l.mu.Unlock()
		return false
	}
	l.onStart = nil
	l.mu.Unlock()

	go onStart()
	return true
}

// Pressed returns the lane keys currently held, sorted.
func (l *Listener) Pressed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]string, 0, len(l.pressed))
	for k := range l.pressed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Feed handles events from src until src closes or ctx ends.
func (l *Listener) Feed(ctx context.Context, src <-chan KeyEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-src:
			if !ok {
				return
			}
			l.Handle(ev)
		}
	}
}

func normalize(key string) string {
	if key == " " {
		return "space"
	}
	return strings.ToLower(strings.TrimSpace(key))
}
