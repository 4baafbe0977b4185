package trigger

import (
	"context"
	"strings"
	"unicode"

	"github.com/charmbracelet/log"
	hook "github.com/robotn/gohook"
)

// Input sources a listener can be fed from.
const (
	SourceHook     = "hook"     // system-wide keyboard hook
	SourceTerminal = "terminal" // only keys typed into overdriver itself
)

// Source feeds key events from outside the front ends to a listener.
// Run blocks until ctx ends.
type Source interface {
	Run(ctx context.Context, l *Listener)
}

// ValidSource reports whether name is a known input source.
func ValidSource(name string) bool {
	return name == SourceHook || name == SourceTerminal
}

// Hook reads key transitions from a system-wide keyboard hook, so a lane
// press reaches the listener while the game window has focus.
type Hook struct {
	logger *log.Logger
	start  func() chan hook.Event
	end    func()
}

// NewHook creates a hook source. Nothing is registered until Run.
func NewHook(logger *log.Logger) *Hook {
	if logger == nil {
		logger = log.Default()
	}
	return &Hook{logger: logger, start: hook.Start, end: hook.End}
}

// Run registers the hook and feeds l until ctx ends.
// The hook is unregistered before Run returns.
func (h *Hook) Run(ctx context.Context, l *Listener) {
	raw := h.start()
	defer h.end()
	h.logger.Info("keyboard hook started")

	events := make(chan KeyEvent, 64)
	go pump(ctx, raw, events)
	l.Feed(ctx, events)
	h.logger.Debug("keyboard hook stopped")
}

// pump converts hook events until raw closes or ctx ends, then closes out.
func pump(ctx context.Context, raw <-chan hook.Event, out chan<- KeyEvent) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-raw:
			if !ok {
				return
			}
			ke, ok := fromHook(ev)
			if !ok {
				continue
			}
			select {
			case out <- ke:
			case <-ctx.Done():
				return
			}
		}
	}
}

// fromHook maps a hook event to a KeyEvent. Mouse events and keys without
// a name are dropped. KeyHold is the hook's key-pressed event and KeyDown
// its key-typed event; both count as presses.
func fromHook(ev hook.Event) (KeyEvent, bool) {
	var pressed bool
	switch ev.Kind {
	case hook.KeyHold, hook.KeyDown:
		pressed = true
	case hook.KeyUp:
	default:
		return KeyEvent{}, false
	}

	name := ""
	if ev.Keychar != hook.CharUndefined && unicode.IsPrint(ev.Keychar) {
		name = string(unicode.ToLower(ev.Keychar))
	} else {
		name = hook.RawcodetoKeychar(ev.Rawcode)
	}
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" && ev.Keychar == ' ' {
		name = "space"
	}
	if name == "" {
		return KeyEvent{}, false
	}
	return KeyEvent{Key: name, Pressed: pressed}, true
}
