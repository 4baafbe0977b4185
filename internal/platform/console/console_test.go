package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/overdriver/internal/chart"
	"github.com/vovakirdan/overdriver/internal/config"
	"github.com/vovakirdan/overdriver/internal/engine"
	"github.com/vovakirdan/overdriver/internal/session"
)

type countingBackend struct {
	mu      sync.Mutex
	presses int
}

func (b *countingBackend) Press(string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presses++
	return nil
}

func (b *countingBackend) Release(string) error { return nil }

func (b *countingBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.presses
}

// syncBuffer is written by mpb and the console from different goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newSession(t *testing.T, offsets []int) (*session.Session, *countingBackend) {
	t.Helper()
	settings := config.DefaultSettings()
	settings.KeyHoldMs = 5
	backend := &countingBackend{}
	sess := session.New(session.Options{
		Settings: settings,
		Catalog: chart.New([]chart.Song{{
			DisplayTitle: "Test Song",
			Duration:     60,
			Timings: map[string]map[string][]int{
				"expert": {"vocals": offsets},
			},
		}}),
		Backend: backend,
		Logger:  log.New(io.Discard),
	})
	t.Cleanup(func() { sess.Shutdown(time.Second) })

	if _, err := sess.Prepare("Test Song", chart.Expert, chart.Vocals); err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}
	return sess, backend
}

func TestDecodeKeys(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		keys      []string
		interrupt bool
	}{
		{"letter", "a", []string{"a"}, false},
		{"upper case", "J", []string{"j"}, false},
		{"space", " ", []string{"space"}, false},
		{"enter", "\r", []string{"enter"}, false},
		{"several", "as\n", []string{"a", "s", "enter"}, false},
		{"ctrl+c", "\x03", nil, true},
		{"lone esc", "\x1b", nil, true},
		{"arrow key", "\x1b[A", nil, false},
		{"control dropped", "\x01", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, interrupt := decodeKeys([]byte(tt.in))
			if interrupt != tt.interrupt {
				t.Errorf("interrupt = %v, want %v", interrupt, tt.interrupt)
			}
			if strings.Join(keys, ",") != strings.Join(tt.keys, ",") {
				t.Errorf("keys = %v, want %v", keys, tt.keys)
			}
		})
	}
}

func TestRunLaneKeyStartsRun(t *testing.T) {
	sess, backend := newSession(t, []int{0, 20, 40})
	out := &syncBuffer{}

	c := New(sess, strings.NewReader("x a"), out, log.New(io.Discard))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := c.Run(ctx, false)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if state != engine.StateCompleted {
		t.Fatalf("state = %s, want completed", state)
	}
	if got := backend.count(); got != 3 {
		t.Errorf("presses = %d, want 3", got)
	}

	text := out.String()
	for _, want := range []string{session.MsgReady, session.MsgStarted, session.MsgComplete, "target      40 ms"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestRunNow(t *testing.T) {
	sess, backend := newSession(t, []int{0, 10})
	out := &syncBuffer{}

	c := New(sess, strings.NewReader(""), out, log.New(io.Discard))
	state, err := c.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if state != engine.StateCompleted {
		t.Fatalf("state = %s, want completed", state)
	}
	if got := backend.count(); got != 2 {
		t.Errorf("presses = %d, want 2", got)
	}
	if strings.Contains(out.String(), session.MsgReady) {
		t.Error("ready message printed for an immediate start")
	}
}

func TestRunEscCancelsArmed(t *testing.T) {
	sess, backend := newSession(t, []int{0})

	c := New(sess, strings.NewReader("\x1b"), &syncBuffer{}, log.New(io.Discard))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := c.Run(ctx, false)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if state != engine.StateCancelled {
		t.Fatalf("state = %s, want cancelled", state)
	}
	if got := backend.count(); got != 0 {
		t.Errorf("presses = %d, want 0", got)
	}
}

func TestRunContextCancelsRunning(t *testing.T) {
	sess, _ := newSession(t, []int{0, 60_000})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Cancel once the first offset has fired.
		for sess.Status().Fired == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	c := New(sess, strings.NewReader(""), &syncBuffer{}, log.New(io.Discard))
	state, err := c.Run(ctx, true)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if state != engine.StateCancelled {
		t.Fatalf("state = %s, want cancelled", state)
	}
}

func TestRunRequiresArmed(t *testing.T) {
	sess, _ := newSession(t, []int{0})
	if err := sess.Cancel(); err != nil {
		t.Fatalf("Cancel() failed: %v", err)
	}

	c := New(sess, strings.NewReader(""), io.Discard, log.New(io.Discard))
	if _, err := c.Run(context.Background(), false); err == nil {
		t.Error("Run() on a cancelled session should fail")
	}
}
