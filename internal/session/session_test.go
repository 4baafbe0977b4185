package session

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/overdriver/internal/chart"
	"github.com/vovakirdan/overdriver/internal/config"
	"github.com/vovakirdan/overdriver/internal/engine"
	"github.com/vovakirdan/overdriver/internal/storage"
	"github.com/vovakirdan/overdriver/internal/trigger"
)

// recordingBackend counts presses and releases.
type recordingBackend struct {
	mu       sync.Mutex
	presses  int
	releases int
	keys     []string
}

func (b *recordingBackend) Press(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presses++
	b.keys = append(b.keys, key)
	return nil
}

func (b *recordingBackend) Release(string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releases++
	return nil
}

func (b *recordingBackend) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.presses, b.releases
}

func testCatalog() *chart.Catalog {
	return chart.New([]chart.Song{
		{
			DisplayTitle: "Short",
			Duration:     30,
			Timings: map[string]map[string][]int{
				"expert": {"vocals": {0, 20, 40}},
			},
		},
		{
			DisplayTitle: "Long",
			Duration:     300,
			Timings: map[string]map[string][]int{
				"expert": {"vocals": {0, 60_000}},
			},
		},
	})
}

func newTestSession(t *testing.T, store *storage.Store) (*Session, *recordingBackend) {
	t.Helper()
	settings := config.DefaultSettings()
	settings.KeyHoldMs = 5
	backend := &recordingBackend{}
	s := New(Options{
		Settings: settings,
		Catalog:  testCatalog(),
		Backend:  backend,
		Store:    store,
		Logger:   log.New(io.Discard),
	})
	t.Cleanup(func() { s.Shutdown(time.Second) })
	return s, backend
}

func waitTerminal(t *testing.T, s *Session) engine.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := s.engine.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	return st
}

func TestPrepareAndLaneStart(t *testing.T) {
	s, backend := newTestSession(t, nil)

	sel, err := s.Prepare("Short", chart.Expert, chart.Vocals)
	if err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}
	if len(sel.Offsets) != 3 || sel.Label() != "Short [Vocals  ♫  Expert]" {
		t.Errorf("Unexpected selection: %+v %q", sel, sel.Label())
	}
	if s.Status().State != engine.StateArmed {
		t.Fatalf("Expected armed, got %v", s.Status().State)
	}

	// Non-lane keys do nothing
	if s.HandleKey(trigger.Press("q")) {
		t.Error("non-lane key started the run")
	}
	if !s.HandleKey(trigger.Press("j")) {
		t.Fatal("lane key did not start the run")
	}

	if st := waitTerminal(t, s); st != engine.StateCompleted {
		t.Fatalf("Expected completed, got %v", st)
	}
	s.actuator.Wait(time.Second)
	presses, releases := backend.counts()
	if presses != 3 || releases != 3 {
		t.Errorf("Expected 3 presses/releases, got %d/%d", presses, releases)
	}
	if backend.keys[0] != "space" {
		t.Errorf("Expected overdrive key space, got %q", backend.keys[0])
	}
}

func TestPrepareUnknownSelection(t *testing.T) {
	s, _ := newTestSession(t, nil)

	if _, err := s.Prepare("Missing", chart.Expert, chart.Vocals); !errors.Is(err, chart.ErrSongNotFound) {
		t.Errorf("got %v, want ErrSongNotFound", err)
	}
	if _, err := s.Prepare("Short", chart.Easy, chart.Vocals); !errors.Is(err, chart.ErrNoChart) {
		t.Errorf("got %v, want ErrNoChart", err)
	}
	if s.Status().State != engine.StateIdle {
		t.Error("failed Prepare changed the engine state")
	}
}

func TestPrepareReplacesArmedRun(t *testing.T) {
	s, _ := newTestSession(t, nil)

	first, _ := s.Prepare("Short", chart.Expert, chart.Vocals)
	if _, err := s.Prepare("Long", chart.Expert, chart.Vocals); err != nil {
		t.Fatalf("re-Prepare() failed: %v", err)
	}
	if s.Selection().Song.DisplayTitle != "Long" {
		t.Error("selection not replaced")
	}
	if s.Status().Label == first.Label() {
		t.Error("engine still armed with the first run")
	}
}

func TestPrepareRejectedWhileRunning(t *testing.T) {
	s, _ := newTestSession(t, nil)

	s.Prepare("Long", chart.Expert, chart.Vocals)
	if err := s.StartNow(); err != nil {
		t.Fatalf("StartNow() failed: %v", err)
	}
	if _, err := s.Prepare("Short", chart.Expert, chart.Vocals); !errors.Is(err, ErrBusy) {
		t.Errorf("got %v, want ErrBusy", err)
	}
	// Lane keys are ignored while the run is active
	if s.HandleKey(trigger.Press("a")) {
		t.Error("lane key produced a start while running")
	}

	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel() failed: %v", err)
	}
	if st := waitTerminal(t, s); st != engine.StateCancelled {
		t.Errorf("Expected cancelled, got %v", st)
	}
}

func TestStartNowWithoutPrepare(t *testing.T) {
	s, _ := newTestSession(t, nil)
	if err := s.StartNow(); !errors.Is(err, engine.ErrStateConflict) {
		t.Errorf("got %v, want ErrStateConflict", err)
	}
}

func TestShutdownCancelsAndIsIdempotent(t *testing.T) {
	s, _ := newTestSession(t, nil)

	s.Prepare("Long", chart.Expert, chart.Vocals)
	s.StartNow()

	start := time.Now()
	if !s.Shutdown(time.Second) {
		t.Error("Shutdown() reported presses still in flight")
	}
	if took := time.Since(start); took > 900*time.Millisecond {
		t.Errorf("Shutdown() took %v", took)
	}
	if s.Status().State != engine.StateCancelled {
		t.Errorf("Expected cancelled after shutdown, got %v", s.Status().State)
	}
	if !s.Shutdown(time.Second) {
		t.Error("second Shutdown() should be a no-op")
	}
	if _, err := s.Prepare("Short", chart.Expert, chart.Vocals); err == nil {
		t.Error("Prepare() after Shutdown() should fail")
	}
}

func TestShutdownJoinsPressesAfterLoopStops(t *testing.T) {
	burst := chart.New([]chart.Song{{
		DisplayTitle: "Burst",
		Timings: map[string]map[string][]int{
			"expert": {"vocals": make([]int, 20_000)},
		},
	}})

	for trial := 0; trial < 20; trial++ {
		settings := config.DefaultSettings()
		settings.KeyHoldMs = 0
		backend := &recordingBackend{}
		s := New(Options{
			Settings: settings,
			Catalog:  burst,
			Backend:  backend,
			Logger:   log.New(io.Discard),
		})

		if _, err := s.Prepare("Burst", chart.Expert, chart.Vocals); err != nil {
			t.Fatalf("Prepare() failed: %v", err)
		}
		if err := s.StartNow(); err != nil {
			t.Fatalf("StartNow() failed: %v", err)
		}
		// Land the cancel while the loop is still issuing presses.
		for {
			if p, _ := backend.counts(); p > 0 {
				break
			}
			time.Sleep(50 * time.Microsecond)
		}

		if !s.Shutdown(5 * time.Second) {
			t.Fatalf("trial %d: Shutdown() reported presses still in flight", trial)
		}
		presses, releases := backend.counts()
		if presses != releases {
			t.Fatalf("trial %d: %d presses but %d releases after Shutdown()", trial, presses, releases)
		}

		time.Sleep(5 * time.Millisecond)
		if p, r := backend.counts(); p != presses || r != releases {
			t.Fatalf("trial %d: presses went %d -> %d after Shutdown()", trial, presses, p)
		}
	}
}

func TestStaleStartDoesNotStartReplacement(t *testing.T) {
	s, backend := newTestSession(t, nil)

	if _, err := s.Prepare("Short", chart.Expert, chart.Vocals); err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}
	firstID := s.Status().RunID
	if _, err := s.Prepare("Long", chart.Expert, chart.Vocals); err != nil {
		t.Fatalf("re-Prepare() failed: %v", err)
	}

	// A lane press dispatched for the first run arrives after the re-arm.
	s.startArmed(firstID)

	if got := s.Status().State; got != engine.StateArmed {
		t.Fatalf("State = %v, want Armed", got)
	}
	if presses, _ := backend.counts(); presses != 0 {
		t.Errorf("stale start pressed %d keys", presses)
	}

	// The listener is still armed for the replacement run.
	if !s.HandleKey(trigger.Press("a")) {
		t.Error("lane key did not start the replacement run")
	}
}

// chanSource feeds a listener from a channel, standing in for the keyboard hook.
type chanSource struct {
	events  chan trigger.KeyEvent
	stopped chan struct{}
}

func (c *chanSource) Run(ctx context.Context, l *trigger.Listener) {
	defer close(c.stopped)
	l.Feed(ctx, c.events)
}

func TestKeySourceStartsArmedRun(t *testing.T) {
	src := &chanSource{events: make(chan trigger.KeyEvent), stopped: make(chan struct{})}
	settings := config.DefaultSettings()
	settings.KeyHoldMs = 1
	s := New(Options{
		Settings: settings,
		Catalog:  testCatalog(),
		Backend:  &recordingBackend{},
		Keys:     src,
		Logger:   log.New(io.Discard),
	})

	if _, err := s.Prepare("Short", chart.Expert, chart.Vocals); err != nil {
		t.Fatalf("Prepare() failed: %v", err)
	}
	src.events <- trigger.Press("q")
	src.events <- trigger.Press("L")

	if st := waitTerminal(t, s); st != engine.StateCompleted {
		t.Fatalf("Expected completed, got %v", st)
	}

	s.Shutdown(time.Second)
	select {
	case <-src.stopped:
	case <-time.After(time.Second):
		t.Fatal("key source still running after Shutdown()")
	}
}

func TestRunIsRecorded(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s, _ := newTestSession(t, store)

	s.Prepare("Short", chart.Expert, chart.Vocals)
	id := s.Status().RunID
	s.HandleKey(trigger.Press("a"))
	waitTerminal(t, s)

	deadline := time.Now().Add(2 * time.Second)
	var run *storage.Run
	for time.Now().Before(deadline) {
		run, _ = store.RunByID(id)
		if run != nil && run.Outcome == storage.OutcomeCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if run == nil || run.Outcome != storage.OutcomeCompleted {
		t.Fatalf("run not recorded as completed: %+v", run)
	}
	if run.Song != "Short" || run.Instrument != "Vocals" || run.Difficulty != "Expert" || run.Fired != 3 {
		t.Errorf("Unexpected run: %+v", run)
	}
}

func TestMessages(t *testing.T) {
	fired := engine.Notification{Kind: engine.KindFired, Elapsed: 1203, Target: 1200}
	if got := Message(fired); got != "Overdrive triggered at 1203 ms\n(Target: 1200 ms)" {
		t.Errorf("Message(fired) = %q", got)
	}
	if Message(engine.Notification{Kind: engine.KindCompleted}) != MsgComplete {
		t.Error("completed message mismatch")
	}
	if StateMessage(engine.StateArmed) != MsgReady {
		t.Error("armed message mismatch")
	}
	if ReadyMessage([]string{"a", "s"}) != "Timer ready! Press any lane key to start:\na s" {
		t.Error("ready message mismatch")
	}
	if TimingCount(4) != "4 overdrive timing(s)" {
		t.Error("TimingCount mismatch")
	}
}
