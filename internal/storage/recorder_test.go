package storage

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/overdriver/internal/engine"
)

type nopActuator struct{}

func (nopActuator) Fire(string, time.Duration) {}

// waitOutcome polls until the run has the wanted outcome.
func waitOutcome(t *testing.T, store *Store, id, want string) *Run {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r, err := store.RunByID(id)
		if err != nil {
			t.Fatalf("RunByID() failed: %v", err)
		}
		if r != nil && r.Outcome == want {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s never reached outcome %q", id, want)
	return nil
}

func TestRecorderPersistsCompletedRun(t *testing.T) {
	store := openTestStore(t)
	eng := engine.New(nopActuator{}, nil, engine.WithLogger(log.New(io.Discard)))

	rec := NewRecorder(store, nil)
	ch, unsubscribe := eng.Subscribe(8)
	go rec.Run(ch)
	defer func() {
		unsubscribe()
		<-rec.Done()
	}()

	if err := eng.Arm(engine.RunConfig{Offsets: []int{0, 10, 20}, Key: "space", Label: "A"}); err != nil {
		t.Fatalf("Arm() failed: %v", err)
	}
	id := eng.Status().RunID
	rec.Track(RunMeta{ID: id, Song: "A", Difficulty: "Expert", Instrument: "Vocals", Offsets: []int{0, 10, 20}, Key: "space"})

	if err := eng.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	r := waitOutcome(t, store, id, OutcomeCompleted)
	if r.Song != "A" || r.Difficulty != "Expert" || r.Fired != 3 {
		t.Errorf("Unexpected run: %+v", r)
	}

	fires, err := store.RunFires(id)
	if err != nil {
		t.Fatalf("RunFires() failed: %v", err)
	}
	if len(fires) != 3 {
		t.Fatalf("Expected 3 fires, got %d", len(fires))
	}
	for i, f := range fires {
		if f.Index != i || f.ActualMs < int64(f.TargetMs) {
			t.Errorf("fire %d: %+v", i, f)
		}
	}
}

func TestRecorderCancelledRun(t *testing.T) {
	store := openTestStore(t)
	eng := engine.New(nopActuator{}, nil, engine.WithLogger(log.New(io.Discard)))

	rec := NewRecorder(store, nil)
	ch, unsubscribe := eng.Subscribe(8)
	go rec.Run(ch)
	defer unsubscribe()

	eng.Arm(engine.RunConfig{Offsets: []int{0, 60_000}, Label: "Long"})
	id := eng.Status().RunID
	eng.Start()

	// Wait for the first fire to land, then cancel before the second.
	deadline := time.Now().Add(2 * time.Second)
	for eng.Status().Fired < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := eng.Cancel(); err != nil {
		t.Fatalf("Cancel() failed: %v", err)
	}

	r := waitOutcome(t, store, id, OutcomeCancelled)
	// Untracked runs fall back to the label as the song name.
	if r.Song != "Long" || r.Fired != 1 {
		t.Errorf("Unexpected run: %+v", r)
	}
}

func TestRecorderIgnoresRunCancelledWhileArmed(t *testing.T) {
	store := openTestStore(t)
	eng := engine.New(nopActuator{}, nil, engine.WithLogger(log.New(io.Discard)))

	rec := NewRecorder(store, nil)
	ch, unsubscribe := eng.Subscribe(8)
	go rec.Run(ch)

	eng.Arm(engine.RunConfig{Offsets: []int{0}})
	rec.Track(RunMeta{ID: eng.Status().RunID, Song: "A"})
	eng.Cancel()

	// A completed follow-up run proves the cancellation was processed first.
	eng.Arm(engine.RunConfig{Offsets: []int{0}, Label: "B"})
	second := eng.Status().RunID
	eng.Start()
	waitOutcome(t, store, second, OutcomeCompleted)

	unsubscribe()
	<-rec.Done()

	runs, _ := store.RecentRuns("", 10)
	if len(runs) != 1 || runs[0].ID != second {
		t.Errorf("Expected only the started run, got %+v", runs)
	}
}
