package storage

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/overdriver/internal/cue"
	"github.com/vovakirdan/overdriver/internal/engine"
)

// RunMeta describes a run before it starts. Engine notifications only carry
// the run id, so the session registers the rest here.
type RunMeta struct {
	ID         string
	Song       string
	Difficulty string
	Instrument string
	DelayMs    int
	Offsets    []int
	Key        string
}

// Recorder persists engine notifications as run history.
// Write failures are logged and never reach the engine.
type Recorder struct {
	store  *Store
	logger *log.Logger

	mu      sync.Mutex
	pending map[string]RunMeta
	started map[string]bool
	done    chan struct{}
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store *Store, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{
		store:   store,
		logger:  logger,
		pending: make(map[string]RunMeta),
		started: make(map[string]bool),
		done:    make(chan struct{}),
	}
}

// Track registers the metadata of an armed run.
func (r *Recorder) Track(m RunMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[m.ID] = m
}

// Run consumes notifications until ch is closed.
func (r *Recorder) Run(ch <-chan engine.Notification) {
	defer close(r.done)
	for n := range ch {
		r.handle(n)
	}
}

// Done is closed once Run has returned.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) handle(n engine.Notification) {
	switch n.Kind {
	case engine.KindStarted:
		r.mu.Lock()
		m, ok := r.pending[n.RunID]
		delete(r.pending, n.RunID)
		r.mu.Unlock()
		if !ok {
			m = RunMeta{ID: n.RunID, Song: n.Label}
		}

		err := r.store.SaveRun(Run{
			ID:         m.ID,
			Song:       m.Song,
			Difficulty: m.Difficulty,
			Instrument: m.Instrument,
			DelayMs:    m.DelayMs,
			Offsets:    m.Offsets,
			Key:        m.Key,
			StartedAt:  n.At,
		})
		if err != nil {
			r.logger.Error("failed to record run", "run", n.RunID, "error", err)
			return
		}
		r.mu.Lock()
		r.started[n.RunID] = true
		r.mu.Unlock()

	case engine.KindFired:
		if !r.isStarted(n.RunID) {
			return
		}
		err := r.store.SaveFire(Fire{
			RunID:    n.RunID,
			Index:    n.Index,
			TargetMs: n.Target,
			ActualMs: n.Elapsed,
			Cue:      n.Cue == cue.Played,
		})
		if err != nil {
			r.logger.Error("failed to record fire", "run", n.RunID, "index", n.Index, "error", err)
		}

	case engine.KindCompleted, engine.KindCancelled:
		r.mu.Lock()
		delete(r.pending, n.RunID)
		wasStarted := r.started[n.RunID]
		delete(r.started, n.RunID)
		r.mu.Unlock()
		// A run cancelled while armed never started and is not history.
		if !wasStarted {
			return
		}

		outcome := OutcomeCompleted
		if n.Kind == engine.KindCancelled {
			outcome = OutcomeCancelled
		}
		if err := r.store.FinishRun(n.RunID, outcome, n.Fired, n.At); err != nil {
			r.logger.Error("failed to record outcome", "run", n.RunID, "error", err)
		}
	}
}

// Settle waits until every recorded run has its outcome written, or timeout.
// Runs whose start was never seen are not waited for.
func (r *Recorder) Settle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		r.mu.Lock()
		open := len(r.started)
		r.mu.Unlock()
		if open == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (r *Recorder) isStarted(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started[id]
}
