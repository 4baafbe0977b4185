// Package session wires the timing engine to its collaborators: the trigger
// listener, the key actuator, the audio cue and the run history.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/overdriver/internal/actuator"
	"github.com/vovakirdan/overdriver/internal/chart"
	"github.com/vovakirdan/overdriver/internal/config"
	"github.com/vovakirdan/overdriver/internal/cue"
	"github.com/vovakirdan/overdriver/internal/engine"
	"github.com/vovakirdan/overdriver/internal/storage"
	"github.com/vovakirdan/overdriver/internal/trigger"
)

// ErrBusy is returned when a selection is made while a run is in progress.
var ErrBusy = errors.New("session: a run is in progress")

// Options configures a Session.
type Options struct {
	Settings config.Settings
	Catalog  *chart.Catalog
	Backend  actuator.Backend // nil means dry-run
	Cue      *cue.Player      // nil means no audio cue
	Store    *storage.Store   // nil disables run history
	Keys     trigger.Source   // nil means only front ends feed lane keys
	Logger   *log.Logger
}

// Selection is the prepared run.
type Selection struct {
	Song       *chart.Song
	Difficulty chart.Difficulty
	Instrument chart.Instrument
	Offsets    []int
}

// Label identifies the selection in logs and notifications.
func (s Selection) Label() string {
	if s.Song == nil {
		return ""
	}
	return fmt.Sprintf("%s [%s]", s.Song.DisplayTitle, chart.Label(s.Instrument, s.Difficulty))
}

// Session owns one engine and everything around it. It is safe for
// concurrent use, so several front ends can share one session.
type Session struct {
	settings config.Settings
	catalog  *chart.Catalog
	engine   *engine.Engine
	listener *trigger.Listener
	actuator *actuator.Actuator
	cue      *cue.Player
	store    *storage.Store
	recorder *storage.Recorder
	logger   *log.Logger

	stopRecorder func()
	stopKeys     context.CancelFunc
	keysDone     chan struct{}

	mu        sync.Mutex
	selection Selection
	closed    bool
}

// New builds a session. The engine starts idle.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	player := opts.Cue
	if player == nil {
		player = cue.Disabled()
	}
	player.SetLogger(logger.WithPrefix("cue"))
	catalog := opts.Catalog
	if catalog == nil {
		catalog = chart.New(nil)
	}

	backend := opts.Backend
	if backend == nil {
		backend = actuator.NewDryRun(logger.WithPrefix("dry-run"))
	}
	act := actuator.New(backend, logger.WithPrefix("actuator"))
	eng := engine.New(act, player,
		engine.WithLogger(logger.WithPrefix("engine")),
		engine.WithSpinWindow(opts.Settings.SpinWindow()),
	)

	s := &Session{
		settings: opts.Settings,
		catalog:  catalog,
		engine:   eng,
		actuator: act,
		cue:      player,
		store:    opts.Store,
		logger:   logger,
	}
	s.listener = trigger.NewListener(opts.Settings.LaneKeys, eng.Active)

	if opts.Keys != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopKeys = cancel
		s.keysDone = make(chan struct{})
		go func() {
			defer close(s.keysDone)
			opts.Keys.Run(ctx, s.listener)
		}()
	}

	if opts.Store != nil {
		s.recorder = storage.NewRecorder(opts.Store, logger.WithPrefix("history"))
		ch, unsubscribe := eng.Subscribe(16)
		go s.recorder.Run(ch)
		s.stopRecorder = unsubscribe
	}
	return s
}

// Catalog returns the song catalog.
func (s *Session) Catalog() *chart.Catalog {
	return s.catalog
}

// Settings returns the settings the session was built with.
func (s *Session) Settings() config.Settings {
	return s.settings
}

// Store returns the run history store, or nil.
func (s *Session) Store() *storage.Store {
	return s.store
}

// Subscribe registers for engine notifications.
func (s *Session) Subscribe(buffer int) (<-chan engine.Notification, func()) {
	return s.engine.Subscribe(buffer)
}

// Status returns the engine status.
func (s *Session) Status() engine.Status {
	return s.engine.Status()
}

// Selection returns the last prepared selection.
func (s *Session) Selection() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// Prepare resolves a song and arms the engine and the trigger listener.
// Any lane key press then starts the run. A previously armed run that never
// started is replaced. Rejected with ErrBusy while a run is in progress.
func (s *Session) Prepare(title string, d chart.Difficulty, i chart.Instrument) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Selection{}, errors.New("session: closed")
	}
	if s.engine.Active() {
		return Selection{}, ErrBusy
	}

	song, err := s.catalog.Song(title)
	if err != nil {
		return Selection{}, err
	}
	offsets, err := song.Offsets(d, i)
	if err != nil {
		return Selection{}, err
	}

	if s.engine.State() == engine.StateArmed {
		s.listener.Disarm()
		// The armed run may have started in the meantime; that is ErrBusy.
		if err := s.engine.Cancel(); err != nil {
			return Selection{}, ErrBusy
		}
	}

	sel := Selection{Song: song, Difficulty: d, Instrument: i, Offsets: offsets}
	err = s.engine.Arm(engine.RunConfig{
		Offsets: offsets,
		DelayMs: s.settings.DelayMs,
		Key:     s.settings.OverdriveKey,
		Hold:    s.settings.KeyHold(),
		Label:   sel.Label(),
	})
	if err != nil {
		if errors.Is(err, engine.ErrStateConflict) {
			return Selection{}, ErrBusy
		}
		return Selection{}, err
	}

	if s.recorder != nil {
		s.recorder.Track(storage.RunMeta{
			ID:         s.engine.Status().RunID,
			Song:       song.DisplayTitle,
			Difficulty: string(d),
			Instrument: string(i),
			DelayMs:    s.settings.DelayMs,
			Offsets:    offsets,
			Key:        s.settings.OverdriveKey,
		})
	}

	runID := s.engine.Status().RunID
	s.listener.Arm(func() { s.startArmed(runID) })
	s.selection = sel
	s.logger.Info("armed", "song", song.DisplayTitle, "difficulty", d, "instrument", i, "offsets", len(offsets))
	return sel, nil
}

// startArmed runs on the listener's goroutine after a lane key press.
// A press that raced with a re-arm must not start the replacement run.
func (s *Session) startArmed(runID string) {
	err := s.engine.StartRun(runID)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrRunReplaced):
		s.logger.Debug("stale start signal dropped", "run", runID)
	default:
		s.logger.Warn("start signal ignored", "error", err)
	}
}

// HandleKey feeds a key event to the trigger listener.
// Reports whether the event started the armed run.
func (s *Session) HandleKey(ev trigger.KeyEvent) bool {
	return s.listener.Handle(ev)
}

// IsLane reports whether key is a configured lane key.
func (s *Session) IsLane(key string) bool {
	return s.listener.IsLane(key)
}

// StartNow starts the armed run without waiting for a lane key.
func (s *Session) StartNow() error {
	s.listener.Disarm()
	return s.engine.Start()
}

// Cancel stops the armed or running run. It never blocks on the run.
func (s *Session) Cancel() error {
	s.listener.Disarm()
	return s.engine.Cancel()
}

// Shutdown cancels any run and waits up to grace for the scheduling loop to
// stop, then up to grace for in-flight key presses. It then releases the
// audio cue and history store. Reports whether the loop stopped and every
// press finished in time. Safe to call more than once.
func (s *Session) Shutdown(grace time.Duration) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	s.closed = true
	s.mu.Unlock()

	if s.stopKeys != nil {
		s.stopKeys()
		<-s.keysDone
	}
	s.listener.Disarm()
	if err := s.engine.Cancel(); err != nil && !errors.Is(err, engine.ErrStateConflict) {
		s.logger.Warn("cancel on shutdown failed", "error", err)
	}

	// No press can be issued once the loop has exited.
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	_, err := s.engine.Wait(ctx)
	cancel()
	stopped := err == nil
	if !stopped {
		s.logger.Warn("run did not stop within the grace period")
	}

	clean := s.actuator.Wait(grace) && stopped

	if s.stopRecorder != nil {
		// Let the recorder write the cancellation before it is stopped.
		if !s.recorder.Settle(grace) {
			s.logger.Warn("run history may be incomplete")
		}
		s.stopRecorder()
		<-s.recorder.Done()
	}

	if err := s.cue.Close(); err != nil {
		s.logger.Warn("failed to close audio cue", "error", err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("failed to close history", "error", err)
		}
	}
	return clean
}
