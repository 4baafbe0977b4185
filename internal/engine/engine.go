package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/vovakirdan/overdriver/internal/cue"
)

// Defaults for the scheduling loop.
const (
	DefaultSpinWindow    = time.Millisecond
	DefaultDrainInterval = 100 * time.Millisecond
)

// Actuator presses a key for a hold duration without blocking the caller.
type Actuator interface {
	Fire(key string, hold time.Duration)
}

// CuePlayer plays the audio cue if its channel is idle.
type CuePlayer interface {
	TryPlay() cue.Result
	IsBusy() bool
}

// RunConfig holds the immutable parameters of one run.
type RunConfig struct {
	// Offsets are chart offsets in ms from the start signal, in fire order.
	Offsets []int
	// DelayMs shifts every fire: offset t fires once elapsed >= t - DelayMs.
	DelayMs int
	// Key is the actuator key identifier.
	Key string
	// Hold is how long the key stays pressed.
	Hold time.Duration
	// Label is free text identifying the run (song, difficulty, instrument).
	Label string
}

// Status is a snapshot of the engine for presentation layers.
type Status struct {
	State   State
	RunID   string
	Label   string
	Fired   int
	Total   int
	Started time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. A nil logger keeps log.Default().
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSpinWindow sets how long before a deadline the loop stops sleeping
// on a timer and yields in a tight loop instead. Zero disables spinning.
func WithSpinWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.spin = d
		}
	}
}

// WithDrainInterval sets how often IsBusy is polled after the last offset.
func WithDrainInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.drainInterval = d
		}
	}
}

// Engine runs one overdrive schedule at a time.
type Engine struct {
	actuator      Actuator
	cue           CuePlayer
	logger        *log.Logger
	spin          time.Duration
	drainInterval time.Duration
	hub           *hub

	mu    sync.Mutex
	state State
	run   *run
}

// run is the per-run state. Only the scheduling goroutine touches fired.
type run struct {
	id     string
	cfg    RunConfig
	start  time.Time
	fired  []bool
	count  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle engine. A nil cue player means no audio cue.
func New(act Actuator, cp CuePlayer, opts ...Option) *Engine {
	if act == nil {
		act = nopActuator{}
	}
	if cp == nil {
		cp = cue.Disabled()
	}
	e := &Engine{
		actuator:      act,
		cue:           cp,
		logger:        log.Default(),
		spin:          DefaultSpinWindow,
		drainInterval: DefaultDrainInterval,
		hub:           newHub(),
		state:         StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Arm accepts a run configuration. Allowed from Idle, Completed or Cancelled.
// An empty offset list is accepted; such a run goes straight to draining.
func (e *Engine) Arm(cfg RunConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateIdle, StateCompleted, StateCancelled:
	default:
		return &StateError{Op: "arm", State: e.state}
	}

	cfg.Offsets = append([]int(nil), cfg.Offsets...)
	ctx, cancel := context.WithCancel(context.Background())
	e.run = &run{
		id:     uuid.NewString(),
		cfg:    cfg,
		fired:  make([]bool, len(cfg.Offsets)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.state = StateArmed

	e.logger.Debug("armed", "run", e.run.id, "label", cfg.Label, "offsets", len(cfg.Offsets), "delay_ms", cfg.DelayMs)
	return nil
}

// Start records the start timestamp and launches the scheduling loop.
// Allowed only from Armed.
func (e *Engine) Start() error {
	return e.start("")
}

// StartRun is Start for a specific armed run. It returns ErrRunReplaced
// when runID is no longer the armed run.
func (e *Engine) StartRun(runID string) error {
	return e.start(runID)
}

func (e *Engine) start(runID string) error {
	e.mu.Lock()
	if e.state != StateArmed {
		st := e.state
		e.mu.Unlock()
		return &StateError{Op: "start", State: st}
	}
	if runID != "" && e.run.id != runID {
		e.mu.Unlock()
		return ErrRunReplaced
	}
	r := e.run
	r.start = time.Now()
	e.state = StateRunning
	e.mu.Unlock()

	e.logger.Info("run started", "run", r.id, "label", r.cfg.Label)
	e.hub.publish(Notification{
		Kind:  KindStarted,
		RunID: r.id,
		Label: r.cfg.Label,
		Total: len(r.cfg.Offsets),
		At:    r.start,
	})

	go e.loop(r)
	return nil
}

// Cancel stops the current run. From Armed the transition to Cancelled is
// immediate; from Running or Draining the loop observes it at its next wait.
// Cancel never blocks on the loop, in-flight key presses or audio.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	switch e.state {
	case StateArmed:
		r := e.run
		e.state = StateCancelled
		r.cancel()
		e.mu.Unlock()

		e.hub.publish(Notification{Kind: KindCancelled, RunID: r.id, Label: r.cfg.Label, Total: len(r.cfg.Offsets), At: time.Now()})
		close(r.done)
		return nil
	case StateRunning, StateDraining:
		r := e.run
		e.mu.Unlock()
		r.cancel()
		return nil
	default:
		st := e.state
		e.mu.Unlock()
		return &StateError{Op: "cancel", State: st}
	}
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{State: e.state}
	if e.run != nil {
		st.RunID = e.run.id
		st.Label = e.run.cfg.Label
		st.Total = len(e.run.cfg.Offsets)
		st.Fired = int(e.run.count.Load())
		st.Started = e.run.start
	}
	return st
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Active reports whether a run is Running or Draining.
func (e *Engine) Active() bool {
	return e.State().Active()
}

// Subscribe registers a notification consumer. The returned function
// unsubscribes and closes the channel. buffer sizes the delivery channel;
// undelivered notifications queue without bound and never block the engine.
func (e *Engine) Subscribe(buffer int) (<-chan Notification, func()) {
	return e.hub.subscribe(buffer)
}

// Wait blocks until the armed or running run reaches a terminal state, or
// ctx ends. With no run it returns the current state immediately.
func (e *Engine) Wait(ctx context.Context) (State, error) {
	e.mu.Lock()
	r := e.run
	e.mu.Unlock()

	if r == nil {
		return e.State(), nil
	}

	select {
	case <-r.done:
		return e.State(), nil
	case <-ctx.Done():
		return e.State(), ctx.Err()
	}
}

// setState moves the engine forward if r is still the current run.
func (e *Engine) setState(r *run, s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run == r {
		e.state = s
	}
}

type nopActuator struct{}

func (nopActuator) Fire(string, time.Duration) {}
