package engine

import (
	"sync"
	"time"

	"github.com/vovakirdan/overdriver/internal/cue"
)

// Kind identifies what a Notification reports.
type Kind int

const (
	KindStarted Kind = iota
	KindFired
	KindDraining
	KindCompleted
	KindCancelled
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindStarted:
		return "started"
	case KindFired:
		return "fired"
	case KindDraining:
		return "draining"
	case KindCompleted:
		return "completed"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Notification is a progress event emitted by a run.
// Index, Target, Elapsed and Cue are only meaningful for KindFired.
type Notification struct {
	Kind    Kind
	RunID   string
	Label   string
	Index   int
	Target  int   // chart offset in ms
	Elapsed int64 // ms since start when the offset fired
	Cue     cue.Result
	Fired   int // offsets fired so far in this run
	Total   int // offsets in this run
	At      time.Time
}

// Drift returns how late (positive) or early (negative) the fire was,
// relative to the uncompensated chart offset.
func (n Notification) Drift() int64 {
	return n.Elapsed - int64(n.Target)
}

// hub fans notifications out to subscribers. Each subscriber gets its own
// unbounded mailbox so publish never blocks the scheduling loop.
type hub struct {
	mu   sync.Mutex
	subs map[int]*mailbox
	next int
}

func newHub() *hub {
	return &hub{subs: make(map[int]*mailbox)}
}

func (h *hub) subscribe(buffer int) (<-chan Notification, func()) {
	if buffer < 0 {
		buffer = 0
	}
	mb := &mailbox{
		signal: make(chan struct{}, 1),
		out:    make(chan Notification, buffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = mb
	h.mu.Unlock()

	go mb.run()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(mb.done)
		})
	}
	return mb.out, unsubscribe
}

func (h *hub) publish(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, mb := range h.subs {
		mb.push(n)
	}
}

type mailbox struct {
	mu     sync.Mutex
	queue  []Notification
	signal chan struct{}
	out    chan Notification
	done   chan struct{}
}

func (m *mailbox) push(n Notification) {
	m.mu.Lock()
	m.queue = append(m.queue, n)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// run delivers queued notifications in publish order until unsubscribed.
func (m *mailbox) run() {
	defer close(m.out)
	for {
		select {
		case <-m.done:
			return
		case <-m.signal:
		}

		for {
			m.mu.Lock()
			if len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			n := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()

			select {
			case m.out <- n:
			case <-m.done:
				return
			}
		}
	}
}
