// Package cue plays a preloaded audio cue on a single output channel.
// A cue is only started when the channel is idle; otherwise it is skipped.
package cue

import (
	"sync"

	"github.com/charmbracelet/log"
)

// Result reports what TryPlay did.
type Result int

const (
	Skipped Result = iota
	Played
)

// String returns a human-readable name for the result.
func (r Result) String() string {
	if r == Played {
		return "played"
	}
	return "skipped"
}

// Channel is a single audio output slot holding one preloaded sound.
type Channel interface {
	IsPlaying() bool
	Rewind() error
	Play()
}

// Player gates a Channel so a cue never interrupts or overlaps itself.
// A Player without a channel is disabled: every TryPlay is Skipped.
type Player struct {
	mu      sync.Mutex
	channel Channel
	closer  func() error
	logger  *log.Logger
}

// NewPlayer wraps an already loaded channel.
func NewPlayer(ch Channel) *Player {
	return &Player{channel: ch}
}

// Disabled returns a player that never plays.
func Disabled() *Player {
	return &Player{}
}

// SetLogger sets where playback failures are reported. nil uses log.Default().
func (p *Player) SetLogger(l *log.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger = l
}

// Enabled reports whether the player has a usable channel.
func (p *Player) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel != nil
}

// TryPlay starts the cue from the beginning if the channel is idle.
// It never blocks on playback and never queues. A channel that fails to
// rewind disables the player for the rest of its life.
func (p *Player) TryPlay() Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil || p.channel.IsPlaying() {
		return Skipped
	}
	if err := p.channel.Rewind(); err != nil {
		logger := p.logger
		if logger == nil {
			logger = log.Default()
		}
		logger.Error("audio cue disabled", "error", err)
		p.channel = nil
		return Skipped
	}
	p.channel.Play()
	return Played
}

// IsBusy reports whether the cue is still sounding.
func (p *Player) IsBusy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel != nil && p.channel.IsPlaying()
}

// Close releases the underlying channel. The player is disabled afterwards.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.closer != nil {
		err = p.closer()
	}
	p.channel = nil
	p.closer = nil
	return err
}
