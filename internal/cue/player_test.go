package cue

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
)

type fakeChannel struct {
	playing   bool
	plays     int
	rewinds   int
	rewindErr error
}

func (c *fakeChannel) IsPlaying() bool { return c.playing }

func (c *fakeChannel) Rewind() error {
	c.rewinds++
	return c.rewindErr
}

func (c *fakeChannel) Play() {
	c.plays++
	c.playing = true
}

func TestTryPlayWhenIdle(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPlayer(ch)

	if got := p.TryPlay(); got != Played {
		t.Fatalf("TryPlay() = %v, want played", got)
	}
	if !p.IsBusy() {
		t.Error("channel should be busy after a play")
	}
	if ch.plays != 1 || ch.rewinds != 1 {
		t.Errorf("plays=%d rewinds=%d, want 1/1", ch.plays, ch.rewinds)
	}
}

func TestTryPlayWhenBusySkips(t *testing.T) {
	ch := &fakeChannel{playing: true}
	p := NewPlayer(ch)

	if got := p.TryPlay(); got != Skipped {
		t.Fatalf("TryPlay() = %v, want skipped", got)
	}
	if ch.plays != 0 || ch.rewinds != 0 {
		t.Errorf("busy channel was touched: plays=%d rewinds=%d", ch.plays, ch.rewinds)
	}
	if !ch.playing {
		t.Error("busy channel state changed")
	}
}

func TestTryPlayRewindFailureSkips(t *testing.T) {
	ch := &fakeChannel{rewindErr: errors.New("seek failed")}
	var logs bytes.Buffer
	p := NewPlayer(ch)
	p.SetLogger(log.New(&logs))

	if got := p.TryPlay(); got != Skipped {
		t.Errorf("TryPlay() = %v, want skipped", got)
	}
	if ch.plays != 0 {
		t.Error("channel played after a failed rewind")
	}
	if p.Enabled() {
		t.Error("player still enabled after a failed rewind")
	}
	if !strings.Contains(logs.String(), "seek failed") {
		t.Errorf("rewind failure not logged: %q", logs.String())
	}

	// The broken channel is not touched again
	if got := p.TryPlay(); got != Skipped {
		t.Errorf("second TryPlay() = %v, want skipped", got)
	}
	if ch.rewinds != 1 {
		t.Errorf("rewinds = %d, want 1", ch.rewinds)
	}
	if p.IsBusy() {
		t.Error("disabled player reports busy")
	}
}

func TestDisabledPlayer(t *testing.T) {
	p := Disabled()
	if p.Enabled() {
		t.Error("Disabled().Enabled() = true")
	}
	if got := p.TryPlay(); got != Skipped {
		t.Errorf("TryPlay() = %v, want skipped", got)
	}
	if p.IsBusy() {
		t.Error("disabled player reports busy")
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
}

func TestCloseDisables(t *testing.T) {
	closed := false
	p := NewPlayer(&fakeChannel{})
	p.closer = func() error {
		closed = true
		return nil
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if !closed {
		t.Error("closer not called")
	}
	if p.Enabled() || p.TryPlay() != Skipped {
		t.Error("player still enabled after Close()")
	}
}

func TestLoadEmptyPathIsDisabled(t *testing.T) {
	p, err := Load(afero.NewMemMapFs(), "", 0.5)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if p.Enabled() {
		t.Error("expected disabled player for empty path")
	}
}

func TestLoadFailuresDegrade(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "cue.flac", []byte("fLaC"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := afero.WriteFile(fs, "broken.wav", []byte("not a wav"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	tests := []struct {
		name string
		path string
		is   error
	}{
		{"missing", "nope.wav", nil},
		{"unsupported", "cue.flac", ErrUnsupportedFormat},
		{"corrupt", "broken.wav", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Load(fs, tt.path, 0.5)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("error %v is not %v", err, tt.is)
			}
			if p == nil || p.Enabled() {
				t.Error("failed load must return a disabled player")
			}
			if p.TryPlay() != Skipped {
				t.Error("disabled player played")
			}
		})
	}
}

func TestClampVolume(t *testing.T) {
	cases := map[float64]float64{-1: 0, 0: 0, 0.5: 0.5, 1: 1, 3: 1}
	for in, want := range cases {
		if got := clampVolume(in); got != want {
			t.Errorf("clampVolume(%v) = %v, want %v", in, got, want)
		}
	}
}
