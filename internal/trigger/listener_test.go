package trigger

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var lanes = []string{"a", "s", "j", "k", "l"}

// waitCount polls until counter reaches want or a second passes.
func waitCount(counter *atomic.Int32, want int32) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if counter.Load() == want {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return counter.Load() == want
}

func TestLanePressStartsOnce(t *testing.T) {
	var starts atomic.Int32
	l := NewListener(lanes, nil)
	l.Arm(func() { starts.Add(1) })

	if !l.Handle(Press("j")) {
		t.Fatal("lane press did not produce a start signal")
	}
	if l.Handle(Press("k")) {
		t.Error("second press produced another start signal")
	}
	if !waitCount(&starts, 1) {
		t.Fatalf("callback ran %d times, want 1", starts.Load())
	}
	if l.Armed() {
		t.Error("listener still armed after firing")
	}
}

func TestNonLaneKeysIgnored(t *testing.T) {
	var starts atomic.Int32
	l := NewListener(lanes, nil)
	l.Arm(func() { starts.Add(1) })

	for _, k := range []string{"q", "space", "enter", "1"} {
		if l.Handle(Press(k)) {
			t.Errorf("non-lane key %q started the run", k)
		}
	}
	if !l.Armed() {
		t.Error("non-lane keys disarmed the listener")
	}
	if starts.Load() != 0 {
		t.Error("callback ran for non-lane keys")
	}
}

func TestReleaseDoesNotStart(t *testing.T) {
	l := NewListener(lanes, nil)
	l.Arm(func() {})

	if l.Handle(Release("a")) {
		t.Error("release produced a start signal")
	}
	if !l.Armed() {
		t.Error("release disarmed the listener")
	}
}

func TestIgnoredWhileRunActive(t *testing.T) {
	var active atomic.Bool
	active.Store(true)

	var starts atomic.Int32
	l := NewListener(lanes, active.Load)
	l.Arm(func() { starts.Add(1) })

	if l.Handle(Press("a")) {
		t.Error("press while a run is active produced a start signal")
	}
	if !l.Armed() {
		t.Error("ignored press disarmed the listener")
	}

	active.Store(false)
	if !l.Handle(Press("a")) {
		t.Error("press after the run ended did not start")
	}
	if !waitCount(&starts, 1) {
		t.Errorf("callback ran %d times, want 1", starts.Load())
	}
}

func TestUnarmedPressIsIgnored(t *testing.T) {
	l := NewListener(lanes, nil)
	if l.Handle(Press("a")) {
		t.Error("unarmed listener produced a start signal")
	}
}

func TestRearmReplacesCallback(t *testing.T) {
	var first, second atomic.Int32
	l := NewListener(lanes, nil)
	l.Arm(func() { first.Add(1) })
	l.Arm(func() { second.Add(1) })

	l.Handle(Press("l"))
	if !waitCount(&second, 1) || first.Load() != 0 {
		t.Errorf("first=%d second=%d, want 0/1", first.Load(), second.Load())
	}
}

func TestDisarm(t *testing.T) {
	l := NewListener(lanes, nil)
	l.Arm(func() { t.Error("callback ran after Disarm") })
	l.Disarm()
	if l.Handle(Press("a")) {
		t.Error("disarmed listener produced a start signal")
	}
}

func TestHandleDoesNotBlockOnCallback(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	l := NewListener(lanes, nil)
	l.Arm(func() { <-release })

	start := time.Now()
	l.Handle(Press("a"))
	if took := time.Since(start); took > 50*time.Millisecond {
		t.Errorf("Handle() blocked for %v", took)
	}
}

func TestPressedTracksHeldLanes(t *testing.T) {
	l := NewListener(lanes, nil)
	l.Handle(Press("S"))
	l.Handle(Press("a"))
	l.Handle(Press("q"))

	got := l.Pressed()
	if len(got) != 2 || got[0] != "a" || got[1] != "s" {
		t.Errorf("Pressed() = %v, want [a s]", got)
	}

	l.Handle(Release("a"))
	if got := l.Pressed(); len(got) != 1 || got[0] != "s" {
		t.Errorf("Pressed() after release = %v, want [s]", got)
	}
}

func TestSpaceNormalization(t *testing.T) {
	l := NewListener([]string{"space"}, nil)
	if !l.IsLane(" ") || !l.IsLane("SPACE") {
		t.Error("space spellings should match the space lane")
	}
}

func TestFeed(t *testing.T) {
	var starts atomic.Int32
	l := NewListener(lanes, nil)
	l.Arm(func() { starts.Add(1) })

	src := make(chan KeyEvent, 4)
	src <- Press("q")
	src <- Press("a")
	src <- Press("s")
	close(src)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	l.Feed(ctx, src)

	if !waitCount(&starts, 1) {
		t.Errorf("callback ran %d times, want 1", starts.Load())
	}
}

// Whatever sequence of events arrives, one arming yields at most one start.
func TestProperty_AtMostOnceStartPerArming(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	keys := []string{"a", "s", "j", "k", "l", "q", "space", "enter"}
	properties.Property("at most one start per arming", prop.ForAll(
		func(codes []int) bool {
			l := NewListener(lanes, nil)
			l.Arm(func() {})

			signals := 0
			for _, c := range codes {
				// Even codes press, odd codes release.
				ev := KeyEvent{Key: keys[(c/2)%len(keys)], Pressed: c%2 == 0}
				if l.Handle(ev) {
					signals++
				}
			}
			return signals <= 1
		},
		gen.SliceOf(gen.IntRange(0, 2*len(keys)-1)),
	))

	properties.TestingRun(t)
}
