// Package console runs a prepared overdrive session from a plain terminal.
// Lane keys are read from stdin in raw mode while armed, and progress is
// drawn with an mpb bar once the run starts.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/vovakirdan/overdriver/internal/engine"
	"github.com/vovakirdan/overdriver/internal/session"
	"github.com/vovakirdan/overdriver/internal/trigger"
)

const refreshRate = 30 * time.Millisecond

// Console drives one armed run on a terminal.
type Console struct {
	sess   *session.Session
	in     io.Reader
	out    io.Writer
	logger *log.Logger

	raw atomic.Bool
}

// New creates a console. in is usually os.Stdin; raw mode is only used when
// it is a terminal.
func New(sess *session.Session, in io.Reader, out io.Writer, logger *log.Logger) *Console {
	if logger == nil {
		logger = log.Default()
	}
	return &Console{sess: sess, in: in, out: out, logger: logger}
}

// Run waits for a lane key, or starts at once when now is set, then shows
// progress until the run ends. Cancelling ctx, Esc or Ctrl+C cancels the run.
// It returns the final state of the run.
func (c *Console) Run(ctx context.Context, now bool) (engine.State, error) {
	notes, unsubscribe := c.sess.Subscribe(16)
	defer unsubscribe()

	st := c.sess.Status()
	if st.State != engine.StateArmed {
		return st.State, fmt.Errorf("console: nothing armed (state %s)", st.State)
	}
	runID := st.RunID

	interrupt := make(chan struct{}, 1)
	restore := func() {}
	if now {
		if err := c.sess.StartNow(); err != nil {
			return c.sess.Status().State, err
		}
	} else {
		restore = c.rawMode()
		c.println(session.ReadyMessage(c.sess.Settings().LaneKeys))
		go c.readKeys(interrupt)
	}
	defer restore()

	var (
		p     *mpb.Progress
		bar   *mpb.Bar
		last  atomic.Value
		fires []engine.Notification
		done  = ctx.Done()
	)
	last.Store("")

	for {
		select {
		case <-done:
			done = nil
			c.cancel()

		case <-interrupt:
			c.cancel()

		case n, ok := <-notes:
			if !ok {
				return c.sess.Status().State, errors.New("console: notifications closed")
			}
			if n.RunID != runID {
				continue
			}

			switch n.Kind {
			case engine.KindStarted:
				restore()
				c.println(session.MsgStarted)
				p, bar = c.newBar(n.Total, &last)

			case engine.KindFired:
				fires = append(fires, n)
				last.Store(fmt.Sprintf("drift %+d ms", n.Drift()))
				if bar != nil {
					bar.Increment()
				}

			case engine.KindDraining:
				last.Store("waiting for cue")

			case engine.KindCompleted, engine.KindCancelled:
				restore()
				finish(p, bar, n.Kind == engine.KindCompleted)
				c.summary(fires)
				c.println(session.Message(n))
				if n.Kind == engine.KindCompleted {
					return engine.StateCompleted, nil
				}
				return engine.StateCancelled, nil
			}
		}
	}
}

func (c *Console) cancel() {
	if err := c.sess.Cancel(); err != nil && !errors.Is(err, engine.ErrStateConflict) {
		c.logger.Warn("cancel failed", "error", err)
	}
}

// rawMode switches a terminal input to raw mode and returns a restore func
// that is safe to call more than once.
func (c *Console) rawMode() func() {
	f, ok := c.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return func() {}
	}
	old, err := term.MakeRaw(int(f.Fd()))
	if err != nil {
		c.logger.Warn("cannot switch terminal to raw mode", "error", err)
		return func() {}
	}
	c.raw.Store(true)

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := term.Restore(int(f.Fd()), old); err != nil {
				c.logger.Warn("cannot restore terminal", "error", err)
			}
			c.raw.Store(false)
		})
	}
}

// readKeys feeds lane keys to the session until the input ends.
// A blocked read on a terminal outlives the run; that is fine for a CLI.
func (c *Console) readKeys(interrupt chan<- struct{}) {
	buf := make([]byte, 64)
	for {
		n, err := c.in.Read(buf)
		if n > 0 {
			keys, intr := decodeKeys(buf[:n])
			if intr {
				select {
				case interrupt <- struct{}{}:
				default:
				}
			}
			for _, k := range keys {
				if !c.sess.IsLane(k) {
					continue
				}
				// A terminal only reports presses, so release right away.
				c.sess.HandleKey(trigger.Press(k))
				c.sess.HandleKey(trigger.Release(k))
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Debug("key reader stopped", "error", err)
			}
			return
		}
	}
}

// decodeKeys turns one read from the terminal into key names. Escape
// sequences such as arrow keys are dropped. A lone Esc or Ctrl+C asks for
// cancellation.
func decodeKeys(b []byte) (keys []string, interrupt bool) {
	if len(b) > 1 && b[0] == 0x1b {
		return nil, false
	}
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		switch {
		case r == 0x03 || r == 0x1b:
			interrupt = true
		case r == ' ':
			keys = append(keys, "space")
		case r == '\r' || r == '\n':
			keys = append(keys, "enter")
		case r == '\t':
			keys = append(keys, "tab")
		case unicode.IsPrint(r):
			keys = append(keys, strings.ToLower(string(r)))
		}
	}
	return keys, interrupt
}

func (c *Console) newBar(total int, last *atomic.Value) (*mpb.Progress, *mpb.Bar) {
	p := mpb.New(
		mpb.WithOutput(c.out),
		mpb.WithWidth(48),
		mpb.WithRefreshRate(refreshRate),
	)
	barStyle := mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟")

	name := "Overdrive"
	bar := p.New(int64(total),
		barStyle,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.CountersNoUnit("%d/%d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Elapsed(decor.ET_STYLE_MMSS, decor.WC{W: 6}),
			decor.Any(func(decor.Statistics) string {
				s, _ := last.Load().(string)
				return " " + s
			}),
		),
	)
	return p, bar
}

// finish settles the bar and waits for its last render.
func finish(p *mpb.Progress, bar *mpb.Bar, completed bool) {
	if bar == nil {
		return
	}
	if completed {
		bar.SetTotal(-1, true)
	} else {
		bar.Abort(false)
	}
	p.Wait()
}

func (c *Console) summary(fires []engine.Notification) {
	for _, n := range fires {
		c.println(fmt.Sprintf("#%-3d target %7d ms  actual %7d ms  drift %+4d ms  cue %s",
			n.Index+1, n.Target, n.Elapsed, n.Drift(), n.Cue))
	}
}

// println writes one status message, translating newlines in raw mode.
func (c *Console) println(msg string) {
	eol := "\n"
	if c.raw.Load() {
		msg = strings.ReplaceAll(msg, "\n", "\r\n")
		eol = "\r\n"
	}
	fmt.Fprint(c.out, msg+eol)
}
