package engine

import (
	"context"
	"runtime"
	"time"
)

// loop is the scheduling goroutine of a run. It is the only writer of r.fired.
func (e *Engine) loop(r *run) {
	defer r.cancel()

	for i, offset := range r.cfg.Offsets {
		deadline := r.start.Add(time.Duration(offset-r.cfg.DelayMs) * time.Millisecond)
		if err := e.sleepUntil(r.ctx, deadline); err != nil {
			e.finish(r, StateCancelled)
			return
		}

		// Duplicate offset values are separate events; only the index is guarded.
		if r.fired[i] {
			continue
		}

		e.actuator.Fire(r.cfg.Key, r.cfg.Hold)
		played := e.cue.TryPlay()
		r.fired[i] = true
		fired := int(r.count.Add(1))

		now := time.Now()
		elapsed := now.Sub(r.start).Milliseconds()
		e.logger.Debug("overdrive", "index", i, "target_ms", offset, "elapsed_ms", elapsed, "cue", played)
		e.hub.publish(Notification{
			Kind:    KindFired,
			RunID:   r.id,
			Label:   r.cfg.Label,
			Index:   i,
			Target:  offset,
			Elapsed: elapsed,
			Cue:     played,
			Fired:   fired,
			Total:   len(r.cfg.Offsets),
			At:      now,
		})
	}

	e.setState(r, StateDraining)
	e.hub.publish(Notification{
		Kind:  KindDraining,
		RunID: r.id,
		Label: r.cfg.Label,
		Fired: int(r.count.Load()),
		Total: len(r.cfg.Offsets),
		At:    time.Now(),
	})

	if err := e.drain(r.ctx); err != nil {
		e.finish(r, StateCancelled)
		return
	}
	e.finish(r, StateCompleted)
}

// finish records the terminal state, emits the final notification and
// releases Wait callers.
func (e *Engine) finish(r *run, s State) {
	e.setState(r, s)

	kind := KindCompleted
	if s == StateCancelled {
		kind = KindCancelled
	}
	fired := int(r.count.Load())
	e.logger.Info("run "+kind.String(), "run", r.id, "fired", fired, "total", len(r.cfg.Offsets))
	e.hub.publish(Notification{
		Kind:  kind,
		RunID: r.id,
		Label: r.cfg.Label,
		Fired: fired,
		Total: len(r.cfg.Offsets),
		At:    time.Now(),
	})
	close(r.done)
}

// sleepUntil waits for the monotonic deadline or ctx, whichever is first.
// It sleeps on a timer until the spin window, then yields until the deadline.
func (e *Engine) sleepUntil(ctx context.Context, deadline time.Time) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if remaining <= e.spin {
			runtime.Gosched()
			continue
		}

		d := remaining - e.spin
		if timer == nil {
			timer = time.NewTimer(d)
		} else {
			timer.Reset(d)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// drain waits until the audio cue has finished playing.
func (e *Engine) drain(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !e.cue.IsBusy() {
		return nil
	}

	ticker := time.NewTicker(e.drainInterval)
	defer ticker.Stop()

	for e.cue.IsBusy() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
