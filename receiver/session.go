package receiver

import (
	"context"
	"fmt"
	"time"

	"github.com/OperatorFoundation/nahoftu4i/capture"
	"github.com/OperatorFoundation/nahoftu4i/fragment"
	"github.com/OperatorFoundation/nahoftu4i/observability"
	"github.com/OperatorFoundation/nahoftu4i/reconstruct"
	"github.com/OperatorFoundation/nahoftu4i/session"
	"github.com/OperatorFoundation/nahoftu4i/timeout"
)

// Everything in this file runs on the loop goroutine.

func (e *Engine) active() bool {
	return e.sess != nil && e.sess.State.IsActive()
}

func (e *Engine) start(ctx context.Context, identity string, key []byte) error {
	if e.active() {
		if e.sess.Identity == identity {
			e.emit(ctx, EventStartIgnored, observability.LevelVerbose, map[string]any{"identity": identity})
			return nil
		}
		e.emit(ctx, EventStartRejected, observability.LevelWarning, map[string]any{
			"active":    e.sess.Identity,
			"requested": identity,
		})
		return fmt.Errorf("%w: receiving from %s", ErrSessionActive, e.sess.Identity)
	}

	now := e.clock.Now()
	e.sess = session.New(identity, key, now)
	e.acc.Reset()
	e.attempter.Reset()
	e.metrics.RecordSession()

	conn, err := e.lease.Acquire(ctx)
	if err != nil {
		e.end(ctx, session.Stopped, err.Error())
		e.emit(ctx, EventStartFailed, observability.LevelError, map[string]any{
			"session_id": e.sess.ID,
			"identity":   identity,
			"error":      err.Error(),
		})
		e.publishAll()
		return err
	}

	next := session.Running
	window, err := conn.WindowInfo(ctx)
	if err != nil {
		e.emit(ctx, EventError, observability.LevelWarning, map[string]any{
			"stage": "window",
			"error": err.Error(),
		})
	} else if !window.Open() {
		next = session.WaitingForWindow
		e.arm(&e.window, signalWindow, window.Until)
		e.emit(ctx, EventWindowWait, observability.LevelInfo, map[string]any{"until": window.Until.String()})
	}

	e.transition(ctx, next)
	e.batches = conn.Batches()
	e.countdown.Activate()
	e.arm(&e.limit, signalLimit, e.cfg.MaxDuration.Std())
	e.arm(&e.refresh, signalRefresh, e.cfg.RefreshInterval.Std())

	e.emit(ctx, EventSessionStart, observability.LevelInfo, map[string]any{
		"session_id":    e.sess.ID,
		"identity":      identity,
		"state":         next.String(),
		"min_fragments": e.cfg.MinFragments,
		"observed":      e.countdown.Observed(),
	})
	e.publishAll()
	return nil
}

// teardown ends the active session. Every timer is cancelled and resources
// are released before it returns.
func (e *Engine) teardown(ctx context.Context, terminal session.State, reason string) {
	e.disarm(&e.window)
	e.disarm(&e.refresh)
	e.disarm(&e.limit)
	e.countdown.Deactivate()
	e.batches = nil

	abandoned := e.acc.Abandon(fragment.ReasonIncomplete)
	if abandoned > 0 {
		e.metrics.RecordAbandoned(abandoned)
	}
	if terminal == session.TimedOut {
		e.metrics.RecordTimeout()
	}

	if err := e.lease.Release(context.WithoutCancel(ctx)); err != nil {
		e.emit(ctx, EventError, observability.LevelError, map[string]any{
			"stage": "release",
			"error": err.Error(),
		})
	}

	e.sess.SpotsReceived = e.acc.SpotCount()
	e.end(ctx, terminal, reason)
	e.attempter.Reset()

	e.emit(ctx, EventSessionEnd, observability.LevelInfo, map[string]any{
		"session_id":        e.sess.ID,
		"state":             terminal.String(),
		"reason":            reason,
		"spots_received":    e.sess.SpotsReceived,
		"messages_resolved": e.sess.MessagesResolved,
		"abandoned":         abandoned,
	})
	e.publishAll()
}

func (e *Engine) handleBatch(batch capture.Batch) {
	if !e.active() {
		return
	}
	ctx := e.ctx
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = e.clock.Now()
	}

	if e.sess.State == session.WaitingForWindow {
		e.disarm(&e.window)
		e.transition(ctx, session.Running)
		e.emit(ctx, EventWindowOpen, observability.LevelInfo, map[string]any{"trigger": "batch"})
	}

	res := e.acc.Ingest(batch)
	e.sess.SpotsReceived = e.acc.SpotCount()
	e.metrics.RecordBatch(len(batch.Results), res.Added, res.Duplicates)
	e.emit(ctx, EventBatch, observability.LevelVerbose, map[string]any{
		"results":    len(batch.Results),
		"observed":   res.Observed,
		"added":      res.Added,
		"duplicates": res.Duplicates,
		"fragments":  e.acc.Len(),
	})

	if e.acc.Len() >= e.cfg.MinFragments {
		e.attempt(ctx, batch.ReceivedAt)
	}
	e.publishAll()
}

func (e *Engine) attempt(ctx context.Context, at time.Time) {
	set := e.acc.Current()
	out := e.attempter.Attempt(e.sess.Key, set)

	switch out.Status {
	case reconstruct.Skipped:
		return
	case reconstruct.Failed:
		e.metrics.RecordAttempt()
		e.emit(ctx, EventAttempt, observability.LevelVerbose, map[string]any{
			"group":     set.Group,
			"fragments": len(set.Fragments),
			"attempts":  e.attempter.Attempts(),
			"error":     out.Err.Error(),
		})
	case reconstruct.Succeeded:
		e.metrics.RecordAttempt()
		total := e.acc.Resolve()
		e.sess.MessagesResolved++
		e.metrics.RecordResolved()

		if at.IsZero() {
			at = e.clock.Now()
		}
		e.payloads.Push(reconstruct.Payload{
			SessionID:  e.sess.ID,
			Identity:   e.sess.Identity,
			Group:      set.Group,
			TotalParts: total,
			Ciphertext: out.Ciphertext,
			Plaintext:  out.Plaintext,
			ReceivedAt: at,
		})
		e.emit(ctx, EventResolved, observability.LevelInfo, map[string]any{
			"session_id":  e.sess.ID,
			"group":       set.Group,
			"total_parts": total,
			"bytes":       len(out.Plaintext),
		})
	}
}

func (e *Engine) handleSignal(sig signal) {
	ctx := e.ctx

	switch sig.kind {
	case signalCountdown:
		if !e.countdown.Accept(sig.countdown) || !e.active() {
			return
		}
		switch sig.countdown.Kind {
		case timeout.Warning:
			remaining, _ := e.countdown.Remaining()
			e.emit(ctx, EventTimeoutWarning, observability.LevelWarning, map[string]any{
				"remaining": remaining.String(),
			})
			e.publishState()
		case timeout.Expire:
			e.teardown(ctx, session.TimedOut, ReasonTimedOut)
		}

	case signalWindow:
		if !e.window.fired(sig.gen) || !e.active() || e.sess.State != session.WaitingForWindow {
			return
		}
		e.transition(ctx, session.Running)
		e.emit(ctx, EventWindowOpen, observability.LevelInfo, map[string]any{"trigger": "timer"})
		e.publishState()

	case signalRefresh:
		if !e.refresh.fired(sig.gen) || !e.active() {
			return
		}
		e.arm(&e.refresh, signalRefresh, e.cfg.RefreshInterval.Std())
		e.publishState()

	case signalLimit:
		if !e.limit.fired(sig.gen) || !e.active() {
			return
		}
		e.teardown(ctx, session.Stopped, ReasonMaxDuration)

	case signalBackstop:
		if !e.lease.Expired(sig.gen) || !e.active() {
			return
		}
		e.teardown(ctx, session.Stopped, ReasonHoldLimit)
	}
}

// transition and end apply a state change to the current session. A rejected
// change leaves the state as it was and is reported as an error event.
func (e *Engine) transition(ctx context.Context, next session.State) {
	e.reportTransition(ctx, next, e.sess.Transition(next, e.clock.Now()))
}

func (e *Engine) end(ctx context.Context, terminal session.State, reason string) {
	e.reportTransition(ctx, terminal, e.sess.End(terminal, reason, e.clock.Now()))
}

func (e *Engine) reportTransition(ctx context.Context, next session.State, err error) {
	if err == nil {
		return
	}
	e.emit(ctx, EventError, observability.LevelError, map[string]any{
		"stage":      "transition",
		"session_id": e.sess.ID,
		"from":       e.sess.State.String(),
		"to":         next.String(),
		"error":      err.Error(),
	})
}

func (e *Engine) arm(slot *timerSlot, kind signalKind, d time.Duration) {
	e.disarm(slot)
	if d <= 0 {
		return
	}
	gen := slot.gen
	slot.timer = e.clock.AfterFunc(d, func() {
		e.deliver(signal{kind: kind, gen: gen})
	})
}

func (e *Engine) disarm(slot *timerSlot) {
	if slot.timer != nil {
		slot.timer.Stop()
		slot.timer = nil
	}
	slot.gen++
}

func (s *timerSlot) fired(gen uint64) bool {
	if s.timer == nil || gen != s.gen {
		return false
	}
	s.timer = nil
	return true
}

func (e *Engine) snapshot() session.Snapshot {
	now := e.clock.Now()
	snap := session.Snapshot{
		State:         session.Idle,
		Observed:      e.countdown.Observed(),
		GroupID:       e.acc.Group(),
		AttemptCount:  e.attempter.Attempts(),
		SpotCount:     e.acc.SpotCount(),
		FragmentCount: e.acc.Len(),
		Warning:       e.countdown.Warned(),
	}

	if s := e.sess; s != nil {
		snap.SessionID = s.ID
		snap.Identity = s.Identity
		snap.State = s.State
		snap.Reason = s.Reason
		snap.StartedAt = s.StartedAt
		snap.SpotsReceived = s.SpotsReceived
		snap.MessagesResolved = s.MessagesResolved
		if s.State.IsTerminal() {
			snap.Elapsed = s.EndedAt.Sub(s.StartedAt)
		} else {
			snap.Elapsed = now.Sub(s.StartedAt)
		}
	}

	if remaining, ok := e.countdown.Remaining(); ok {
		deadline := e.countdown.Deadline()
		snap.Deadline = &deadline
		snap.Remaining = &remaining
	}
	return snap
}

func (e *Engine) publishState() {
	snap := e.snapshot()
	e.current.Store(&snap)
	e.states.Publish(snap)
}

func (e *Engine) publishAll() {
	e.spots.Publish(e.acc.Spots())
	e.publishState()
}

func (e *Engine) emit(ctx context.Context, t observability.EventType, level observability.Level, data map[string]any) {
	e.observer.OnEvent(ctx, observability.Event{
		Type:      t,
		Level:     level,
		Timestamp: e.clock.Now(),
		Source:    "receiver",
		Data:      data,
	})
}
