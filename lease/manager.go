package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OperatorFoundation/nahoftu4i/capture"
	"github.com/OperatorFoundation/nahoftu4i/clock"
	"github.com/OperatorFoundation/nahoftu4i/observability"
)

// Manager acquires and releases the lock and capture connection around a
// session. It is owned by a single goroutine.
type Manager struct {
	lock     Lock
	source   capture.Source
	clock    clock.Clock
	maxHold  time.Duration
	onExpire func(epoch uint64)
	observer observability.Observer

	epoch    uint64
	held     bool
	conn     capture.Conn
	backstop clock.Timer
}

// Option configures a Manager.
type Option func(*Manager)

// WithObserver sets the observer for lease events.
func WithObserver(o observability.Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithExpireFunc sets the callback invoked when a hold outlives maxHold. The
// callback runs on a timer goroutine and receives the epoch of the hold; the
// owner passes it to Expired before acting.
func WithExpireFunc(fn func(epoch uint64)) Option {
	return func(m *Manager) { m.onExpire = fn }
}

// NewManager creates a Manager that holds resources for at most maxHold.
func NewManager(lock Lock, source capture.Source, c clock.Clock, maxHold time.Duration, opts ...Option) *Manager {
	m := &Manager{
		lock:     lock,
		source:   source,
		clock:    c,
		maxHold:  maxHold,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire takes the lock, then connects to the capture source. On failure
// whatever was acquired is released before returning. A capture source that
// cannot be reached yields an error wrapping capture.ErrUnavailable; any other
// failure wraps ErrResourceAcquisition.
func (m *Manager) Acquire(ctx context.Context) (capture.Conn, error) {
	if m.held {
		return nil, fmt.Errorf("%w: %w", ErrResourceAcquisition, ErrHeld)
	}

	if err := m.lock.Acquire(ctx, m.maxHold); err != nil {
		m.emit(ctx, EventAcquireFailed, observability.LevelWarning, map[string]any{
			"stage": "lock",
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%w: lock: %w", ErrResourceAcquisition, err)
	}
	m.held = true

	conn, err := m.source.Discover(ctx)
	if err != nil {
		m.emit(ctx, EventAcquireFailed, observability.LevelWarning, map[string]any{
			"stage": "capture",
			"error": err.Error(),
		})
		if rerr := m.Release(ctx); rerr != nil {
			err = errors.Join(err, rerr)
		}
		if errors.Is(err, capture.ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: capture: %w", ErrResourceAcquisition, err)
	}
	m.conn = conn

	m.epoch++
	epoch := m.epoch
	if m.maxHold > 0 && m.onExpire != nil {
		m.backstop = m.clock.AfterFunc(m.maxHold, func() { m.onExpire(epoch) })
	}

	m.emit(ctx, EventAcquire, observability.LevelInfo, map[string]any{
		"epoch":    epoch,
		"max_hold": m.maxHold.String(),
	})
	return conn, nil
}

// Release closes the capture connection and releases the lock. It runs every
// step even when earlier steps fail and is a no-op when nothing is held.
func (m *Manager) Release(ctx context.Context) error {
	if m.backstop != nil {
		m.backstop.Stop()
		m.backstop = nil
	}

	var errs []error
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close capture: %w", err))
		}
		m.conn = nil
	}
	if m.held {
		if err := m.lock.Release(ctx); err != nil {
			errs = append(errs, fmt.Errorf("release lock: %w", err))
		}
		m.held = false
		m.emit(ctx, EventRelease, observability.LevelInfo, map[string]any{"epoch": m.epoch})
	}
	return errors.Join(errs...)
}

// Held reports whether the lock is held by this manager.
func (m *Manager) Held() bool { return m.held }

// Conn returns the live capture connection, or nil.
func (m *Manager) Conn() capture.Conn { return m.conn }

// Expired reports whether epoch identifies the current hold. Backstop fires
// from a released or replaced hold return false.
func (m *Manager) Expired(epoch uint64) bool {
	return m.held && m.conn != nil && epoch == m.epoch
}

func (m *Manager) emit(ctx context.Context, t observability.EventType, level observability.Level, data map[string]any) {
	m.observer.OnEvent(ctx, observability.Event{
		Type:      t,
		Level:     level,
		Timestamp: m.clock.Now(),
		Source:    "lease",
		Data:      data,
	})
}
