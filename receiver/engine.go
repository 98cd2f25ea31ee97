// Package receiver implements the receive session engine: a single
// coordinating goroutine that owns the session, its fragments and spots, the
// background countdown, and the held capture resources.
//
// Every mutation happens on that goroutine. Public methods send it a command
// and wait for the result; timers and the capture connection send it
// signals and batches. Readers see published snapshots only.
//
//	e, err := receiver.New(&cfg)
//	err = e.Start(ctx, "alice", alicePublicKey)
//	for p := range e.Payloads() { ... }
package receiver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/OperatorFoundation/nahoftu4i/capture"
	"github.com/OperatorFoundation/nahoftu4i/clock"
	"github.com/OperatorFoundation/nahoftu4i/fragment"
	"github.com/OperatorFoundation/nahoftu4i/keys"
	"github.com/OperatorFoundation/nahoftu4i/lease"
	"github.com/OperatorFoundation/nahoftu4i/observability"
	"github.com/OperatorFoundation/nahoftu4i/reconstruct"
	"github.com/OperatorFoundation/nahoftu4i/session"
	"github.com/OperatorFoundation/nahoftu4i/stream"
	"github.com/OperatorFoundation/nahoftu4i/timeout"
)

const signalBuffer = 16

type command struct {
	ctx   context.Context
	fn    func(ctx context.Context) error
	reply chan error
}

type signalKind int

const (
	signalCountdown signalKind = iota
	signalWindow
	signalRefresh
	signalLimit
	signalBackstop
)

type signal struct {
	kind      signalKind
	gen       uint64
	countdown timeout.Signal
}

// timerSlot is one individually cancellable timer. Fires carrying an older
// generation are dropped.
type timerSlot struct {
	timer clock.Timer
	gen   uint64
}

// Engine is the receive session engine.
type Engine struct {
	cfg      session.Config
	clock    clock.Clock
	observer observability.Observer
	metrics  *Metrics

	source    capture.Source
	parser    fragment.Parser
	assembler reconstruct.Assembler
	decryptor reconstruct.Decryptor
	lock      lease.Lock

	states   *stream.Broadcaster[session.Snapshot]
	spots    *stream.Broadcaster[[]fragment.Spot]
	payloads *stream.Outbox[reconstruct.Payload]
	current  atomic.Pointer[session.Snapshot]

	commands chan command
	signals  chan signal

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Owned by the loop goroutine.
	sess      *session.Session
	acc       *fragment.Accumulator
	attempter *reconstruct.Attempter
	countdown *timeout.Coordinator
	lease     *lease.Manager
	batches   <-chan capture.Batch
	window    timerSlot
	refresh   timerSlot
	limit     timerSlot
}

// New creates an Engine from configuration and starts its coordinating
// goroutine. Collaborators supplied by options replace the ones that would
// otherwise be built from cfg.
func New(cfg *Config, opts ...Option) (*Engine, error) {
	merged := DefaultConfig()
	if cfg != nil {
		merged.Merge(cfg)
	}
	if err := merged.Session.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	e := &Engine{
		cfg:      merged.Session,
		metrics:  NewMetrics(),
		commands: make(chan command),
		signals:  make(chan signal, signalBuffer),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.fillDefaults(&merged); err != nil {
		return nil, err
	}

	e.states = stream.NewBroadcaster[session.Snapshot](e.cfg.StreamBuffer)
	e.spots = stream.NewBroadcaster[[]fragment.Spot](e.cfg.StreamBuffer)
	e.payloads = stream.NewOutbox[reconstruct.Payload]()

	e.acc = fragment.NewAccumulator(e.parser, fragment.WithClock(e.clock))
	e.attempter = reconstruct.NewAttempter(e.assembler, e.decryptor)
	e.countdown = timeout.New(e.clock, e.cfg.Timeout.Std(), e.cfg.Warning.Std(), func(s timeout.Signal) {
		e.deliver(signal{kind: signalCountdown, countdown: s})
	})
	e.lease = lease.NewManager(e.lock, e.source, e.clock, e.cfg.HoldLimit(),
		lease.WithObserver(e.observer),
		lease.WithExpireFunc(func(epoch uint64) {
			e.deliver(signal{kind: signalBackstop, gen: epoch})
		}),
	)

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.publishAll()

	go e.loop()

	return e, nil
}

func (e *Engine) fillDefaults(cfg *Config) error {
	if e.clock == nil {
		e.clock = clock.Real()
	}
	if e.observer == nil {
		obs, err := observability.GetObserver(cfg.Observer)
		if err != nil {
			return fmt.Errorf("failed to resolve observer: %w", err)
		}
		e.observer = obs
	}
	if e.parser == nil {
		e.parser = fragment.PackedParser{}
	}
	if e.assembler == nil {
		e.assembler = reconstruct.PackedAssembler{}
	}
	if e.decryptor == nil {
		if cfg.Keys.PrivateKey == "" {
			return ErrNoDecryptor
		}
		priv, err := keys.Decode(cfg.Keys.PrivateKey)
		if err != nil {
			return fmt.Errorf("failed to load private key: %w", err)
		}
		e.decryptor = keys.NewBoxDecryptor(priv)
	}
	if e.source == nil {
		opts := []capture.ChannelOption{capture.WithClock(e.clock)}
		if cfg.Session.AlignWindows {
			opts = append(opts, capture.WithWindow(capture.EvenMinuteWindow))
		}
		e.source = capture.NewChannelSource(opts...)
	}
	if e.lock == nil {
		switch cfg.Lock.Backend {
		case "", LockLocal:
			e.lock = lease.NewLocalLock(e.clock)
		case LockRedis:
			opt, err := redis.ParseURL(cfg.Lock.RedisURL)
			if err != nil {
				return fmt.Errorf("failed to parse lock redis url: %w", err)
			}
			e.lock = lease.NewRedisLock(redis.NewClient(opt), cfg.Lock.Key)
		default:
			return fmt.Errorf("unknown lock backend: %s", cfg.Lock.Backend)
		}
	}
	return nil
}

// Start begins receiving from identity, whose public key is key. Starting
// the identity that is already active is a no-op; starting another identity
// while a session is active returns ErrSessionActive. Fatal failures leave
// the session Stopped with the failure as its reason and are also returned.
func (e *Engine) Start(ctx context.Context, identity string, key []byte) error {
	if identity == "" {
		return ErrNoIdentity
	}
	return e.do(ctx, func(ctx context.Context) error {
		return e.start(ctx, identity, key)
	})
}

// Stop ends the active session and returns once its resources are released.
// Pending fragments are marked failed as incomplete.
func (e *Engine) Stop(ctx context.Context) error {
	return e.do(ctx, func(ctx context.Context) error {
		if !e.active() {
			return ErrNotActive
		}
		e.teardown(ctx, session.Stopped, ReasonStopped)
		return nil
	})
}

// Extend restarts the background countdown at full length. It does nothing
// when no countdown is running.
func (e *Engine) Extend(ctx context.Context) error {
	return e.do(ctx, func(ctx context.Context) error {
		extended := e.countdown.Extend()
		e.emit(ctx, EventExtend, observability.LevelInfo, map[string]any{"extended": extended})
		if extended {
			e.publishState()
		}
		return nil
	})
}

// Attach registers an observer. While any observer is attached the
// background countdown does not run.
func (e *Engine) Attach(ctx context.Context) error {
	return e.do(ctx, func(ctx context.Context) error {
		e.countdown.Attach()
		e.emit(ctx, EventAttach, observability.LevelVerbose, map[string]any{"observers": e.countdown.Observers()})
		e.publishState()
		return nil
	})
}

// Detach removes an observer. Detaching the last one during an active
// session starts a fresh full-length countdown.
func (e *Engine) Detach(ctx context.Context) error {
	return e.do(ctx, func(ctx context.Context) error {
		e.countdown.Detach()
		e.emit(ctx, EventDetach, observability.LevelVerbose, map[string]any{"observers": e.countdown.Observers()})
		e.publishState()
		return nil
	})
}

// Submit pushes a decode batch into the engine's capture source. Only the
// push-fed source accepts submissions.
func (e *Engine) Submit(ctx context.Context, batch capture.Batch) error {
	src, ok := e.source.(*capture.ChannelSource)
	if !ok {
		return ErrSubmitUnsupported
	}
	if err := src.Push(ctx, batch); err != nil {
		if errors.Is(err, capture.ErrNotConnected) {
			return fmt.Errorf("%w: %w", ErrNotActive, err)
		}
		return err
	}
	return nil
}

// IsActive reports whether a session is waiting for a window or running.
func (e *Engine) IsActive() bool {
	return e.Snapshot().State.IsActive()
}

// Snapshot returns the most recently published state.
func (e *Engine) Snapshot() session.Snapshot {
	if s := e.current.Load(); s != nil {
		return *s
	}
	return session.Snapshot{}
}

// Spots returns the most recently published spot list.
func (e *Engine) Spots() []fragment.Spot {
	spots, _ := e.spots.Last()
	return spots
}

// SubscribeState returns a subscription to state snapshots. The current
// snapshot is delivered first.
func (e *Engine) SubscribeState() *stream.Subscription[session.Snapshot] {
	return e.states.Subscribe()
}

// SubscribeSpots returns a subscription to the spot list. The current list
// is delivered first.
func (e *Engine) SubscribeSpots() *stream.Subscription[[]fragment.Spot] {
	return e.spots.Subscribe()
}

// Payloads yields one payload per resolved group. The channel closes after
// Shutdown once queued payloads are delivered.
func (e *Engine) Payloads() <-chan reconstruct.Payload {
	return e.payloads.Out()
}

func (e *Engine) Metrics() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// Shutdown stops any active session, ends the coordinating goroutine and
// closes all streams.
func (e *Engine) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := e.do(ctx, func(ctx context.Context) error {
		if e.active() {
			e.teardown(ctx, session.Stopped, ReasonShutdown)
		}
		return nil
	})
	if errors.Is(err, ErrClosed) {
		err = nil
	}

	e.cancel()
	select {
	case <-e.done:
	case <-ctx.Done():
		return fmt.Errorf("engine shutdown timeout after %v", timeout)
	}

	e.states.Close()
	e.spots.Close()
	e.payloads.Close()
	return err
}

// do runs fn on the loop goroutine. Once accepted, fn always runs to
// completion, even if ctx is cancelled while waiting.
func (e *Engine) do(ctx context.Context, fn func(ctx context.Context) error) error {
	cmd := command{ctx: ctx, fn: fn, reply: make(chan error, 1)}

	select {
	case e.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrClosed
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-e.done:
		return ErrClosed
	}
}

func (e *Engine) deliver(s signal) {
	select {
	case e.signals <- s:
	case <-e.done:
	}
}

func (e *Engine) loop() {
	defer close(e.done)

	for {
		select {
		case <-e.ctx.Done():
			return
		case cmd := <-e.commands:
			cmd.reply <- cmd.fn(cmd.ctx)
		case sig := <-e.signals:
			e.handleSignal(sig)
		case batch, ok := <-e.batches:
			if !ok {
				e.batches = nil
				if e.active() {
					e.teardown(e.ctx, session.Stopped, ReasonDisconnected)
				}
				continue
			}
			e.handleBatch(batch)
		}
	}
}
