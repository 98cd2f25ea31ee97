// Package stream provides the subscribable outputs of the receive engine: a
// latest-value Broadcaster for state and spot lists, and an unbounded Outbox
// for recovered payloads.
package stream

import (
	"sync"
	"sync/atomic"
)

// Subscription receives values published to a Broadcaster.
type Subscription[T any] struct {
	channel chan T
	parent  *Broadcaster[T]
	closed  atomic.Int32
	dropped atomic.Int64
}

// C returns the receive channel. It is closed when the subscription or the
// broadcaster closes.
func (s *Subscription[T]) C() <-chan T {
	return s.channel
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.parent.remove(s)
}

// Dropped returns how many values were discarded because the subscriber
// fell behind.
func (s *Subscription[T]) Dropped() int64 {
	return s.dropped.Load()
}

// TryReceive returns the next buffered value without blocking.
func (s *Subscription[T]) TryReceive() (T, bool) {
	select {
	case v, ok := <-s.channel:
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// deliver hands v to the subscriber, evicting the oldest buffered value when
// full. Called with the broadcaster lock held, so it is the only sender.
func (s *Subscription[T]) deliver(v T) {
	for {
		select {
		case s.channel <- v:
			return
		default:
		}
		select {
		case <-s.channel:
			s.dropped.Add(1)
		default:
		}
	}
}

func (s *Subscription[T]) shut() {
	if s.closed.CompareAndSwap(0, 1) {
		close(s.channel)
	}
}

// Broadcaster fans each published value out to every subscriber. Publish
// never blocks: a slow subscriber loses its oldest values, and the most
// recent value is always delivered.
type Broadcaster[T any] struct {
	mu         sync.Mutex
	subs       map[*Subscription[T]]struct{}
	bufferSize int
	last       T
	hasLast    bool
	closed     bool
}

// NewBroadcaster creates a Broadcaster whose subscribers buffer up to
// bufferSize values.
func NewBroadcaster[T any](bufferSize int) *Broadcaster[T] {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Broadcaster[T]{
		subs:       make(map[*Subscription[T]]struct{}),
		bufferSize: bufferSize,
	}
}

// Subscribe registers a subscriber. The most recently published value, if
// any, is delivered immediately.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &Subscription[T]{
		channel: make(chan T, b.bufferSize),
		parent:  b,
	}
	if b.closed {
		s.shut()
		return s
	}
	if b.hasLast {
		s.channel <- b.last
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish delivers v to all subscribers.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.last = v
	b.hasLast = true
	for s := range b.subs {
		s.deliver(v)
	}
}

// Last returns the most recently published value.
func (b *Broadcaster[T]) Last() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last, b.hasLast
}

// Len returns the number of live subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscription. Later Subscribe calls return closed
// subscriptions.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.shut()
	}
	clear(b.subs)
}

func (b *Broadcaster[T]) remove(s *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs, s)
	s.shut()
}
