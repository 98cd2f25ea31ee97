package stream

import "sync"

// Outbox is an unbounded FIFO whose Push never blocks. Values are handed to
// the consumer channel by a forwarding goroutine, so a producer that owns
// other state is never stalled by a slow consumer.
type Outbox[T any] struct {
	mu      sync.Mutex
	queue   []T
	closed  bool
	wake    chan struct{}
	out     chan T
	stopped chan struct{}
	abort   sync.Once
}

// NewOutbox creates an Outbox and starts its forwarding goroutine.
func NewOutbox[T any]() *Outbox[T] {
	o := &Outbox[T]{
		wake:    make(chan struct{}, 1),
		out:     make(chan T),
		stopped: make(chan struct{}),
	}
	go o.forward()
	return o
}

// Push queues v. Values pushed after Close are discarded.
func (o *Outbox[T]) Push(v T) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.queue = append(o.queue, v)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Out returns the consumer channel. It is closed after Close once every
// queued value has been delivered or Abort is called.
func (o *Outbox[T]) Out() <-chan T {
	return o.out
}

// Len returns the number of values waiting to be forwarded.
func (o *Outbox[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Close stops accepting values. Already queued values are still delivered.
func (o *Outbox[T]) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Abort closes the Outbox and discards anything not yet delivered.
func (o *Outbox[T]) Abort() {
	o.mu.Lock()
	o.closed = true
	o.queue = nil
	o.mu.Unlock()

	o.abort.Do(func() { close(o.stopped) })
}

func (o *Outbox[T]) forward() {
	defer close(o.out)

	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			closed := o.closed
			o.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-o.wake:
			case <-o.stopped:
				return
			}
			continue
		}
		v := o.queue[0]
		var zero T
		o.queue[0] = zero
		o.queue = o.queue[1:]
		o.mu.Unlock()

		select {
		case o.out <- v:
		case <-o.stopped:
			return
		}
	}
}
