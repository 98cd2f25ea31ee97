package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/OperatorFoundation/nahoftu4i/clock"
)

// ErrNotConnected is returned by Push when no session holds a connection.
var ErrNotConnected = errors.New("capture source not connected")

// WindowFunc computes the capture window relative to now.
type WindowFunc func(now time.Time) Window

// ChannelSource is a Source fed by pushing batches, for decoders that run in
// another process and deliver results over the control surface.
type ChannelSource struct {
	mu         sync.Mutex
	conn       *channelConn
	window     WindowFunc
	clock      clock.Clock
	bufferSize int
	disabled   bool
}

// ChannelOption configures a ChannelSource.
type ChannelOption func(*ChannelSource)

// WithWindow sets the function used to answer WindowInfo.
func WithWindow(fn WindowFunc) ChannelOption {
	return func(s *ChannelSource) { s.window = fn }
}

// WithClock sets the clock used to stamp batches and evaluate windows.
func WithClock(c clock.Clock) ChannelOption {
	return func(s *ChannelSource) { s.clock = c }
}

// WithBufferSize sets the number of batches queued per connection.
func WithBufferSize(n int) ChannelOption {
	return func(s *ChannelSource) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// NewChannelSource creates a ChannelSource whose window is always open.
func NewChannelSource(opts ...ChannelOption) *ChannelSource {
	s := &ChannelSource{
		window:     func(time.Time) Window { return Window{} },
		clock:      clock.Real(),
		bufferSize: 64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAvailable toggles whether Discover succeeds.
func (s *ChannelSource) SetAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = !available
}

func (s *ChannelSource) Discover(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disabled {
		return nil, ErrUnavailable
	}
	if s.conn != nil && !s.conn.isClosed() {
		return nil, errors.New("capture source already connected")
	}

	s.conn = &channelConn{
		source:  s,
		batches: make(chan Batch, s.bufferSize),
		done:    make(chan struct{}),
	}
	return s.conn, nil
}

// Connected reports whether a live connection exists.
func (s *ChannelSource) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && !s.conn.isClosed()
}

// Push delivers a batch to the current connection. Blocks while the
// connection buffer is full.
func (s *ChannelSource) Push(ctx context.Context, batch Batch) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = s.clock.Now()
	}
	return conn.send(ctx, batch)
}

type channelConn struct {
	source  *ChannelSource
	batches chan Batch
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
}

func (c *channelConn) WindowInfo(ctx context.Context) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}
	return c.source.window(c.source.clock.Now()), nil
}

func (c *channelConn) Batches() <-chan Batch {
	return c.batches
}

func (c *channelConn) Close() error {
	c.once.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.batches)
	return nil
}

func (c *channelConn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *channelConn) send(ctx context.Context, batch Batch) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrNotConnected
	}

	select {
	case c.batches <- batch:
		return nil
	case <-c.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}
