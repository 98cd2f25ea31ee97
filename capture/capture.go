// Package capture defines the boundary between the receiver and the external
// decoder that turns symbol bursts into discrete decode results.
//
// The decoder itself lives outside this module. A Source is discovered when a
// session starts, and the returned Conn yields batches of decode results until
// it is closed.
package capture

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports that no capture source could be discovered or
// connected. It is fatal to a session start.
var ErrUnavailable = errors.New("capture source unavailable")

// DecodeResult is one decoded transmission as reported by the decoder.
type DecodeResult struct {
	Identifier string `json:"identifier"`
	Locator    string `json:"locator"`
	Power      int    `json:"power"`
	SNR        int    `json:"snr"`
}

// Batch groups the decode results produced by one decoding cycle.
type Batch struct {
	Results    []DecodeResult `json:"results"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Window describes when the source next expects to produce valid results.
// A zero Until means the window is already open.
type Window struct {
	Until time.Duration
}

// Open reports whether capture can begin immediately.
func (w Window) Open() bool {
	return w.Until <= 0
}

// Source discovers a capture connection.
type Source interface {
	Discover(ctx context.Context) (Conn, error)
}

// Conn is an established connection to a capture source.
type Conn interface {
	// WindowInfo reports the time remaining until the next capture window.
	WindowInfo(ctx context.Context) (Window, error)
	// Batches yields decode batches in arrival order. The channel is closed
	// when the connection closes.
	Batches() <-chan Batch
	// Close releases the connection. Safe to call more than once.
	Close() error
}

// EvenMinuteWindow returns the time until the next even-minute boundary, the
// slot grid used by weak-signal beacon transmissions. Within the first
// second of an even minute the window is reported open.
func EvenMinuteWindow(now time.Time) Window {
	slotStart := now.Truncate(2 * time.Minute)
	offset := now.Sub(slotStart)
	if offset < time.Second {
		return Window{}
	}
	return Window{Until: 2*time.Minute - offset}
}
