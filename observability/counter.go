package observability

import (
	"context"
	"sync"
)

// Counter tallies events by type and keeps the most recent warning or error.
// The receiver binary reports its Snapshot on the health endpoint.
type Counter struct {
	mu       sync.Mutex
	byType   map[EventType]uint64
	warnings uint64
	errors   uint64
	last     *Event
}

// CounterSnapshot is a point-in-time copy of a Counter.
type CounterSnapshot struct {
	ByType      map[EventType]uint64 `json:"by_type"`
	Warnings    uint64               `json:"warnings"`
	Errors      uint64               `json:"errors"`
	LastProblem string               `json:"last_problem,omitempty"`
}

// NewCounter creates an empty Counter.
func NewCounter() *Counter {
	return &Counter{byType: make(map[EventType]uint64)}
}

func (c *Counter) OnEvent(ctx context.Context, event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byType[event.Type]++
	switch {
	case event.Level >= LevelError:
		c.errors++
	case event.Level >= LevelWarning:
		c.warnings++
	default:
		return
	}
	e := event
	c.last = &e
}

// Count returns how many events of type t have been seen.
func (c *Counter) Count(t EventType) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byType[t]
}

// Snapshot returns the current tallies.
func (c *Counter) Snapshot() CounterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := CounterSnapshot{
		ByType:   make(map[EventType]uint64, len(c.byType)),
		Warnings: c.warnings,
		Errors:   c.errors,
	}
	for t, n := range c.byType {
		snap.ByType[t] = n
	}
	if c.last != nil {
		snap.LastProblem = string(c.last.Type)
	}
	return snap
}
