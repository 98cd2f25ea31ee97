// Package observability carries structured events from the receive engine
// and its subsystems to loggers, counters and tests. Level values sit on the
// OpenTelemetry SeverityNumber scale.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// Level is an event severity on the OTel SeverityNumber scale (1-24).
type Level int

const (
	LevelVerbose Level = 5  // OTel DEBUG
	LevelInfo    Level = 9  // OTel INFO
	LevelWarning Level = 13 // OTel WARN
	LevelError   Level = 17 // OTel ERROR
)

// Each OTel severity band spans four numbers; band upper bounds in order.
var bands = []struct {
	max  Level
	name string
	slog slog.Level
}{
	{4, "TRACE", slog.LevelDebug},
	{8, "DEBUG", slog.LevelDebug},
	{12, "INFO", slog.LevelInfo},
	{16, "WARN", slog.LevelWarn},
	{20, "ERROR", slog.LevelError},
}

func (l Level) band() (string, slog.Level) {
	for _, b := range bands {
		if l <= b.max {
			return b.name, b.slog
		}
	}
	return "FATAL", slog.LevelError
}

// String returns the OTel severity text.
func (l Level) String() string {
	name, _ := l.band()
	return name
}

// SlogLevel returns the slog level events of this severity are logged at.
func (l Level) SlogLevel() slog.Level {
	_, level := l.band()
	return level
}

// EventType names an event. Packages declare their own in observer.go, for
// example "receiver.session.start" or "lease.acquire".
type EventType string

// Event is one observation. Source is the emitting package and Data holds
// flat attributes.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Observer receives events. Implementations must be safe for concurrent use
// and must not block.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event)

func (f ObserverFunc) OnEvent(ctx context.Context, event Event) {
	f(ctx, event)
}
