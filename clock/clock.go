// Package clock abstracts wall time and one-shot timers so that countdowns,
// warnings, and backstops can be driven deterministically in tests.
//
// Deadlines are always derived from Now() values, which carry Go's monotonic
// reading on the real clock. Adjusting the system clock therefore never moves
// a scheduled expiry; wall-clock values are only used for display.
package clock

import "time"

// Timer is a cancellable one-shot timer.
type Timer interface {
	// Stop prevents the timer from firing. Returns false if the timer has
	// already fired or been stopped.
	Stop() bool
}

// Clock provides the current time and schedules callbacks.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine after d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
