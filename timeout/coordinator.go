// Package timeout runs the background-only countdown of a receive session.
//
// The countdown runs only while a session is active and nobody is observing
// it. Attaching the first observer cancels the countdown outright; detaching
// the last one starts a fresh full-length countdown. Every scheduled signal
// carries the generation it was armed under, and Accept rejects signals from
// any earlier generation, so a timer that fires after cancellation is
// ignored by the owner.
package timeout

import (
	"fmt"
	"time"

	"github.com/OperatorFoundation/nahoftu4i/clock"
)

// Kind identifies a countdown signal.
type Kind int

const (
	// Warning fires Warning-before-expiry into the countdown.
	Warning Kind = iota
	// Expire fires when the countdown reaches zero.
	Expire
)

func (k Kind) String() string {
	switch k {
	case Warning:
		return "warning"
	case Expire:
		return "expire"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Signal is delivered to the fire callback when a countdown timer elapses.
type Signal struct {
	Kind       Kind
	Generation uint64
}

// Coordinator tracks observation and the countdown derived from it. It is
// owned by a single goroutine; only fire is invoked from timer goroutines.
type Coordinator struct {
	clock    clock.Clock
	duration time.Duration
	warning  time.Duration
	fire     func(Signal)

	active    bool
	observers int

	generation uint64
	running    bool
	deadline   time.Time
	warned     bool
	warnTimer  clock.Timer
	expTimer   clock.Timer
}

// New creates a Coordinator. fire must not block; it typically forwards the
// signal to the owning goroutine, which then calls Accept.
func New(c clock.Clock, duration, warning time.Duration, fire func(Signal)) *Coordinator {
	return &Coordinator{
		clock:    c,
		duration: duration,
		warning:  warning,
		fire:     fire,
	}
}

// Activate marks a session as active. The countdown starts if no observer is
// attached.
func (c *Coordinator) Activate() {
	c.active = true
	c.reconcile()
}

// Deactivate marks the session as ended and cancels any countdown. Observer
// counts survive so the next session starts in the right mode.
func (c *Coordinator) Deactivate() {
	c.active = false
	c.cancel()
}

// Attach registers an observer.
func (c *Coordinator) Attach() {
	c.observers++
	c.reconcile()
}

// Detach removes an observer. Extra detaches are ignored.
func (c *Coordinator) Detach() {
	if c.observers == 0 {
		return
	}
	c.observers--
	c.reconcile()
}

// Extend restarts the full countdown from now. It reports false and does
// nothing when no countdown is running.
func (c *Coordinator) Extend() bool {
	if !c.running {
		return false
	}
	c.start()
	return true
}

// Accept reports whether sig belongs to the current countdown and records its
// effect. Stale signals return false and change nothing.
func (c *Coordinator) Accept(sig Signal) bool {
	if !c.running || sig.Generation != c.generation {
		return false
	}
	switch sig.Kind {
	case Warning:
		if c.warned {
			return false
		}
		c.warned = true
	case Expire:
		c.running = false
		c.warnTimer = nil
		c.expTimer = nil
	}
	return true
}

// Observed reports whether at least one observer is attached.
func (c *Coordinator) Observed() bool { return c.observers > 0 }

// Observers returns the observer reference count.
func (c *Coordinator) Observers() int { return c.observers }

// Running reports whether the countdown is armed.
func (c *Coordinator) Running() bool { return c.running }

// Warned reports whether the warning has fired for the current countdown.
func (c *Coordinator) Warned() bool { return c.running && c.warned }

// Deadline returns the expiry time, or the zero time when not running.
func (c *Coordinator) Deadline() time.Time {
	if !c.running {
		return time.Time{}
	}
	return c.deadline
}

// Remaining returns the time left on the countdown. ok is false when no
// countdown is running.
func (c *Coordinator) Remaining() (d time.Duration, ok bool) {
	if !c.running {
		return 0, false
	}
	d = c.deadline.Sub(c.clock.Now())
	if d < 0 {
		d = 0
	}
	return d, true
}

func (c *Coordinator) reconcile() {
	switch {
	case c.active && c.observers == 0 && !c.running:
		c.start()
	case (!c.active || c.observers > 0) && c.running:
		c.cancel()
	}
}

func (c *Coordinator) start() {
	c.cancel()
	c.running = true
	c.deadline = c.clock.Now().Add(c.duration)

	gen := c.generation
	if lead := c.duration - c.warning; c.warning > 0 && lead > 0 {
		c.warnTimer = c.clock.AfterFunc(lead, func() {
			c.fire(Signal{Kind: Warning, Generation: gen})
		})
	}
	c.expTimer = c.clock.AfterFunc(c.duration, func() {
		c.fire(Signal{Kind: Expire, Generation: gen})
	})
}

func (c *Coordinator) cancel() {
	if c.warnTimer != nil {
		c.warnTimer.Stop()
		c.warnTimer = nil
	}
	if c.expTimer != nil {
		c.expTimer.Stop()
		c.expTimer = nil
	}
	c.generation++
	c.running = false
	c.warned = false
	c.deadline = time.Time{}
}
