// Package session holds the lifecycle record of a receive session: its
// state, identity, and the summary counts reported when it ends.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition reports a state change the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid session state transition")

// State is the lifecycle state of a session.
type State int

const (
	Idle State = iota
	WaitingForWindow
	Running
	Stopped
	TimedOut
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case WaitingForWindow:
		return "waiting_for_window"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, WaitingForWindow, Running, Stopped, TimedOut} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// IsActive reports whether the state holds capture resources.
func (s State) IsActive() bool {
	return s == WaitingForWindow || s == Running
}

// IsTerminal reports whether the state ends a session.
func (s State) IsTerminal() bool {
	return s == Stopped || s == TimedOut
}

var transitions = map[State][]State{
	Idle:             {WaitingForWindow, Running, Stopped},
	WaitingForWindow: {Running, Stopped, TimedOut},
	Running:          {Stopped, TimedOut},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Session is one receive attempt. It is owned by the engine goroutine and
// never shared; readers get a Snapshot.
type Session struct {
	ID        string
	Identity  string
	Key       []byte
	State     State
	StartedAt time.Time
	EndedAt   time.Time
	Reason    string

	SpotsReceived    int
	MessagesResolved int
}

// New creates an Idle session for identity, stamped with a UUIDv7.
func New(identity string, key []byte, now time.Time) *Session {
	return &Session{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Identity:  identity,
		Key:       append([]byte(nil), key...),
		State:     Idle,
		StartedAt: now,
	}
}

// Transition moves the session to next, recording the end time when next is
// terminal.
func (s *Session) Transition(next State, now time.Time) error {
	if !CanTransition(s.State, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, next)
	}
	s.State = next
	if next.IsTerminal() {
		s.EndedAt = now
	}
	return nil
}

// End moves the session to a terminal state with reason.
func (s *Session) End(terminal State, reason string, now time.Time) error {
	if !terminal.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, terminal)
	}
	if err := s.Transition(terminal, now); err != nil {
		return err
	}
	s.Reason = reason
	return nil
}
