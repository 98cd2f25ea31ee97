package session

import "time"

// Snapshot is the published view of the engine's session state. Deadline and
// Remaining are set only while the background countdown is running.
type Snapshot struct {
	SessionID string        `json:"session_id,omitempty"`
	Identity  string        `json:"identity,omitempty"`
	State     State         `json:"state"`
	Reason    string        `json:"reason,omitempty"`
	StartedAt time.Time     `json:"started_at,omitzero"`
	Elapsed   time.Duration `json:"elapsed"`

	Deadline  *time.Time     `json:"deadline,omitempty"`
	Remaining *time.Duration `json:"remaining,omitempty"`
	Warning   bool           `json:"warning"`
	Observed  bool           `json:"observed"`

	GroupID       int `json:"group_id"`
	AttemptCount  int `json:"attempt_count"`
	SpotCount     int `json:"spot_count"`
	FragmentCount int `json:"fragment_count"`

	SpotsReceived    int `json:"spots_received"`
	MessagesResolved int `json:"messages_resolved"`
}

// Active reports whether the snapshot describes an active session.
func (s Snapshot) Active() bool {
	return s.State.IsActive()
}
