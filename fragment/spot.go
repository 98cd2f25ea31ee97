package fragment

import (
	"time"

	"github.com/google/uuid"

	"github.com/OperatorFoundation/nahoftu4i/capture"
)

// StatusKind classifies a spot's relationship to message reconstruction.
type StatusKind string

const (
	StatusObserved StatusKind = "observed" // Not part of any message.
	StatusPending  StatusKind = "pending"  // Held in an unresolved group.
	StatusResolved StatusKind = "resolved" // Group decrypted successfully.
	StatusFailed   StatusKind = "failed"   // Group abandoned.
)

// ReasonIncomplete marks spots whose group was abandoned before it resolved.
const ReasonIncomplete = "incomplete"

// SpotStatus is the processing tag attached to a spot. Group and Part are
// meaningful for every kind except StatusObserved; TotalParts only for
// StatusResolved and Reason only for StatusFailed.
type SpotStatus struct {
	Kind       StatusKind `json:"kind"`
	Group      int        `json:"group"`
	Part       int        `json:"part"`
	TotalParts int        `json:"total_parts,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// Observed returns the status for a capture that is not a fragment.
func Observed() SpotStatus {
	return SpotStatus{Kind: StatusObserved}
}

// Pending returns the status for a fragment held in group at part.
func Pending(group, part int) SpotStatus {
	return SpotStatus{Kind: StatusPending, Group: group, Part: part}
}

// Resolved returns the status for a fragment of a decrypted group.
func Resolved(group, part, total int) SpotStatus {
	return SpotStatus{Kind: StatusResolved, Group: group, Part: part, TotalParts: total}
}

// Failed returns the status for a fragment of an abandoned group.
func Failed(group, part int, reason string) SpotStatus {
	return SpotStatus{Kind: StatusFailed, Group: group, Part: part, Reason: reason}
}

// Spot is the append-only observation record of one capture event.
type Spot struct {
	ID         string     `json:"id"`
	Identifier string     `json:"identifier"`
	Locator    string     `json:"locator"`
	Power      int        `json:"power"`
	SNR        int        `json:"snr"`
	Timestamp  time.Time  `json:"timestamp"`
	Status     SpotStatus `json:"status"`
}

func newSpot(r capture.DecodeResult, at time.Time, status SpotStatus) Spot {
	return Spot{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Identifier: r.Identifier,
		Locator:    r.Locator,
		Power:      r.Power,
		SNR:        r.SNR,
		Timestamp:  at,
		Status:     status,
	}
}
