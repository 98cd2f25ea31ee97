package lease

import "github.com/OperatorFoundation/nahoftu4i/observability"

// Lease event types.
const (
	EventAcquire       observability.EventType = "lease.acquire"
	EventAcquireFailed observability.EventType = "lease.acquire.failed"
	EventRelease       observability.EventType = "lease.release"
)
