package receiver

import "github.com/OperatorFoundation/nahoftu4i/observability"

// Engine event types.
const (
	EventSessionStart   observability.EventType = "receiver.session.start"
	EventSessionEnd     observability.EventType = "receiver.session.end"
	EventStartIgnored   observability.EventType = "receiver.start.ignored"
	EventStartRejected  observability.EventType = "receiver.start.rejected"
	EventStartFailed    observability.EventType = "receiver.start.failed"
	EventWindowWait     observability.EventType = "receiver.window.wait"
	EventWindowOpen     observability.EventType = "receiver.window.open"
	EventBatch          observability.EventType = "receiver.batch"
	EventAttempt        observability.EventType = "receiver.attempt"
	EventResolved       observability.EventType = "receiver.resolved"
	EventAttach         observability.EventType = "receiver.attach"
	EventDetach         observability.EventType = "receiver.detach"
	EventExtend         observability.EventType = "receiver.extend"
	EventTimeoutWarning observability.EventType = "receiver.timeout.warning"
	EventError          observability.EventType = "receiver.error"
)
