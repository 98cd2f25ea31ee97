package notify

import "github.com/OperatorFoundation/nahoftu4i/observability"

// Notify event types.
const (
	EventConnect       observability.EventType = "notify.connect"
	EventDisconnect    observability.EventType = "notify.disconnect"
	EventRejected      observability.EventType = "notify.rejected"
	EventPublishFailed observability.EventType = "notify.publish.failed"
)
