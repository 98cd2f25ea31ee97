package inbox

import "github.com/OperatorFoundation/nahoftu4i/observability"

// Inbox event types.
const (
	EventSaved      observability.EventType = "inbox.saved"
	EventSaveFailed observability.EventType = "inbox.save.failed"
)
