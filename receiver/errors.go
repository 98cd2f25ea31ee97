package receiver

import "errors"

// Sentinel errors returned by Engine operations. Fatal start failures also
// wrap capture.ErrUnavailable or lease.ErrResourceAcquisition.
var (
	ErrSessionActive     = errors.New("a session for another identity is active")
	ErrNotActive         = errors.New("no active session")
	ErrNoIdentity        = errors.New("identity is required")
	ErrClosed            = errors.New("engine closed")
	ErrSubmitUnsupported = errors.New("capture source does not accept submitted batches")
	ErrNoDecryptor       = errors.New("no private key or decryptor configured")
)

// Terminal reasons recorded on ended sessions.
const (
	ReasonStopped      = "stopped"
	ReasonTimedOut     = "timed out"
	ReasonMaxDuration  = "maximum session duration reached"
	ReasonHoldLimit    = "resource hold limit reached"
	ReasonDisconnected = "capture source disconnected"
	ReasonShutdown     = "engine shutdown"
)
