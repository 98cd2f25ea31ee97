// Package inbox persists recovered messages. The receive engine never writes
// here itself; the embedding application drains the engine's payload channel
// into a Store, usually with Collect.
package inbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/OperatorFoundation/nahoftu4i/reconstruct"
)

// Message is a persisted recovered message.
type Message struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Identity   string    `json:"identity"`
	Group      int       `json:"group"`
	TotalParts int       `json:"total_parts"`
	Ciphertext []byte    `json:"ciphertext"`
	Plaintext  []byte    `json:"plaintext"`
	ReceivedAt time.Time `json:"received_at"`
}

// FromPayload builds a Message with a fresh UUIDv7 from an engine payload.
func FromPayload(p reconstruct.Payload) Message {
	return Message{
		ID:         uuid.Must(uuid.NewV7()).String(),
		SessionID:  p.SessionID,
		Identity:   p.Identity,
		Group:      p.Group,
		TotalParts: p.TotalParts,
		Ciphertext: p.Ciphertext,
		Plaintext:  p.Plaintext,
		ReceivedAt: p.ReceivedAt,
	}
}

// Store persists messages. Implementations must be safe for concurrent use.
type Store interface {
	// Save persists messages, overwriting any with the same ID.
	Save(ctx context.Context, msgs ...Message) error
	// List returns messages from identity, oldest first. An empty identity
	// lists every message.
	List(ctx context.Context, identity string) ([]Message, error)
	// Load returns one message by ID.
	Load(ctx context.Context, id string) (Message, error)
	// Delete removes messages. Missing IDs are ignored.
	Delete(ctx context.Context, ids ...string) error
	// Close releases the store's resources.
	Close() error
}
