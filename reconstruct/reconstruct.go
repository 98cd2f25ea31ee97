// Package reconstruct turns an ordered fragment set into plaintext. The
// decrypt primitive's integrity check is the only completeness oracle: a set
// that decrypts is complete, anything else is retried when more fragments
// arrive.
package reconstruct

import (
	"errors"
	"fmt"
	"time"

	"github.com/OperatorFoundation/nahoftu4i/fragment"
)

// ErrAssemble reports that a fragment set could not be assembled into
// ciphertext bytes.
var ErrAssemble = errors.New("fragment set could not be assembled")

// Assembler decodes an ordered fragment sequence into ciphertext.
type Assembler interface {
	Assemble(fragments []fragment.Fragment) ([]byte, error)
}

// AssemblerFunc adapts a function to the Assembler interface.
type AssemblerFunc func(fragments []fragment.Fragment) ([]byte, error)

func (fn AssemblerFunc) Assemble(fragments []fragment.Fragment) ([]byte, error) {
	return fn(fragments)
}

// Decryptor opens ciphertext sent by the holder of counterpartyKey.
type Decryptor interface {
	Decrypt(counterpartyKey, ciphertext []byte) ([]byte, error)
}

// DecryptorFunc adapts a function to the Decryptor interface.
type DecryptorFunc func(counterpartyKey, ciphertext []byte) ([]byte, error)

func (fn DecryptorFunc) Decrypt(counterpartyKey, ciphertext []byte) ([]byte, error) {
	return fn(counterpartyKey, ciphertext)
}

// Status is the result class of one attempt.
type Status int

const (
	// Skipped means the set was empty or has already been resolved.
	Skipped Status = iota
	// Failed means assembly or decryption failed; more fragments are needed.
	Failed
	// Succeeded means the set decrypted.
	Succeeded
)

func (s Status) String() string {
	switch s {
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	case Succeeded:
		return "succeeded"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome reports what an attempt did.
type Outcome struct {
	Status     Status
	Ciphertext []byte
	Plaintext  []byte
	Err        error
}

// Payload is one recovered message, emitted once per successful group.
type Payload struct {
	SessionID  string    `json:"session_id"`
	Identity   string    `json:"identity"`
	Group      int       `json:"group"`
	TotalParts int       `json:"total_parts"`
	Ciphertext []byte    `json:"ciphertext"`
	Plaintext  []byte    `json:"plaintext"`
	ReceivedAt time.Time `json:"received_at"`
}
