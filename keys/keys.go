// Package keys manages the Curve25519 keypairs used to seal and open
// messages carried over the fragment channel.
package keys

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
)

// KeySize is the length in bytes of public and private keys.
const KeySize = 32

const nonceSize = 24

var (
	// ErrKeySize reports a key that is not KeySize bytes long.
	ErrKeySize = errors.New("key must be 32 bytes")
	// ErrIntegrity reports ciphertext that failed authentication. Incomplete
	// fragment sets surface as this error.
	ErrIntegrity = errors.New("ciphertext failed integrity check")
)

// Keypair holds one party's box keys.
type Keypair struct {
	Public  [KeySize]byte
	Private [KeySize]byte
}

// Generate creates a keypair from crypto/rand.
func Generate() (*Keypair, error) {
	return GenerateFrom(rand.Reader)
}

// GenerateFrom creates a keypair reading entropy from r.
func GenerateFrom(r io.Reader) (*Keypair, error) {
	pub, priv, err := box.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{Public: *pub, Private: *priv}, nil
}

// Encode returns the standard base64 form of a key.
func Encode(key [KeySize]byte) string {
	return base64.StdEncoding.EncodeToString(key[:])
}

// Decode parses a base64 key.
func Decode(s string) ([KeySize]byte, error) {
	var key [KeySize]byte
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("decode key: %w", err)
	}
	return FromBytes(raw)
}

// FromBytes copies raw into a fixed-size key.
func FromBytes(raw []byte) ([KeySize]byte, error) {
	var key [KeySize]byte
	if len(raw) != KeySize {
		return key, fmt.Errorf("%w: got %d", ErrKeySize, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// Seal encrypts msg for recipient, authenticated by sender. The random nonce
// is prepended to the box.
func Seal(msg []byte, recipient, sender *[KeySize]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return box.Seal(nonce[:], msg, &nonce, recipient, sender), nil
}

// BoxDecryptor opens nonce-prefixed boxes with a fixed private key. It
// satisfies reconstruct.Decryptor.
type BoxDecryptor struct {
	private [KeySize]byte
}

// NewBoxDecryptor creates a decryptor for the holder of private.
func NewBoxDecryptor(private [KeySize]byte) *BoxDecryptor {
	return &BoxDecryptor{private: private}
}

// Decrypt opens ciphertext sent by the holder of counterpartyKey.
func (d *BoxDecryptor) Decrypt(counterpartyKey, ciphertext []byte) ([]byte, error) {
	peer, err := FromBytes(counterpartyKey)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < nonceSize+box.Overhead {
		return nil, fmt.Errorf("%w: %d bytes is too short", ErrIntegrity, len(ciphertext))
	}

	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])

	plaintext, ok := box.Open(nil, ciphertext[nonceSize:], &nonce, &peer, &d.private)
	if !ok {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}
