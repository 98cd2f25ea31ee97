package reconstruct

import (
	"fmt"

	"github.com/OperatorFoundation/nahoftu4i/fragment"
)

// Attempter runs reconstruction attempts against fragment snapshots. Every
// call assembles and decrypts, except that a set version which already
// succeeded is never attempted again, so success is emitted once.
// Not safe for concurrent use.
type Attempter struct {
	assembler Assembler
	decryptor Decryptor

	attempts int
	resolved bool
	resGroup int
	resVer   uint64
}

// NewAttempter creates an Attempter from the external collaborators.
func NewAttempter(assembler Assembler, decryptor Decryptor) *Attempter {
	return &Attempter{assembler: assembler, decryptor: decryptor}
}

// Attempt assembles and decrypts set with key.
func (a *Attempter) Attempt(key []byte, set fragment.Set) Outcome {
	if len(set.Fragments) == 0 {
		return Outcome{Status: Skipped}
	}
	if a.resolved && a.resGroup == set.Group && a.resVer == set.Version {
		return Outcome{Status: Skipped}
	}

	ciphertext, err := a.assembler.Assemble(set.Fragments)
	if err != nil {
		a.attempts++
		return Outcome{Status: Failed, Err: fmt.Errorf("%w: %v", ErrAssemble, err)}
	}

	plaintext, err := a.decryptor.Decrypt(key, ciphertext)
	if err != nil {
		a.attempts++
		return Outcome{Status: Failed, Ciphertext: ciphertext, Err: err}
	}

	a.attempts = 0
	a.resolved = true
	a.resGroup = set.Group
	a.resVer = set.Version
	return Outcome{Status: Succeeded, Ciphertext: ciphertext, Plaintext: plaintext}
}

// Attempts returns the failed attempts made against the current group.
func (a *Attempter) Attempts() int {
	return a.attempts
}

// Reset clears the attempt counter and the memory of the last resolved set.
func (a *Attempter) Reset() {
	a.attempts = 0
	a.resolved = false
	a.resGroup = 0
	a.resVer = 0
}
