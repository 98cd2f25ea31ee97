// Package fragment accumulates message fragments parsed from decode results
// and keeps the spot history that records what happened to every capture.
//
// Fragments belong to the current reconstruction group. Duplicate captures of
// the same fragment collapse to one working-set entry but still produce a
// spot, so the observer sees every retransmission.
package fragment

import (
	"errors"
	"fmt"
)

// ErrParse reports that a decode result is not a fragment of a targeted
// message. It is the normal outcome for unrelated traffic.
var ErrParse = errors.New("not a message fragment")

// Fragment is one semantically parsed message part. Equality is field
// equality, so retransmissions compare equal regardless of capture timing.
type Fragment struct {
	Identifier string `json:"identifier"`
	Locator    string `json:"locator"`
	Power      int    `json:"power"`
}

func (f Fragment) String() string {
	return fmt.Sprintf("%s %s %d", f.Identifier, f.Locator, f.Power)
}

// Parser converts the raw fields of a decode result into a Fragment.
// Implementations return an error wrapping ErrParse for non-targeted input.
type Parser interface {
	Parse(identifier, locator string, power int) (Fragment, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(identifier, locator string, power int) (Fragment, error)

func (fn ParserFunc) Parse(identifier, locator string, power int) (Fragment, error) {
	return fn(identifier, locator, power)
}
