package fragment

import (
	"fmt"
	"strings"
)

// PackedIdentifierLength is the number of payload characters carried by each
// fragment in the reference packing.
const PackedIdentifierLength = 6

const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// MaxPackedParts is the number of distinct part indexes a grid locator can
// carry.
const MaxPackedParts = 18 * 18 * 10 * 10

// PackedParser accepts transmissions whose identifier is exactly six
// characters of the RFC 4648 base32 alphabet and whose locator is a
// four-character grid square. Ordinary callsigns fail because they carry
// digits outside 2-7 or have a different length. The locator carries the
// part index (see PackedLocator), so fragments may arrive in any order.
type PackedParser struct{}

func (PackedParser) Parse(identifier, locator string, power int) (Fragment, error) {
	id := strings.ToUpper(strings.TrimSpace(identifier))
	if len(id) != PackedIdentifierLength {
		return Fragment{}, fmt.Errorf("%w: identifier %q has length %d", ErrParse, identifier, len(id))
	}
	for _, r := range id {
		if !strings.ContainsRune(base32Alphabet, r) {
			return Fragment{}, fmt.Errorf("%w: identifier %q has character %q", ErrParse, identifier, r)
		}
	}

	loc := strings.ToUpper(strings.TrimSpace(locator))
	if !validGrid(loc) {
		return Fragment{}, fmt.Errorf("%w: locator %q", ErrParse, locator)
	}

	if power < 0 || power > 60 {
		return Fragment{}, fmt.Errorf("%w: power %d out of range", ErrParse, power)
	}

	return Fragment{Identifier: id, Locator: loc, Power: power}, nil
}

// PackedLocator returns the grid square that carries part index i: the two
// field letters count 1800 and 100 parts, the digits count tens and units.
func PackedLocator(i int) (string, error) {
	if i < 0 || i >= MaxPackedParts {
		return "", fmt.Errorf("part index %d out of range [0, %d)", i, MaxPackedParts)
	}
	return string([]byte{
		byte('A' + i/1800),
		byte('A' + i/100%18),
		byte('0' + i/10%10),
		byte('0' + i%10),
	}), nil
}

// PackedIndex returns the part index carried by a grid square locator.
func PackedIndex(locator string) (int, error) {
	loc := strings.ToUpper(locator)
	if !validGrid(loc) {
		return 0, fmt.Errorf("%w: locator %q", ErrParse, locator)
	}
	return int(loc[0]-'A')*1800 + int(loc[1]-'A')*100 + int(loc[2]-'0')*10 + int(loc[3]-'0'), nil
}

func validGrid(loc string) bool {
	if len(loc) != 4 {
		return false
	}
	return loc[0] >= 'A' && loc[0] <= 'R' &&
		loc[1] >= 'A' && loc[1] <= 'R' &&
		loc[2] >= '0' && loc[2] <= '9' &&
		loc[3] >= '0' && loc[3] <= '9'
}
