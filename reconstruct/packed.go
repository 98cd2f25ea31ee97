package reconstruct

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/OperatorFoundation/nahoftu4i/fragment"
)

var packedEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// packedHeader is the big-endian length prefix carried before the payload.
const packedHeader = 2

// MaxPackedSize is the largest message Pack accepts.
const MaxPackedSize = math.MaxUint16

// ErrTooLarge is returned by Pack for messages over MaxPackedSize.
var ErrTooLarge = errors.New("message too large to pack")

// PackedAssembler orders fragments by the part index in their locator,
// concatenates the identifiers, decodes them as unpadded base32 and strips
// the length prefix. Arrival order does not matter. A missing index, or two
// different identifiers for one index, is an ErrAssemble. It pairs with
// fragment.PackedParser and Pack.
type PackedAssembler struct{}

func (PackedAssembler) Assemble(fragments []fragment.Fragment) ([]byte, error) {
	byIndex := make(map[int]string, len(fragments))
	for _, f := range fragments {
		i, err := fragment.PackedIndex(f.Locator)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAssemble, err)
		}
		if prev, ok := byIndex[i]; ok && prev != f.Identifier {
			return nil, fmt.Errorf("%w: conflicting fragments for part %d", ErrAssemble, i)
		}
		byIndex[i] = f.Identifier
	}

	var sb strings.Builder
	sb.Grow(len(byIndex) * fragment.PackedIdentifierLength)
	for i := 0; i < len(byIndex); i++ {
		id, ok := byIndex[i]
		if !ok {
			return nil, fmt.Errorf("%w: part %d missing", ErrAssemble, i)
		}
		sb.WriteString(id)
	}

	text := sb.String()
	n := len(text)
	for n > 0 && !validUnpaddedLength(n) {
		n--
	}

	raw, err := packedEncoding.DecodeString(text[:n])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssemble, err)
	}
	if len(raw) < packedHeader {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrAssemble, len(raw))
	}

	size := int(binary.BigEndian.Uint16(raw))
	body := raw[packedHeader:]
	if size > len(body) {
		return nil, fmt.Errorf("%w: have %d of %d bytes", ErrAssemble, len(body), size)
	}
	return body[:size], nil
}

// Pack splits data into fragments that PackedAssembler reassembles. Each
// fragment's locator encodes its part index. The last fragment is padded
// with 'A' (zero bits). Used by senders and tests.
func Pack(data []byte, power int) ([]fragment.Fragment, error) {
	if len(data) > MaxPackedSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), MaxPackedSize)
	}

	framed := make([]byte, packedHeader+len(data))
	binary.BigEndian.PutUint16(framed, uint16(len(data)))
	copy(framed[packedHeader:], data)

	text := packedEncoding.EncodeToString(framed)
	if rem := len(text) % fragment.PackedIdentifierLength; rem != 0 {
		text += strings.Repeat("A", fragment.PackedIdentifierLength-rem)
	}

	frags := make([]fragment.Fragment, 0, len(text)/fragment.PackedIdentifierLength)
	for i := 0; i < len(text); i += fragment.PackedIdentifierLength {
		loc, err := fragment.PackedLocator(len(frags))
		if err != nil {
			return nil, err
		}
		frags = append(frags, fragment.Fragment{
			Identifier: text[i : i+fragment.PackedIdentifierLength],
			Locator:    loc,
			Power:      power,
		})
	}
	return frags, nil
}

func validUnpaddedLength(n int) bool {
	switch n % 8 {
	case 0, 2, 4, 5, 7:
		return true
	default:
		return false
	}
}
