package pow

import (
	"bytes"
	"encoding/binary"
	"math/rand"

	"github.com/pkg/errors"
)

// NonceSize is the serialized nonce byte size.
const NonceSize = 8 * 4

var (
	ErrNonceLen = errors.New("nonce must be 32 bytes")
)

// Nonce is a 256 bit value varied during the identity search. Word D is
// conventionally left at 0 by miners; other tooling in the network relies
// on the ordering this gives and it is preserved when drawing candidates.
type Nonce struct {
	A uint64 `yaml:"a"`
	B uint64 `yaml:"b"`
	C uint64 `yaml:"c"`
	D uint64 `yaml:"d"`
}

// Bytes serializes the nonce as 32 bytes, big-endian, in field order
// A, B, C, D. This layout is part of the node-id wire format.
func (n Nonce) Bytes() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, n)
	return buf.Bytes()
}

// NonceFromBytes deserializes a 32 byte big-endian nonce.
func NonceFromBytes(b []byte) (Nonce, error) {
	var n Nonce
	if len(b) != NonceSize {
		return n, ErrNonceLen
	}

	if err := binary.Read(bytes.NewReader(b), binary.BigEndian, &n); err != nil {
		return n, errors.Wrap(err, "reading nonce words")
	}

	return n, nil
}

// randNonce draws a fresh candidate from r, leaving word D at 0.
func randNonce(r *rand.Rand) Nonce {
	return Nonce{
		A: r.Uint64(),
		B: r.Uint64(),
		C: r.Uint64(),
	}
}
