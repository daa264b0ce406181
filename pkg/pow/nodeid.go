package pow

import (
	"crypto/sha256"
	"encoding/hex"
	"math/bits"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// NodeIDSize is the node-id digest byte size.
const NodeIDSize = sha256.Size

var (
	ErrNodeIDLen = errors.New("node id must be 32 bytes")
)

// NodeID is a node's canonical network identifier, derived from its public
// key and a mined nonce.
type NodeID [NodeIDSize]byte

// ComputeNodeID derives the identifier for a public key and nonce:
//
//	reverse(SHA-256(BLAKE2b-512(publicKey || nonce)))
//
// The composition, the big-endian nonce layout and the final byte reversal
// are a wire-format contract with the on-chain verifier and must not change.
func ComputeNodeID(publicKey []byte, nonce Nonce) NodeID {
	input := make([]byte, 0, len(publicKey)+NonceSize)
	input = append(input, publicKey...)
	input = append(input, nonce.Bytes()...)

	intermediate := blake2b.Sum512(input)
	digest := sha256.Sum256(intermediate[:])

	var id NodeID
	for i, b := range digest {
		id[NodeIDSize-1-i] = b
	}

	return id
}

// NodeIDFromHex parses a lowercase/uppercase hex node id.
func NodeIDFromHex(s string) (NodeID, error) {
	var id NodeID

	b, err := hex.DecodeString(s)
	if err != nil {
		return id, errors.Wrap(err, "decoding node id hex")
	}
	if len(b) != NodeIDSize {
		return id, ErrNodeIDLen
	}

	copy(id[:], b)
	return id, nil
}

func (id NodeID) String() string {
	return hex.EncodeToString(id[:])
}

// Difficulty counts leading zero bits of the id. An all-zero id reports the
// full 256 bits rather than falling off the end of the scan.
func (id NodeID) Difficulty() int {
	d := 0
	for _, b := range id {
		if b == 0 {
			d += 8
			continue
		}
		d += bits.LeadingZeros8(b)
		break
	}
	return d
}

// IsZero reports whether the id is the zero digest, which the registry uses
// to signal an absent record.
func (id NodeID) IsZero() bool {
	return id == NodeID{}
}
