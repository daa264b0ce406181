package pow

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPub(t *testing.T, s string) []byte {
	t.Helper()

	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}

	return b
}

func TestComputeNodeID_Golden(t *testing.T) {
	// Pins the big-endian nonce layout, the publicKey||nonce concatenation
	// order and the BLAKE2b-512 -> SHA-256 -> reverse composition.
	pub := mustPub(t, "020102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")

	id := ComputeNodeID(pub, Nonce{A: 1, B: 2, C: 3})
	assert.Equal(t, "62b7d6025eb4f1cb6ccfc14e17ee474bbd5e67a031b7240fa4aa20ee2fd93094", id.String())
	assert.Equal(t, 1, id.Difficulty())

	id = ComputeNodeID(pub, Nonce{A: 0xffffffffffffffff})
	assert.Equal(t, "17a4860b5e332fa845c88850a484984852d1f3fa89a4b1863b43f5bc194cd363", id.String())
	assert.Equal(t, 3, id.Difficulty())

	pub = mustPub(t, "03"+strings.Repeat("00", 32))
	id = ComputeNodeID(pub, Nonce{})
	assert.Equal(t, "7b60cfe3822a1a96473ad8a34c7f94529a1d0819dcf8f5bec7ae1a51197c9099", id.String())
}

func TestComputeNodeID_Deterministic(t *testing.T) {
	pub := mustPub(t, "020102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")
	nonce := Nonce{A: 42, B: 7, C: 9}

	a := ComputeNodeID(pub, nonce)
	b := ComputeNodeID(pub, nonce)

	assert.Equal(t, a, b)
}

func TestDifficulty(t *testing.T) {
	allZero, err := NodeIDFromHex(strings.Repeat("0", 64))
	require.NoError(t, err)
	assert.Equal(t, 256, allZero.Difficulty())
	assert.True(t, allZero.IsZero())

	noZeros, err := NodeIDFromHex("f" + strings.Repeat("0", 63))
	require.NoError(t, err)
	assert.Equal(t, 0, noZeros.Difficulty())

	oneNibble, err := NodeIDFromHex("0f" + strings.Repeat("0", 62))
	require.NoError(t, err)
	assert.Equal(t, 4, oneNibble.Difficulty())

	partial, err := NodeIDFromHex("01" + strings.Repeat("0", 62))
	require.NoError(t, err)
	assert.Equal(t, 7, partial.Difficulty())
}

func TestNodeIDFromHex_Invalid(t *testing.T) {
	_, err := NodeIDFromHex("abcd")
	assert.ErrorIs(t, err, ErrNodeIDLen)

	_, err = NodeIDFromHex("zz")
	assert.Error(t, err)
}

func TestNonceBytes(t *testing.T) {
	n := Nonce{A: 1, B: 2, C: 3}

	b := n.Bytes()
	require.Len(t, b, NonceSize)
	assert.Equal(t,
		"0000000000000001"+"0000000000000002"+"0000000000000003"+"0000000000000000",
		hex.EncodeToString(b))

	rt, err := NonceFromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, n, rt)

	_, err = NonceFromBytes(b[:16])
	assert.ErrorIs(t, err, ErrNonceLen)
}
