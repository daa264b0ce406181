package identity

import (
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsnet/dwsctl/pkg/pow"
)

func mineTest(t *testing.T, target int) *Identity {
	t.Helper()

	id, err := Mine(context.Background(), target, pow.WithWorkers(2))
	require.NoError(t, err)

	return id
}

func TestMineVerify(t *testing.T) {
	id := mineTest(t, 8)

	assert.GreaterOrEqual(t, id.Difficulty, 8)
	assert.True(t, id.Verify())
	assert.NoError(t, id.CheckProof())
	assert.False(t, id.MinedAt.IsZero())

	pub, err := hex.DecodeString(id.PublicKey)
	require.NoError(t, err)
	assert.Len(t, pub, CompressedPubKeySize)

	priv, err := hex.DecodeString(id.PrivateKey)
	require.NoError(t, err)
	assert.Len(t, priv, 32)
}

func TestVerify_MutatedPublicKey(t *testing.T) {
	id := mineTest(t, 4)

	pub, _ := hex.DecodeString(id.PublicKey)
	for i := range pub {
		mutated := *id
		flipped := make([]byte, len(pub))
		copy(flipped, pub)
		flipped[i] ^= 0x01
		mutated.PublicKey = hex.EncodeToString(flipped)

		assert.False(t, mutated.Verify(), "byte %d", i)
	}
}

func TestVerify_MutatedNonce(t *testing.T) {
	id := mineTest(t, 4)

	for i := 0; i < 4; i++ {
		mutated := *id
		switch i {
		case 0:
			mutated.Nonce.A++
		case 1:
			mutated.Nonce.B++
		case 2:
			mutated.Nonce.C++
		case 3:
			mutated.Nonce.D++
		}

		assert.False(t, mutated.Verify(), "word %d", i)
		assert.ErrorIs(t, mutated.CheckProof(), ErrProofOfWorkMismatch)
	}
}

func TestVerify_InflatedDifficulty(t *testing.T) {
	id := mineTest(t, 4)

	id.Difficulty += 64
	assert.False(t, id.Verify())
}

func TestValidate(t *testing.T) {
	id := mineTest(t, 0)
	assert.NoError(t, id.Validate())

	bad := *id
	bad.PublicKey = "not-hex"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRecord)

	bad = *id
	bad.PublicKey = strings.Repeat("ab", 16)
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRecord)

	bad = *id
	bad.NodeID = "abcd"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRecord)

	// Registration-side records have no private key; still valid.
	pubOnly := *id
	pubOnly.PrivateKey = ""
	assert.NoError(t, pubOnly.Validate())
}
