package identity

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsnet/dwsctl/pkg/pow"
)

func TestStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.yaml")

	s, err := NewStore(path)
	require.NoError(t, err)

	id, err := Mine(context.Background(), 0, pow.WithWorkers(1))
	require.NoError(t, err)

	require.NoError(t, s.Add(id))

	// re-adding is a no-op
	require.NoError(t, s.Add(id))
	assert.Len(t, s.List(), 1)

	found, err := s.Find(id.NodeID)
	require.NoError(t, err)
	assert.Equal(t, id.PublicKey, found.PublicKey)

	_, err = s.Find("missing")
	assert.ErrorIs(t, err, ErrNotInStore)

	// read back from disk
	s2, err := NewStore(path)
	require.NoError(t, err)

	found, err = s2.Find(id.NodeID)
	require.NoError(t, err)
	assert.Equal(t, id.Nonce, found.Nonce)
	assert.Equal(t, id.PrivateKey, found.PrivateKey)
	assert.True(t, found.Verify())
}
