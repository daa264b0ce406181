package pow

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPub, _ = hex.DecodeString("020102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")

func TestMine(t *testing.T) {
	m := NewMiner(WithWorkers(2))

	res, err := m.Mine(context.Background(), testPub, 8)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.Difficulty, 8)
	assert.Equal(t, ComputeNodeID(testPub, res.Nonce), res.NodeID)
	assert.Equal(t, res.NodeID.Difficulty(), res.Difficulty)
	assert.Zero(t, res.Nonce.D)
}

func TestMine_ZeroTarget(t *testing.T) {
	m := NewMiner(WithWorkers(1))

	// Any digest satisfies difficulty >= 0; the first candidate wins.
	res, err := m.Mine(context.Background(), testPub, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Difficulty, 0)
}

func TestMine_Progress(t *testing.T) {
	var seen []Progress
	m := NewMiner(WithWorkers(1), WithProgress(func(p Progress) {
		seen = append(seen, p)
	}))

	_, err := m.Mine(context.Background(), testPub, 6)
	require.NoError(t, err)

	require.NotEmpty(t, seen)

	// Bests only, strictly increasing, ending at or above the target.
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i].BestDifficulty, seen[i-1].BestDifficulty)
	}
	assert.GreaterOrEqual(t, seen[len(seen)-1].BestDifficulty, 6)
}

func TestMine_Cancelled(t *testing.T) {
	m := NewMiner(WithWorkers(2))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// 256 bits is unreachable; only cancellation ends the search.
	done := make(chan error, 1)
	go func() {
		_, err := m.Mine(ctx, testPub, 256)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("search did not observe cancellation")
	}
}
