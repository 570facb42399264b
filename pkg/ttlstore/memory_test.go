package ttlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryAcquireAndExpiry(t *testing.T) {
	t.Parallel()

	now := time.Now()
	m := NewMemory()
	m.now = func() time.Time { return now }

	ctx := context.Background()

	ok, err := m.Acquire(ctx, "otp:alice", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// A live entry blocks re-acquisition.
	ok, err = m.Acquire(ctx, "otp:alice", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	held, err := m.Exists(ctx, "otp:alice")
	require.NoError(t, err)
	require.True(t, held)

	// Other keys are independent.
	ok, err = m.Acquire(ctx, "otp:bob", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Past the TTL the key can be taken again.
	now = now.Add(2 * time.Minute)

	held, err = m.Exists(ctx, "otp:alice")
	require.NoError(t, err)
	require.False(t, held)

	ok, err = m.Acquire(ctx, "otp:alice", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryRelease(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	ok, err := m.Acquire(ctx, "reset:alice", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.Release(ctx, "reset:alice"))

	held, err := m.Exists(ctx, "reset:alice")
	require.NoError(t, err)
	require.False(t, held)

	// Releasing twice is fine.
	require.NoError(t, m.Release(ctx, "reset:alice"))
}
