package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreakerStorePassesThrough(t *testing.T) {
	store := NewBreakerStore(NewMemoryStore(), BreakerConfig{}, nil)
	t.Cleanup(func() { _ = store.Close() })

	exerciseStore(t, store)
	require.Equal(t, "closed", store.State())
}

func TestBreakerStoreOpensAfterFailures(t *testing.T) {
	inner := newFaultyStore()
	t.Cleanup(func() { _ = inner.Close() })
	inner.setFailGet(true)

	store := NewBreakerStore(inner, BreakerConfig{MinRequests: 3, FailureThreshold: 0.5, Timeout: time.Minute}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := store.Get(ctx, "v2:business:b1")
		require.ErrorIs(t, err, errBackendDown)
	}
	require.Equal(t, "open", store.State())

	inner.setFailGet(false)
	_, _, err := store.Get(ctx, "v2:business:b1")
	require.ErrorIs(t, err, ErrCircuitOpen)

	inner.mu.Lock()
	gets := inner.gets
	inner.mu.Unlock()
	require.Equal(t, 3, gets, "open breaker must not reach the backend")

	require.NoError(t, store.Ping(ctx), "ping bypasses the breaker")
}

func TestBreakerStoreIgnoresCancelledCallers(t *testing.T) {
	inner := NewMemoryStore()
	store := NewBreakerStore(inner, BreakerConfig{MinRequests: 1, FailureThreshold: 0.1}, nil)
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.count(func() (int64, error) { return 0, ctx.Err() })
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, "closed", store.State())
}

func TestBreakerStoreReportsMissingCapabilities(t *testing.T) {
	store := NewBreakerStore(plainStore{inner: NewMemoryStore()}, BreakerConfig{}, nil)
	t.Cleanup(func() { _ = store.Close() })

	_, err := store.TryLock(context.Background(), "lock:x", "t", time.Second)
	require.ErrorIs(t, err, ErrUnsupported)

	_, _, err = store.IncrementWithTTL(context.Background(), "counter", time.Second)
	require.ErrorIs(t, err, ErrUnsupported)
}
