package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		value, ok, err := store.Get(ctx, "v2:business:missing")
		require.NoError(t, err)
		require.False(t, ok)
		require.Nil(t, value)
	})

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "v2:business:b1", []byte(`{"id":"b1"}`), time.Minute))

		value, ok, err := store.Get(ctx, "v2:business:b1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, `{"id":"b1"}`, string(value))
	})

	t.Run("delete counts removed keys", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "v2:service:s1", []byte("1"), time.Minute))
		require.NoError(t, store.Set(ctx, "v2:service:s2", []byte("2"), time.Minute))

		deleted, err := store.Delete(ctx, "v2:service:s1", "v2:service:s2", "v2:service:absent")
		require.NoError(t, err)
		require.EqualValues(t, 2, deleted)

		_, ok, err := store.Get(ctx, "v2:service:s1")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("delete pattern", func(t *testing.T) {
		keys := []string{
			"v2:appointments:biz:b7:list",
			"v2:appointments:user:u1:biz:b7:upcoming",
			"v2:stats:biz:b7:daily",
			"v2:appointments:biz:b8:list",
		}
		for _, key := range keys {
			require.NoError(t, store.Set(ctx, key, []byte("x"), time.Minute))
		}

		deleted, err := store.DeletePattern(ctx, "v2:*:biz:b7:*")
		require.NoError(t, err)
		require.EqualValues(t, 3, deleted)

		_, ok, err := store.Get(ctx, "v2:appointments:biz:b8:list")
		require.NoError(t, err)
		require.True(t, ok)

		deleted, err = store.DeletePattern(ctx, "v2:nothing:*")
		require.NoError(t, err)
		require.Zero(t, deleted)
	})

	t.Run("pattern treats like wildcards literally", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "v2:profile:a_b", []byte("x"), time.Minute))
		require.NoError(t, store.Set(ctx, "v2:profile:axb", []byte("x"), time.Minute))

		deleted, err := store.DeletePattern(ctx, "v2:profile:a_b")
		require.NoError(t, err)
		require.EqualValues(t, 1, deleted)

		_, ok, err := store.Get(ctx, "v2:profile:axb")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("stats and ping", func(t *testing.T) {
		require.NoError(t, store.Ping(ctx))

		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, stats.Backend)
		require.Positive(t, stats.Keys)
	})

	if locker, ok := store.(Locker); ok {
		t.Run("lock", func(t *testing.T) {
			acquired, err := locker.TryLock(ctx, "lock:v2:business:b1", "token-a", time.Minute)
			require.NoError(t, err)
			require.True(t, acquired)

			acquired, err = locker.TryLock(ctx, "lock:v2:business:b1", "token-b", time.Minute)
			require.NoError(t, err)
			require.False(t, acquired)

			require.NoError(t, locker.Unlock(ctx, "lock:v2:business:b1", "token-b"))
			acquired, err = locker.TryLock(ctx, "lock:v2:business:b1", "token-b", time.Minute)
			require.NoError(t, err)
			require.False(t, acquired, "foreign token must not release the lock")

			require.NoError(t, locker.Unlock(ctx, "lock:v2:business:b1", "token-a"))
			acquired, err = locker.TryLock(ctx, "lock:v2:business:b1", "token-b", time.Minute)
			require.NoError(t, err)
			require.True(t, acquired)
		})
	}

	if counter, ok := store.(Counter); ok {
		t.Run("counter", func(t *testing.T) {
			count, remaining, err := counter.IncrementWithTTL(ctx, "ratelimit:client", time.Minute)
			require.NoError(t, err)
			require.EqualValues(t, 1, count)
			require.Positive(t, remaining)

			count, _, err = counter.IncrementWithTTL(ctx, "ratelimit:client", time.Minute)
			require.NoError(t, err)
			require.EqualValues(t, 2, count)
		})
	}

	t.Run("stats skip locks and counters", func(t *testing.T) {
		before, err := store.Stats(ctx)
		require.NoError(t, err)

		if locker, ok := store.(Locker); ok {
			_, err := locker.TryLock(ctx, "lock:v2:business:b9", "token", time.Minute)
			require.NoError(t, err)
		}
		if counter, ok := store.(Counter); ok {
			_, _, err := counter.IncrementWithTTL(ctx, "ratelimit:other", time.Minute)
			require.NoError(t, err)
		}

		after, err := store.Stats(ctx)
		require.NoError(t, err)
		require.Equal(t, before.Keys, after.Keys)
	})
}
