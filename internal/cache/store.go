package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrUnsupported is returned by decorators when the wrapped store lacks an optional capability.
	ErrUnsupported = errors.New("cache: operation not supported by store")
	// ErrStoreClosed is returned once a store has been closed.
	ErrStoreClosed = errors.New("cache: store closed")
)

// Store is the key-value backend the cache service reads and writes through.
// Implementations must treat a missing or expired key as (nil, false, nil).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int64, error)
	// DeletePattern removes every key matching a glob pattern and reports how many were removed.
	// Implementations must enumerate incrementally rather than blocking the whole keyspace.
	DeletePattern(ctx context.Context, pattern string) (int64, error)
	Stats(ctx context.Context) (StoreStats, error)
	Ping(ctx context.Context) error
	Close() error
}

// Locker is implemented by stores able to provide a short-lived cross-process lock.
type Locker interface {
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// Counter is implemented by stores that can maintain fixed-window counters.
type Counter interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// cacheEntryPattern matches cache entries of the current key version. Lock keys
// ("lock:v2:...") and rate-limit counters ("ratelimit:...") fall outside it.
const cacheEntryPattern = KeyVersion + keySeparator + "*"

func isCacheEntryKey(key string) bool {
	return strings.HasPrefix(key, KeyVersion+keySeparator)
}

// StoreStats describes the backing store for operational dashboards. Keys counts cache entries
// of the current key version only.
type StoreStats struct {
	Backend     string `json:"backend"`
	Keys        int64  `json:"keys"`
	MemoryBytes int64  `json:"memory_bytes"`
	MemoryHuman string `json:"memory_human,omitempty"`
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
