package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/randevubu/randevubu-server/internal/cache"
)

const rateLimitKeyPrefix = "ratelimit:"

// RateStore coordinates rate limiting counters for a specific key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

type counterRateStore struct {
	counter cache.Counter
}

// NewRateStore adapts a cache store to a RateStore. Stores without counter support
// (or a nil store) fall back to a process-local memory store.
func NewRateStore(store cache.Store) RateStore {
	if counter, ok := store.(cache.Counter); ok {
		return &counterRateStore{counter: counter}
	}
	return NewMemoryRateStore()
}

// NewMemoryRateStore constructs a process-local rate store.
func NewMemoryRateStore() RateStore {
	return &counterRateStore{counter: cache.NewMemoryStore()}
}

func (s *counterRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.counter.IncrementWithTTL(ctx, rateLimitKeyPrefix+key, window)
	if errors.Is(err, cache.ErrUnsupported) {
		return 0, 0, nil
	}
	return int(count), ttl, err
}
