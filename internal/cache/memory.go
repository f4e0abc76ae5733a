package cache

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore is a process-local Store backed by ttlcache. It is used in tests and when no
// shared backend is configured.
type MemoryStore struct {
	items *ttlcache.Cache[string, []byte]
	// mu serialises read-modify-write operations (counters and locks).
	mu     sync.Mutex
	closed chan struct{}
	once   sync.Once
}

// NewMemoryStore constructs a MemoryStore and starts its expiry loop.
func NewMemoryStore() *MemoryStore {
	items := ttlcache.New[string, []byte](
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	store := &MemoryStore{items: items, closed: make(chan struct{})}
	go items.Start()
	return store
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.isClosed() {
		return nil, false, ErrStoreClosed
	}
	item := s.items.Get(key)
	if item == nil || item.IsExpired() {
		return nil, false, nil
	}
	return item.Value(), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	s.items.Set(key, cloneBytes(value), memoryTTL(ttl))
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) (int64, error) {
	if s.isClosed() {
		return 0, ErrStoreClosed
	}
	var deleted int64
	for _, key := range keys {
		if s.items.Has(key) {
			s.items.Delete(key)
			deleted++
		}
	}
	return deleted, nil
}

// DeletePattern matches keys with path.Match glob semantics. Generated keys never contain
// '/', so '*' spans the whole remainder of a key.
func (s *MemoryStore) DeletePattern(_ context.Context, pattern string) (int64, error) {
	if s.isClosed() {
		return 0, ErrStoreClosed
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return 0, err
	}
	var deleted int64
	for _, key := range s.items.Keys() {
		if ok, _ := path.Match(pattern, key); ok {
			s.items.Delete(key)
			deleted++
		}
	}
	return deleted, nil
}

// Stats counts live cache entries of the current key version; locks and counters are skipped.
func (s *MemoryStore) Stats(_ context.Context) (StoreStats, error) {
	if s.isClosed() {
		return StoreStats{}, ErrStoreClosed
	}
	stats := StoreStats{Backend: "memory"}
	for _, item := range s.items.Items() {
		if item.IsExpired() || !isCacheEntryKey(item.Key()) {
			continue
		}
		stats.Keys++
		stats.MemoryBytes += int64(len(item.Key()) + len(item.Value()))
	}
	return stats, nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	return nil
}

// Close stops the expiry loop and drops all entries.
func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.items.Stop()
		s.items.DeleteAll()
	})
	return nil
}

// TryLock stores token under key unless a live entry already exists.
func (s *MemoryStore) TryLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	if s.isClosed() {
		return false, ErrStoreClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.items.Get(key); item != nil && !item.IsExpired() {
		return false, nil
	}
	s.items.Set(key, []byte(token), memoryTTL(ttl))
	return true, nil
}

// Unlock removes key only while it still holds token.
func (s *MemoryStore) Unlock(_ context.Context, key, token string) error {
	if s.isClosed() {
		return ErrStoreClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.items.Get(key); item != nil && string(item.Value()) == token {
		s.items.Delete(key)
	}
	return nil
}

// IncrementWithTTL increments a fixed-window counter, starting a new window on first use.
func (s *MemoryStore) IncrementWithTTL(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s.isClosed() {
		return 0, 0, ErrStoreClosed
	}
	if window <= 0 {
		window = time.Minute
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.items.Get(key)
	if item == nil || item.IsExpired() {
		s.items.Set(key, encodeCounter(1), window)
		return 1, window, nil
	}

	count := decodeCounter(item.Value()) + 1
	remaining := time.Until(item.ExpiresAt())
	if remaining <= 0 {
		remaining = window
	}
	s.items.Set(key, encodeCounter(count), remaining)
	return count, remaining, nil
}

func (s *MemoryStore) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func memoryTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttlcache.NoTTL
	}
	return ttl
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return []byte{}
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out
}
