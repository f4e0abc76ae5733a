package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var errBackendDown = errors.New("backend down")

// faultyStore wraps a MemoryStore and fails selected operations on demand.
type faultyStore struct {
	*MemoryStore

	mu          sync.Mutex
	failGet     bool
	failSet     bool
	failPattern func(pattern string) bool
	gets        int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemoryStore: NewMemoryStore()}
}

func (s *faultyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	s.gets++
	fail := s.failGet
	s.mu.Unlock()
	if fail {
		return nil, false, errBackendDown
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *faultyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	fail := s.failSet
	s.mu.Unlock()
	if fail {
		return errBackendDown
	}
	return s.MemoryStore.Set(ctx, key, value, ttl)
}

func (s *faultyStore) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	fail := s.failPattern != nil && s.failPattern(pattern)
	s.mu.Unlock()
	if fail {
		return 0, errBackendDown
	}
	return s.MemoryStore.DeletePattern(ctx, pattern)
}

func (s *faultyStore) setFailGet(fail bool) {
	s.mu.Lock()
	s.failGet = fail
	s.mu.Unlock()
}

func (s *faultyStore) setFailSet(fail bool) {
	s.mu.Lock()
	s.failSet = fail
	s.mu.Unlock()
}

func (s *faultyStore) failPatternsContaining(fragment string) {
	s.mu.Lock()
	s.failPattern = func(pattern string) bool { return strings.Contains(pattern, fragment) }
	s.mu.Unlock()
}

// plainStore hides the optional Locker and Counter capabilities of a MemoryStore.
type plainStore struct {
	inner *MemoryStore
}

func (s plainStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.inner.Get(ctx, key)
}

func (s plainStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.inner.Set(ctx, key, value, ttl)
}

func (s plainStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	return s.inner.Delete(ctx, keys...)
}

func (s plainStore) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	return s.inner.DeletePattern(ctx, pattern)
}

func (s plainStore) Stats(ctx context.Context) (StoreStats, error) { return s.inner.Stats(ctx) }

func (s plainStore) Ping(ctx context.Context) error { return s.inner.Ping(ctx) }

func (s plainStore) Close() error { return s.inner.Close() }
