package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while the breaker short-circuits calls to a failing store.
var ErrCircuitOpen = errors.New("cache: store circuit open")

// BreakerConfig tunes the circuit breaker placed in front of a store.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the settings used when none are configured.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      10,
	}
}

// BreakerStore decorates a Store with a circuit breaker so an unreachable backend fails fast
// instead of stacking client timeouts onto every request.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps inner. Zero-valued config fields fall back to DefaultBreakerConfig.
func NewBreakerStore(inner Store, cfg BreakerConfig, log *zap.Logger) *BreakerStore {
	if log == nil {
		log = zap.NewNop()
	}
	defaults := DefaultBreakerConfig("cache-store")
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = defaults.MaxRequests
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.FailureThreshold <= 0 || cfg.FailureThreshold > 1 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = defaults.MinRequests
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("cache store breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// A cancelled caller says nothing about the health of the store.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerStore{inner: inner, cb: cb}
}

// State reports the breaker state ("closed", "half-open" or "open").
func (s *BreakerStore) State() string {
	return s.cb.State().String()
}

// Unwrap returns the decorated store.
func (s *BreakerStore) Unwrap() Store {
	return s.inner
}

func (s *BreakerStore) execute(fn func() (interface{}, error)) (interface{}, error) {
	out, err := s.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return out, err
}

type getResult struct {
	value []byte
	found bool
}

func (s *BreakerStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := s.execute(func() (interface{}, error) {
		value, found, err := s.inner.Get(ctx, key)
		return getResult{value: value, found: found}, err
	})
	if err != nil {
		return nil, false, err
	}
	res := out.(getResult)
	return res.value, res.found, nil
}

func (s *BreakerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.execute(func() (interface{}, error) {
		return nil, s.inner.Set(ctx, key, value, ttl)
	})
	return err
}

func (s *BreakerStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	return s.count(func() (int64, error) { return s.inner.Delete(ctx, keys...) })
}

func (s *BreakerStore) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	return s.count(func() (int64, error) { return s.inner.DeletePattern(ctx, pattern) })
}

func (s *BreakerStore) count(fn func() (int64, error)) (int64, error) {
	var n int64
	_, err := s.execute(func() (interface{}, error) {
		var err error
		n, err = fn()
		return nil, err
	})
	return n, err
}

// Stats and Ping bypass the breaker so operators can still observe a tripped backend.
func (s *BreakerStore) Stats(ctx context.Context) (StoreStats, error) {
	return s.inner.Stats(ctx)
}

func (s *BreakerStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

func (s *BreakerStore) Close() error {
	return s.inner.Close()
}

func (s *BreakerStore) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	locker, ok := s.inner.(Locker)
	if !ok {
		return false, ErrUnsupported
	}
	var acquired bool
	_, err := s.execute(func() (interface{}, error) {
		var err error
		acquired, err = locker.TryLock(ctx, key, token, ttl)
		return nil, err
	})
	return acquired, err
}

func (s *BreakerStore) Unlock(ctx context.Context, key, token string) error {
	locker, ok := s.inner.(Locker)
	if !ok {
		return ErrUnsupported
	}
	return locker.Unlock(ctx, key, token)
}

func (s *BreakerStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	counter, ok := s.inner.(Counter)
	if !ok {
		return 0, 0, ErrUnsupported
	}
	var (
		count int64
		ttl   time.Duration
	)
	_, err := s.execute(func() (interface{}, error) {
		var err error
		count, ttl, err = counter.IncrementWithTTL(ctx, key, window)
		return nil, err
	})
	return count, ttl, err
}
