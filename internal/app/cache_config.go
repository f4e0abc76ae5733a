package app

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/randevubu/randevubu-server/internal/cache"
)

// BackendName returns the normalised backend, defaulting to redis.
func (c CacheConfig) BackendName() string {
	backend := strings.ToLower(strings.TrimSpace(c.Backend))
	if backend == "" {
		return "redis"
	}
	return backend
}

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:   strings.TrimSpace(c.Redis.Address),
		Username:  strings.TrimSpace(c.Redis.Username),
		Password:  c.Redis.Password,
		DB:        c.Redis.DB,
		TLS:       c.Redis.TLS,
		Timeout:   c.Redis.Timeout,
		PoolSize:  c.Redis.PoolSize,
		KeyPrefix: c.Redis.KeyPrefix,
		ScanCount: c.Redis.ScanCount,
	}
}

// BreakerSettings converts the breaker section for the named store.
func (c CacheConfig) BreakerSettings(name string) cache.BreakerConfig {
	return cache.BreakerConfig{
		Name:             name,
		MaxRequests:      c.Breaker.MaxRequests,
		Interval:         c.Breaker.Interval,
		Timeout:          c.Breaker.Timeout,
		FailureThreshold: c.Breaker.FailureThreshold,
		MinRequests:      c.Breaker.MinRequests,
	}
}

// ServiceOptions builds the cache service options. Metrics may be nil.
func (c CacheConfig) ServiceOptions(log *zap.Logger, metrics *cache.Metrics) cache.ServiceOptions {
	return cache.ServiceOptions{
		Logger:        log,
		Metrics:       metrics,
		Codec:         cache.CodecByName(strings.ToLower(strings.TrimSpace(c.Codec))),
		DefaultTTL:    c.DefaultTTL,
		JitterPercent: c.JitterPercent,
		Guard: cache.GuardConfig{
			LockTTL:                c.Stampede.LockTTL,
			LockWait:               c.Stampede.LockWait,
			PollInterval:           c.Stampede.PollInterval,
			StaleFactor:            c.Stampede.StaleFactor,
			MinStaleTTL:            c.Stampede.MinStaleTTL,
			RefreshTimeout:         c.Stampede.RefreshTimeout,
			DisableDistributedLock: !c.Stampede.DistributedLock,
			Logger:                 log,
		},
	}
}

// OpenCacheStore builds the configured store. An unreachable Redis degrades to the database
// store, and the memory store is used when no database handle is available either.
func (c CacheConfig) OpenCacheStore(ctx context.Context, db *gorm.DB, log *zap.Logger) cache.Store {
	if log == nil {
		log = zap.NewNop()
	}

	var (
		store cache.Store
		name  string
	)
	switch c.BackendName() {
	case "redis":
		redisStore, err := cache.NewRedisStore(ctx, c.RedisClientConfig())
		if err == nil {
			store, name = redisStore, "redis"
			break
		}
		log.Error("redis cache unavailable, falling back", zap.String("address", c.Redis.Address), zap.Error(err))
		fallthrough
	case "database":
		if db != nil {
			store, name = cache.NewDatabaseStore(db), "database"
		}
	}
	if store == nil {
		log.Info("using in-process memory cache")
		return cache.NewMemoryStore()
	}

	log.Info("cache store ready", zap.String("backend", name))
	if !c.Breaker.Enabled {
		return store
	}
	return cache.NewBreakerStore(store, c.BreakerSettings(name+"-cache"), log)
}
