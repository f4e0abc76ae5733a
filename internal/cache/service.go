package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// DefaultTTL is the dynamic tier used when a call does not specify a TTL.
	DefaultTTL = 5 * time.Minute

	tracerName = "github.com/randevubu/randevubu-server/internal/cache"
)

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Logger        *zap.Logger
	Metrics       *Metrics
	Tracer        trace.Tracer
	Codec         Codec
	DefaultTTL    time.Duration
	// JitterPercent defaults to DefaultJitterPercent; a negative value disables jitter.
	JitterPercent float64
	Guard         GuardConfig
}

// Service is the process-wide cache facade: typed get-or-compute, best-effort writes and
// entity-scoped invalidation over a single Store.
type Service struct {
	store      Store
	guard      *Guard
	keys       *KeyGenerator
	metrics    *Metrics
	log        *zap.Logger
	tracer     trace.Tracer
	codec      Codec
	defaultTTL time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Statistics summarises cache effectiveness and store usage.
type Statistics struct {
	Backend     string    `json:"backend"`
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Errors      int64     `json:"errors"`
	HitRate     float64   `json:"hit_rate"`
	Keys        int64     `json:"keys"`
	MemoryBytes int64     `json:"memory_bytes"`
	MemoryHuman string    `json:"memory_human,omitempty"`
	Locks       LockStats `json:"locks"`
}

// Option adjusts a single Get or Set call.
type Option func(*callConfig)

type callConfig struct {
	ttl     time.Duration
	protect bool
	swr     bool
	codec   Codec
}

// WithTTL overrides the service default TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *callConfig) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithoutStampedeProtection makes Get a plain read-through where racing callers each compute.
func WithoutStampedeProtection() Option {
	return func(c *callConfig) { c.protect = false }
}

// WithStaleWhileRevalidate keeps a long-lived stale copy and serves it while refreshing.
func WithStaleWhileRevalidate() Option {
	return func(c *callConfig) { c.swr = true }
}

// WithCodec overrides the service codec for one call.
func WithCodec(codec Codec) Option {
	return func(c *callConfig) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// NewService constructs a cache service over store.
func NewService(store Store, opts ServiceOptions) (*Service, error) {
	if store == nil {
		return nil, errors.New("cache service: store is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	codec := opts.Codec
	if codec == nil {
		codec = JSONCodec{}
	}
	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	guardCfg := opts.Guard
	guardCfg.JitterPercent = opts.JitterPercent
	if guardCfg.JitterPercent == 0 {
		guardCfg.JitterPercent = DefaultJitterPercent
	}
	if guardCfg.Logger == nil {
		guardCfg.Logger = log
	}

	return &Service{
		store:      store,
		guard:      NewGuard(store, guardCfg),
		keys:       NewKeyGenerator(log),
		metrics:    opts.Metrics,
		log:        log,
		tracer:     tracer,
		codec:      codec,
		defaultTTL: ttl,
	}, nil
}

func (s *Service) callConfig(opts []Option) callConfig {
	cfg := callConfig{ttl: s.defaultTTL, protect: true, codec: s.codec}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Store returns the backing store.
func (s *Service) Store() Store {
	return s.store
}

// GenerateKey builds a versioned key, logging rejected components with the service logger.
func (s *Service) GenerateKey(prefix, identifier string, opts KeyOptions) string {
	return s.keys.Generate(prefix, identifier, opts)
}

// BuildKey is GenerateKey that reports whether every component survived sanitisation.
func (s *Service) BuildKey(prefix, identifier string, opts KeyOptions) (string, bool) {
	return s.keys.Build(prefix, identifier, opts)
}

// Get returns the cached value under key or computes, stores and returns it.
// Store read failures propagate as *StoreError; compute errors propagate unchanged.
func Get[T any](ctx context.Context, s *Service, key string, compute func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var zero T
	ctx = ensureContext(ctx)
	cfg := s.callConfig(opts)
	prefix := keyPrefix(key)

	ctx, span := s.tracer.Start(ctx, "cache.Get", trace.WithAttributes(
		attribute.String("cache.prefix", prefix),
		attribute.Bool("cache.stampede_protection", cfg.protect),
	))
	defer span.End()
	defer s.metrics.observe("get", time.Now())

	computeRaw := func(ctx context.Context) ([]byte, error) {
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		return cfg.codec.Marshal(value)
	}

	var (
		data   []byte
		source Source
		err    error
	)
	if cfg.protect {
		data, source, err = s.guard.Get(ctx, key, computeRaw, cfg.ttl, GuardOptions{StaleWhileRevalidate: cfg.swr})
	} else {
		data, source, err = s.readThrough(ctx, key, computeRaw, cfg)
	}
	if err != nil {
		if IsStoreError(err) {
			s.metrics.failure(prefix, "get")
			s.log.Error("cache read failed", zap.String("key", key), zap.Error(err))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}

	span.SetAttributes(attribute.String("cache.source", source.String()))
	switch source {
	case SourceHit, SourceStale:
		s.metrics.hit(prefix)
	default:
		s.metrics.miss(prefix)
	}

	var value T
	if err := cfg.codec.Unmarshal(data, &value); err != nil {
		s.metrics.failure(prefix, "decode")
		if source != SourceHit && source != SourceStale {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return zero, err
		}
		s.log.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		if res := s.Delete(ctx, key, staleKey(key)); !res.OK() {
			s.log.Debug("failed to drop undecodable cache entry", zap.String("key", key), zap.Error(res.Err))
		}
		value, err = compute(ctx)
		if err != nil {
			return zero, err
		}
		setOpts := []Option{WithCodec(cfg.codec)}
		if cfg.swr {
			setOpts = append(setOpts, WithStaleWhileRevalidate())
		}
		Set(ctx, s, key, value, cfg.ttl, setOpts...)
	}
	return value, nil
}

func (s *Service) readThrough(ctx context.Context, key string, compute ComputeFunc, cfg callConfig) ([]byte, Source, error) {
	data, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, SourceNone, &StoreError{Op: "get", Key: key, Err: err}
	}
	if ok {
		return data, SourceHit, nil
	}
	data, err = compute(ctx)
	if err != nil {
		return nil, SourceNone, err
	}
	if err := s.guard.write(ctx, key, data, cfg.ttl, cfg.swr); err != nil {
		s.metrics.failure(keyPrefix(key), "set")
		s.log.Warn("cache write after compute failed", zap.String("key", key), zap.Error(err))
	}
	return data, SourceComputed, nil
}

// Set encodes value and stores it with a jittered TTL. A zero ttl selects the service default.
// Store failures are logged, counted and reported in the Result.
func Set[T any](ctx context.Context, s *Service, key string, value T, ttl time.Duration, opts ...Option) Result {
	cfg := s.callConfig(append([]Option{WithTTL(ttl)}, opts...))
	data, err := cfg.codec.Marshal(value)
	if err != nil {
		s.metrics.failure(keyPrefix(key), "encode")
		s.log.Warn("cache value encoding failed", zap.String("key", key), zap.Error(err))
		return Result{Err: err}
	}
	return s.setRaw(ctx, key, data, cfg)
}

// SetRaw stores already-encoded bytes.
func (s *Service) SetRaw(ctx context.Context, key string, data []byte, ttl time.Duration, opts ...Option) Result {
	return s.setRaw(ctx, key, data, s.callConfig(append([]Option{WithTTL(ttl)}, opts...)))
}

func (s *Service) setRaw(ctx context.Context, key string, data []byte, cfg callConfig) Result {
	ctx = ensureContext(ctx)
	ctx, span := s.tracer.Start(ctx, "cache.Set", trace.WithAttributes(attribute.String("cache.prefix", keyPrefix(key))))
	defer span.End()
	defer s.metrics.observe("set", time.Now())

	if err := s.guard.write(ctx, key, data, cfg.ttl, cfg.swr); err != nil {
		s.metrics.failure(keyPrefix(key), "set")
		s.log.Error("cache write failed", zap.String("key", key), zap.Error(err))
		span.RecordError(err)
		return Result{Err: &StoreError{Op: "set", Key: key, Err: err}}
	}
	return Result{}
}

// Delete removes keys. Failures are logged and reported in the Result.
func (s *Service) Delete(ctx context.Context, keys ...string) Result {
	if len(keys) == 0 {
		return Result{}
	}
	ctx = ensureContext(ctx)
	defer s.metrics.observe("delete", time.Now())

	deleted, err := s.store.Delete(ctx, keys...)
	if err != nil {
		s.metrics.failure(keyPrefix(keys[0]), "delete")
		s.log.Error("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return Result{Err: &StoreError{Op: "delete", Key: keys[0], Err: err}}
	}
	return Result{Deleted: deleted}
}

// DeletePattern removes keys matching a glob pattern. On failure the count is zero and
// the error is carried in the Result.
func (s *Service) DeletePattern(ctx context.Context, pattern string) Result {
	ctx = ensureContext(ctx)
	ctx, span := s.tracer.Start(ctx, "cache.DeletePattern", trace.WithAttributes(attribute.String("cache.pattern", pattern)))
	defer span.End()
	defer s.metrics.observe("delete_pattern", time.Now())

	deleted, err := s.store.DeletePattern(ctx, pattern)
	if err != nil {
		s.metrics.failure(keyPrefix(pattern), "delete_pattern")
		s.log.Error("cache pattern delete failed",
			zap.String("pattern", pattern),
			zap.Int64("deleted_before_failure", deleted),
			zap.Error(err),
		)
		span.RecordError(err)
		return Result{Err: &StoreError{Op: "delete_pattern", Key: pattern, Err: err}}
	}
	span.SetAttributes(attribute.Int64("cache.deleted", deleted))
	return Result{Deleted: deleted}
}

// HealthCheck pings the store.
func (s *Service) HealthCheck(ctx context.Context) bool {
	if err := s.store.Ping(ensureContext(ctx)); err != nil {
		s.log.Warn("cache health check failed", zap.Error(err))
		return false
	}
	return true
}

// Statistics combines counters, guard state and store usage. Store stats failures are
// logged and leave the store fields empty.
func (s *Service) Statistics(ctx context.Context) Statistics {
	snapshot := s.metrics.Snapshot()
	stats := Statistics{
		Hits:   snapshot.Hits,
		Misses: snapshot.Misses,
		Errors: snapshot.Errors,
		Locks:  s.guard.LockStats(),
	}
	if total := snapshot.Hits + snapshot.Misses; total > 0 {
		stats.HitRate = float64(snapshot.Hits) / float64(total)
	}

	storeStats, err := s.store.Stats(ensureContext(ctx))
	if err != nil {
		s.log.Warn("cache store stats unavailable", zap.Error(err))
		return stats
	}
	stats.Backend = storeStats.Backend
	stats.Keys = storeStats.Keys
	stats.MemoryBytes = storeStats.MemoryBytes
	stats.MemoryHuman = storeStats.MemoryHuman
	return stats
}

// Close stops background refreshes and closes the store. It is safe to call more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.guard.Close()
		s.closeErr = multierr.Append(s.closeErr, s.store.Close())
	})
	return s.closeErr
}
