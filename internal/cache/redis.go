package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig captures the connection parameters for the Redis store.
type RedisConfig struct {
	Address   string
	Username  string
	Password  string
	DB        int
	TLS       bool
	Timeout   time.Duration
	PoolSize  int
	KeyPrefix string
	// ScanCount is the COUNT hint passed to SCAN during pattern deletes.
	ScanCount int64
}

const (
	defaultRedisTimeout   = 5 * time.Second
	defaultRedisKeyPrefix = "randevubu:"
	defaultScanCount      = 500
)

// unlockScript deletes a lock only while it still carries the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// incrementScript bumps a fixed-window counter and sets its expiry in the same step, so a
// counter can never be left without a TTL.
var incrementScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore implements Store, Locker and Counter on top of go-redis. Every key is namespaced
// with a prefix so several applications can share one Redis database.
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	scanCount int64
}

// NewRedisStore dials Redis and verifies the connection so misconfiguration surfaces at startup.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		PoolSize:     cfg.PoolSize,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ensureContext(ctx), cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewRedisStoreWithClient(client, cfg.KeyPrefix, cfg.ScanCount), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string, scanCount int64) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	if !strings.HasSuffix(prefix, keySeparator) {
		prefix += keySeparator
	}
	if scanCount <= 0 {
		scanCount = defaultScanCount
	}
	return &RedisStore{client: client, prefix: prefix, scanCount: scanCount}
}

// Client exposes the underlying go-redis client.
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ensureContext(ctx), s.prefixed(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ensureContext(ctx), s.prefixed(key), value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, s.prefixed(key))
	}
	return s.client.Unlink(ensureContext(ctx), prefixed...).Result()
}

// DeletePattern walks the keyspace with SCAN and then unlinks the matches in batches, so Redis
// is never blocked the way KEYS would block it. Deleting only after the walk completes keeps
// the cursor stable on servers whose cursors are offsets into the keyspace.
func (s *RedisStore) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	ctx = ensureContext(ctx)

	keys, err := s.scan(ctx, s.prefixed(pattern))
	if err != nil {
		return 0, err
	}

	var deleted int64
	for start := 0; start < len(keys); start += int(s.scanCount) {
		end := min(start+int(s.scanCount), len(keys))
		n, err := s.client.Unlink(ctx, keys[start:end]...).Result()
		deleted += n
		if err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// scan returns every key matching the already prefixed pattern, without duplicates.
func (s *RedisStore) scan(ctx context.Context, match string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	seen := make(map[string]struct{})
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, s.scanCount).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range batch {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// Stats counts cache entries of the current key version under this store's prefix, so other
// applications sharing the database, locks and rate-limit counters are excluded. Memory usage
// from INFO memory is server wide.
func (s *RedisStore) Stats(ctx context.Context) (StoreStats, error) {
	ctx = ensureContext(ctx)
	keys, err := s.scan(ctx, s.prefixed(KeyVersion+keySeparator+"*"))
	if err != nil {
		return StoreStats{}, err
	}
	stats := StoreStats{Backend: "redis", Keys: int64(len(keys))}

	info, err := s.client.Info(ctx, "memory").Result()
	if err == nil {
		stats.MemoryBytes, stats.MemoryHuman = parseMemoryInfo(info)
	}
	return stats, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ensureContext(ctx)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ensureContext(ctx), s.prefixed(key), token, ttl).Result()
}

func (s *RedisStore) Unlock(ctx context.Context, key, token string) error {
	err := unlockScript.Run(ensureContext(ctx), s.client, []string{s.prefixed(key)}, token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// IncrementWithTTL increments key and arms the window expiry whenever the counter has none.
// It returns the current count and the remaining time-to-live.
func (s *RedisStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	res, err := incrementScript.Run(ensureContext(ctx), s.client, []string{s.prefixed(key)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("redis: unexpected increment reply %v", res)
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}

func (s *RedisStore) prefixed(key string) string {
	normalized := normalizeKey(key)
	if strings.HasPrefix(normalized, s.prefix) {
		return normalized
	}
	return normalizeKey(s.prefix + normalized)
}

// normalizeKey collapses runs of ':' so "a::b" and "a:b" address the same entry.
func normalizeKey(key string) string {
	if key == "" {
		return key
	}
	var builder strings.Builder
	builder.Grow(len(key))
	prevColon := false
	for i := 0; i < len(key); i++ {
		ch := key[i]
		if ch == ':' {
			if prevColon {
				continue
			}
			prevColon = true
		} else {
			prevColon = false
		}
		builder.WriteByte(ch)
	}
	return builder.String()
}

func parseMemoryInfo(info string) (int64, string) {
	var (
		used  int64
		human string
	)
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch name {
		case "used_memory":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				used = n
			}
		case "used_memory_human":
			human = value
		}
	}
	return used, human
}
