package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/randevubu/randevubu-server/internal/auth"
	"github.com/randevubu/randevubu-server/internal/cache"
	"github.com/randevubu/randevubu-server/internal/database/testutil"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "console", cfg.Server.LogFormat)
	require.Equal(t, 20*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, 30, cfg.Server.RateLimit.Requests)
	require.Equal(t, 10*time.Second, cfg.Server.RateLimit.Window)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Host)
	require.Equal(t, map[string]string{"sslmode": "require"}, cfg.Database.Options)
	require.Equal(t, 40, cfg.Database.MaxOpenConns)
	require.Equal(t, 5, cfg.Database.MaxIdleConns)

	require.Equal(t, "database", cfg.Cache.BackendName())
	require.Equal(t, 2*time.Minute, cfg.Cache.DefaultTTL)
	require.InDelta(t, 20, cfg.Cache.JitterPercent, 0.001)
	require.Equal(t, "redis.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, "staging:", cfg.Cache.Redis.KeyPrefix)
	require.Equal(t, 5*time.Second, cfg.Cache.Redis.Timeout)
	require.False(t, cfg.Cache.Stampede.DistributedLock)
	require.Equal(t, 500*time.Millisecond, cfg.Cache.Stampede.LockWait)
	require.Equal(t, 3, cfg.Cache.Stampede.StaleFactor)
	require.False(t, cfg.Cache.Breaker.Enabled)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "randevubu", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.Equal(t, "@hourly", cfg.Maintenance.PurgeSchedule)
	require.Equal(t, "@every 30m", cfg.Maintenance.WarmSchedule)
	require.Equal(t, 10, cfg.Maintenance.WarmBusinesses)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "redis", cfg.Cache.BackendName())
	require.Equal(t, 5*time.Minute, cfg.Cache.DefaultTTL)
	require.True(t, cfg.Cache.Stampede.DistributedLock)
	require.True(t, cfg.Cache.Breaker.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("RANDEVUBU_CACHE_BACKEND", "memory")
	t.Setenv("RANDEVUBU_SERVER_PORT", "7070")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.Cache.BackendName())
	require.Equal(t, 7070, cfg.Server.Port)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Cache: CacheConfig{Backend: "memcached"}}
	require.ErrorContains(t, cfg.Validate(), "unknown cache backend")

	cfg = Config{Cache: CacheConfig{Codec: "gob"}}
	require.ErrorContains(t, cfg.Validate(), "unknown cache codec")

	cfg = Config{Server: ServerConfig{RateLimit: RateLimitConfig{Enabled: true}}}
	require.ErrorContains(t, cfg.Validate(), "rate_limit")

	require.NoError(t, (&Config{}).Validate())
}

func TestCacheServiceOptions(t *testing.T) {
	cfg := CacheConfig{
		Codec:         "CBOR",
		DefaultTTL:    time.Minute,
		JitterPercent: 15,
		Stampede: StampedeConfig{
			LockTTL:     3 * time.Second,
			StaleFactor: 2,
		},
	}

	opts := cfg.ServiceOptions(zap.NewNop(), nil)
	require.Equal(t, "cbor", opts.Codec.Name())
	require.Equal(t, time.Minute, opts.DefaultTTL)
	require.InDelta(t, 15, opts.JitterPercent, 0.001)
	require.Equal(t, 3*time.Second, opts.Guard.LockTTL)
	require.Equal(t, 2, opts.Guard.StaleFactor)
	require.True(t, opts.Guard.DisableDistributedLock)
}

func TestOpenCacheStoreSelectsBackend(t *testing.T) {
	ctx := context.Background()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	store := CacheConfig{Backend: "memory"}.OpenCacheStore(ctx, db, nil)
	_, ok := store.(*cache.MemoryStore)
	require.True(t, ok)
	require.NoError(t, store.Close())

	store = CacheConfig{Backend: "database"}.OpenCacheStore(ctx, db, nil)
	_, ok = store.(*cache.DatabaseStore)
	require.True(t, ok)

	store = CacheConfig{Backend: "database", Breaker: BreakerConfig{Enabled: true}}.OpenCacheStore(ctx, db, nil)
	breaker, ok := store.(*cache.BreakerStore)
	require.True(t, ok)
	require.Equal(t, "closed", breaker.State())
}

func TestOpenCacheStoreFallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	cfg := CacheConfig{Redis: RedisCacheConfig{Address: "127.0.0.1:1", Timeout: 200 * time.Millisecond}}

	_, ok := cfg.OpenCacheStore(ctx, db, nil).(*cache.DatabaseStore)
	require.True(t, ok)

	_, ok = cfg.OpenCacheStore(ctx, nil, nil).(*cache.MemoryStore)
	require.True(t, ok)
}

func TestTokenConfigDefaults(t *testing.T) {
	var cfg AuthConfig
	require.Equal(t, auth.DefaultAccessTokenTTL, cfg.TokenConfig().TTL)

	cfg.JWT = JWTSettings{Secret: "s", Issuer: "i", TTL: time.Minute}
	require.Equal(t, auth.TokenConfig{Secret: "s", Issuer: "i", TTL: time.Minute}, cfg.TokenConfig())
}

func TestDatabaseConnectionConfig(t *testing.T) {
	cfg := DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, Name: "app", MaxIdleConns: 2}
	conn := cfg.ConnectionConfig()
	require.Equal(t, "mysql", conn.Driver)
	require.Equal(t, "db", conn.Host)
	require.Equal(t, 3306, conn.Port)
	require.Equal(t, 2, conn.MaxIdleConns)
}
