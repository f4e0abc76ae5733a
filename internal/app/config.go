package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RANDEVUBU_CACHE_BACKEND.
const EnvPrefix = "RANDEVUBU"

// Config represents the runtime configuration for the booking API.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	LogLevel        string          `mapstructure:"log_level"`
	LogFormat       string          `mapstructure:"log_format"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig controls the per-client request limiter.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver          string            `mapstructure:"driver"`
	Path            string            `mapstructure:"path"`
	DSN             string            `mapstructure:"dsn"`
	Host            string            `mapstructure:"host"`
	Port            int               `mapstructure:"port"`
	Name            string            `mapstructure:"name"`
	User            string            `mapstructure:"user"`
	Password        string            `mapstructure:"password"`
	Options         map[string]string `mapstructure:"options"`
	MaxOpenConns    int               `mapstructure:"max_open_conns"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration     `mapstructure:"conn_max_lifetime"`
	Debug           bool              `mapstructure:"debug"`
}

// CacheConfig selects and tunes the cache backend.
type CacheConfig struct {
	// Backend is one of redis, database or memory.
	Backend       string           `mapstructure:"backend"`
	Codec         string           `mapstructure:"codec"`
	DefaultTTL    time.Duration    `mapstructure:"default_ttl"`
	JitterPercent float64          `mapstructure:"jitter_percent"`
	Redis         RedisCacheConfig `mapstructure:"redis"`
	Stampede      StampedeConfig   `mapstructure:"stampede"`
	Breaker       BreakerConfig    `mapstructure:"breaker"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Address   string        `mapstructure:"address"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TLS       bool          `mapstructure:"tls"`
	Timeout   time.Duration `mapstructure:"timeout"`
	PoolSize  int           `mapstructure:"pool_size"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	ScanCount int64         `mapstructure:"scan_count"`
}

// StampedeConfig tunes recompute coordination.
type StampedeConfig struct {
	DistributedLock bool          `mapstructure:"distributed_lock"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	LockWait        time.Duration `mapstructure:"lock_wait"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	StaleFactor     int           `mapstructure:"stale_factor"`
	MinStaleTTL     time.Duration `mapstructure:"min_stale_ttl"`
	RefreshTimeout  time.Duration `mapstructure:"refresh_timeout"`
}

// BreakerConfig tunes the circuit breaker in front of remote cache backends.
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	MinRequests      uint32        `mapstructure:"min_requests"`
}

// AuthConfig configures access tokens.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// MaintenanceConfig schedules background cache housekeeping. Schedules use cron syntax.
type MaintenanceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	PurgeSchedule  string `mapstructure:"purge_schedule"`
	WarmSchedule   string `mapstructure:"warm_schedule"`
	StatsSchedule  string `mapstructure:"stats_schedule"`
	WarmBusinesses int    `mapstructure:"warm_businesses"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Cache.BackendName() {
	case "redis", "database", "memory":
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	switch strings.ToLower(strings.TrimSpace(c.Cache.Codec)) {
	case "", "json", "cbor":
	default:
		return fmt.Errorf("config: unknown cache codec %q", c.Cache.Codec)
	}
	if c.Cache.DefaultTTL < 0 {
		return errors.New("config: cache.default_ttl cannot be negative")
	}
	if c.Cache.JitterPercent > 100 {
		return errors.New("config: cache.jitter_percent cannot exceed 100")
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.Requests <= 0 || c.Server.RateLimit.Window <= 0) {
		return errors.New("config: rate_limit requires positive requests and window")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.requests", 120)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/randevubu.sqlite")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("cache.backend", "redis")
	v.SetDefault("cache.codec", "json")
	v.SetDefault("cache.default_ttl", "5m")
	v.SetDefault("cache.jitter_percent", 10)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")
	v.SetDefault("cache.redis.key_prefix", "randevubu:")
	v.SetDefault("cache.redis.scan_count", 500)
	v.SetDefault("cache.stampede.distributed_lock", true)
	v.SetDefault("cache.stampede.lock_ttl", "10s")
	v.SetDefault("cache.stampede.lock_wait", "2s")
	v.SetDefault("cache.stampede.poll_interval", "50ms")
	v.SetDefault("cache.stampede.stale_factor", 5)
	v.SetDefault("cache.stampede.min_stale_ttl", "5m")
	v.SetDefault("cache.stampede.refresh_timeout", "30s")
	v.SetDefault("cache.breaker.enabled", true)
	v.SetDefault("cache.breaker.max_requests", 5)
	v.SetDefault("cache.breaker.interval", "30s")
	v.SetDefault("cache.breaker.timeout", "15s")
	v.SetDefault("cache.breaker.failure_threshold", 0.6)
	v.SetDefault("cache.breaker.min_requests", 10)

	v.SetDefault("auth.jwt.issuer", "randevubu")
	v.SetDefault("auth.jwt.access_token_ttl", "1h")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.purge_schedule", "@every 10m")
	v.SetDefault("maintenance.warm_schedule", "@every 30m")
	v.SetDefault("maintenance.stats_schedule", "@every 5m")
	v.SetDefault("maintenance.warm_businesses", 50)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
