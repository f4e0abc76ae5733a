package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/randevubu/randevubu-server/internal/cache"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Cache key prefixes. Invalidation patterns in the cache package depend on these names.
const (
	prefixBusiness     = "business"
	prefixBusinesses   = "businesses"
	prefixService      = "service"
	prefixServices     = "services"
	prefixAppointment  = "appointment"
	prefixAppointments = "appointments"
	prefixStats        = "stats"
	prefixMonitor      = "monitor"
	prefixProfile      = "profile"
)

// Page is one page of a listing together with the unpaged total.
type Page[T any] struct {
	Items   []T   `json:"items"`
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func normalisePage(page, perPage int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPageSize
	}
	if perPage > maxPageSize {
		perPage = maxPageSize
	}
	return page, perPage
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}

// cacheKey builds a cache key, or returns "" when a component had to be replaced by the
// fallback token: such keys can collide across inputs, so those reads skip the cache.
func cacheKey(c *cache.Service, prefix, identifier string, opts cache.KeyOptions) string {
	if c == nil {
		return ""
	}
	key, ok := c.BuildKey(prefix, identifier, opts)
	if !ok {
		return ""
	}
	return key
}

// readThrough serves load through the cache and falls back to load directly when the cache
// store fails. Errors from load itself are returned unchanged. A nil cache or an empty key
// disables caching.
func readThrough[T any](ctx context.Context, c *cache.Service, log *zap.Logger, key string, load func(context.Context) (T, error), opts ...cache.Option) (T, error) {
	if c == nil || key == "" {
		return load(ctx)
	}
	value, err := cache.Get(ctx, c, key, load, opts...)
	if err != nil && cache.IsStoreError(err) {
		log.Warn("cache unavailable, reading from database", zap.String("key", key), zap.Error(err))
		return load(ctx)
	}
	return value, err
}

// logInvalidation records failed invalidations. Invalidation never fails the write path.
func logInvalidation(log *zap.Logger, entity, id string, res cache.Result) {
	if res.OK() {
		log.Debug("cache invalidated", zap.String("entity", entity), zap.String("id", id), zap.Int64("deleted", res.Deleted))
		return
	}
	log.Warn("cache invalidation failed",
		zap.String("entity", entity),
		zap.String("id", id),
		zap.Int64("deleted", res.Deleted),
		zap.Error(res.Err),
	)
}

func loggerOrNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
