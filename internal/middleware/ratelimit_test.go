package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/randevubu/randevubu-server/internal/cache"
	"github.com/randevubu/randevubu-server/internal/monitoring"
)

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mod, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)

	r := gin.New()
	r.Use(Metrics(mod))
	r.Use(RateLimit(NewMemoryRateStore(), 2, 100*time.Millisecond, mod))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, w.Header().Get("Retry-After"))

	summary := mod.Snapshot()
	require.Equal(t, uint64(3), summary.HTTP.Requests)
	require.Equal(t, uint64(1), summary.HTTP.RateLimited)

	time.Sleep(150 * time.Millisecond)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitSharesCacheStoreCounters(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := cache.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	rates := NewRateStore(store)

	newRouter := func() *gin.Engine {
		r := gin.New()
		r.Use(RateLimit(rates, 1, time.Minute, nil))
		r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	first, second := newRouter(), newRouter()

	w := httptest.NewRecorder()
	first.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	second.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	raw, ok, err := store.Get(context.Background(), "ratelimit:192.0.2.1|/ping")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, raw)
}

type failingRateStore struct{}

func (failingRateStore) Increment(context.Context, string, time.Duration) (int, time.Duration, error) {
	return 0, 0, errors.New("counter offline")
}

func TestRateLimitFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(failingRateStore{}, 1, time.Minute, nil))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}
