package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/randevubu/randevubu-server/internal/monitoring"
	"github.com/randevubu/randevubu-server/pkg/errors"
	"github.com/randevubu/randevubu-server/pkg/logger"
	"github.com/randevubu/randevubu-server/pkg/response"
)

var errTooManyRequests = errors.New("RATE_LIMITED", "Too many requests, slow down", http.StatusTooManyRequests)

// RateLimit limits requests per (clientIP,route) within a fixed window. Counter failures
// let the request through. Rejections are counted on mon when it is set.
func RateLimit(store RateStore, maxRequests int, window time.Duration, mon *monitoring.Module) gin.HandlerFunc {
	if store == nil {
		store = NewMemoryRateStore()
	}
	return func(c *gin.Context) {
		if maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		count, resetIn, err := store.Increment(c.Request.Context(), c.ClientIP()+"|"+path, window)
		if err != nil {
			logger.WithModule("http").Warn("rate limit counter unavailable", zap.String("path", path), zap.Error(err))
			c.Next()
			return
		}
		if count == 0 {
			c.Next()
			return
		}

		remaining := maxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(resetIn.Seconds())))

		if count > maxRequests {
			mon.RecordRateLimited(path)
			c.Header("Retry-After", strconv.Itoa(int(resetIn.Seconds())+1))
			response.Error(c, errTooManyRequests)
			c.Abort()
			return
		}

		c.Next()
	}
}
