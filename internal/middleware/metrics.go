package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/randevubu/randevubu-server/internal/monitoring"
)

// Metrics records request latency for each HTTP request on mon. A nil module records nothing.
func Metrics(mon *monitoring.Module) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		mon.ObserveAPILatency(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
