package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/randevubu/randevubu-server/internal/cache"
	"github.com/randevubu/randevubu-server/internal/monitoring"
)

const defaultCacheTimeout = 2 * time.Second

// Cache returns a readiness probe for the cache store. An unreachable store degrades the
// service rather than taking it down because reads fall back to the database.
func Cache(store cache.Store, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("cache", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if store == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "cache disabled",
				Duration: time.Since(start),
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultCacheTimeout))
		defer cancel()

		if err := store.Ping(probeCtx); err != nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  fmt.Sprintf("cache: %v", err),
				Duration: time.Since(start),
			}
		}

		details := ""
		if breaker, ok := store.(*cache.BreakerStore); ok {
			details = "breaker " + breaker.State()
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Details:  details,
			Duration: time.Since(start),
		}
	})
}
