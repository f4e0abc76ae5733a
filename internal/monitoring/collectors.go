package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type collectors struct {
	authAttempts        *prometheus.CounterVec
	apiLatency          *prometheus.HistogramVec
	rateLimited         *prometheus.CounterVec
	bookings            *prometheus.CounterVec
	maintenanceRuns     *prometheus.CounterVec
	maintenanceDuration *prometheus.HistogramVec
	maintenanceLastRun  *prometheus.GaugeVec
}

func newCollectors(namespace string) *collectors {
	buckets := prometheus.DefBuckets

	return &collectors{
		authAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_attempts_total",
				Help:      "Total number of authentication attempts",
			},
			[]string{"result"},
		),
		apiLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_latency_seconds",
				Help:      "API endpoint latency",
				Buckets:   buckets,
			},
			[]string{"method", "path", "status"},
		),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_requests_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"path"},
		),
		bookings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bookings_total",
				Help:      "Booking attempts grouped by result",
			},
			[]string{"result"},
		),
		maintenanceRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "maintenance_runs_total",
				Help:      "Maintenance job executions",
			},
			[]string{"job", "result"},
		),
		maintenanceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "maintenance_duration_seconds",
				Help:      "Maintenance job duration",
				Buckets:   buckets,
			},
			[]string{"job"},
		),
		maintenanceLastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "maintenance_last_success_timestamp",
				Help:      "Timestamp of the last successful maintenance run (seconds since epoch)",
			},
			[]string{"job"},
		),
	}
}

func (c *collectors) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.authAttempts,
		c.apiLatency,
		c.rateLimited,
		c.bookings,
		c.maintenanceRuns,
		c.maintenanceDuration,
		c.maintenanceLastRun,
	}
}

// observeDuration records a duration in seconds on the supplied histogram observer.
func observeDuration(observer prometheus.Observer, d time.Duration) {
	if observer == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	observer.Observe(d.Seconds())
}
