package cache

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records cache activity. A Metrics value is created once per process and injected
// into the Service; with a nil registerer the collectors still work but are not exported.
type Metrics struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	errors        *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	invalidations *prometheus.CounterVec
	keysDeleted   *prometheus.CounterVec

	hitTotal   atomic.Int64
	missTotal  atomic.Int64
	errorTotal atomic.Int64
}

// MetricsSnapshot holds process-lifetime counters used by Statistics.
type MetricsSnapshot struct {
	Hits   int64
	Misses int64
	Errors int64
}

// NewMetrics builds the cache collectors under namespace and registers them with reg.
// Collectors already present on reg are reused.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if namespace == "" {
		namespace = "randevubu"
	}
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by key prefix",
		}, []string{"prefix"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses by key prefix",
		}, []string{"prefix"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Cache store errors by key prefix and operation",
		}, []string{"prefix", "operation"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operation_duration_seconds",
			Help:      "Cache operation latency",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Entity invalidations by entity type",
		}, []string{"entity"}),
		keysDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "keys_deleted_total",
			Help:      "Keys removed by invalidation, by entity type",
		}, []string{"entity"}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	if m.hits, err = registerCounterVec(reg, m.hits); err != nil {
		return nil, err
	}
	if m.misses, err = registerCounterVec(reg, m.misses); err != nil {
		return nil, err
	}
	if m.errors, err = registerCounterVec(reg, m.errors); err != nil {
		return nil, err
	}
	if m.invalidations, err = registerCounterVec(reg, m.invalidations); err != nil {
		return nil, err
	}
	if m.keysDeleted, err = registerCounterVec(reg, m.keysDeleted); err != nil {
		return nil, err
	}
	if err := reg.Register(m.duration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		m.duration = already.ExistingCollector.(*prometheus.HistogramVec)
	}
	return m, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, err
	}
	return vec, nil
}

// Collectors lists every collector, for callers managing their own registry.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.hits, m.misses, m.errors, m.duration, m.invalidations, m.keysDeleted}
}

func (m *Metrics) hit(prefix string) {
	if m == nil {
		return
	}
	m.hitTotal.Add(1)
	m.hits.WithLabelValues(normalizeLabel(prefix)).Inc()
}

func (m *Metrics) miss(prefix string) {
	if m == nil {
		return
	}
	m.missTotal.Add(1)
	m.misses.WithLabelValues(normalizeLabel(prefix)).Inc()
}

func (m *Metrics) failure(prefix, operation string) {
	if m == nil {
		return
	}
	m.errorTotal.Add(1)
	m.errors.WithLabelValues(normalizeLabel(prefix), normalizeLabel(operation)).Inc()
}

func (m *Metrics) observe(operation string, started time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(time.Since(started).Seconds())
}

func (m *Metrics) invalidation(entity string, deleted int64) {
	if m == nil {
		return
	}
	label := normalizeLabel(entity)
	m.invalidations.WithLabelValues(label).Inc()
	if deleted > 0 {
		m.keysDeleted.WithLabelValues(label).Add(float64(deleted))
	}
}

// Snapshot returns lifetime hit, miss and error totals.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Hits:   m.hitTotal.Load(),
		Misses: m.missTotal.Load(),
		Errors: m.errorTotal.Load(),
	}
}

func normalizeLabel(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	if len(value) > 48 {
		value = value[:48]
	}
	return value
}
