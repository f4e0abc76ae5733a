package monitoring

import (
	"strconv"
	"strings"
	"time"
)

// RecordAuthAttempt increments the auth attempt counter. A nil module records nothing.
func (m *Module) RecordAuthAttempt(result string) {
	if m == nil {
		return
	}
	label := normalizeLabel(result)
	m.metrics.authAttempts.WithLabelValues(label).Inc()
	m.stats.recordAuth(label)
}

// ObserveAPILatency captures the HTTP request latency for the supplied route. A nil module
// records nothing.
func (m *Module) ObserveAPILatency(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "UNKNOWN"
	}
	path = sanitizePath(path)
	if path == "" {
		path = "unknown"
	}
	m.metrics.apiLatency.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
	m.stats.recordRequest(status)
}

// RecordRateLimited counts a request rejected by the rate limiter.
func (m *Module) RecordRateLimited(path string) {
	if m == nil {
		return
	}
	path = sanitizePath(path)
	if path == "" {
		path = "unknown"
	}
	m.metrics.rateLimited.WithLabelValues(path).Inc()
	m.stats.rateLimited.Add(1)
}

// RecordBooking counts a booking attempt by result ("booked", "slot_taken" or "error").
// A nil module records nothing.
func (m *Module) RecordBooking(result string) {
	if m == nil {
		return
	}
	label := normalizeLabel(result)
	m.metrics.bookings.WithLabelValues(label).Inc()
	m.stats.recordBooking(label)
}

// RecordMaintenanceRun records the completion of a maintenance job.
func (m *Module) RecordMaintenanceRun(job, result, message string, duration time.Duration) {
	if m == nil {
		return
	}
	jobID := normalizeLabel(job)
	result = normalizeLabel(result)
	m.metrics.maintenanceRuns.WithLabelValues(jobID, result).Inc()
	observeDuration(m.metrics.maintenanceDuration.WithLabelValues(jobID), duration)
	if result == "success" {
		m.metrics.maintenanceLastRun.WithLabelValues(jobID).Set(float64(time.Now().Unix()))
	}
	stats := m.stats.maintenanceEntry(jobID)
	stats.record(result, strings.TrimSpace(message), duration)
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}

func sanitizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "/" {
		return "root"
	}
	path = strings.Trim(path, "/")
	return strings.ReplaceAll(path, " ", "_")
}
