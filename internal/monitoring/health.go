package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ProbeStatus encodes the outcome of a health probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDown     ProbeStatus = "down"
	StatusDegraded ProbeStatus = "degraded"
)

// DefaultCheckTimeout bounds a probe that does not set its own deadline.
const DefaultCheckTimeout = 5 * time.Second

// ProbeResult captures a single dependency check outcome.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport aggregates probe results. Success is false only when a probe is down; a
// degraded dependency (for example the cache, which reads fall back from) keeps serving.
type HealthReport struct {
	Success bool          `json:"success"`
	Status  ProbeStatus   `json:"status"`
	Checks  []ProbeResult `json:"checks"`
}

// Check encapsulates a single dependency probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

// NewCheck constructs a health check with the provided name and function.
func NewCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	if fn == nil {
		fn = func(context.Context) ProbeResult {
			return ProbeResult{
				Component: name,
				Status:    StatusDown,
				Details:   "probe not implemented",
			}
		}
	}
	return Check{Name: name, Run: fn}
}

// HealthManager coordinates liveness and readiness probes. Checks may be registered while
// probes are being served.
type HealthManager struct {
	mu              sync.RWMutex
	livenessChecks  []Check
	readinessChecks []Check
	timeout         time.Duration
}

// NewHealthManager constructs an empty health manager.
func NewHealthManager() *HealthManager {
	return &HealthManager{timeout: DefaultCheckTimeout}
}

// RegisterLiveness appends a liveness probe.
func (m *HealthManager) RegisterLiveness(check Check) {
	if check.Name == "" {
		return
	}
	m.mu.Lock()
	m.livenessChecks = append(m.livenessChecks, check)
	m.mu.Unlock()
}

// RegisterReadiness appends a readiness probe.
func (m *HealthManager) RegisterReadiness(check Check) {
	if check.Name == "" {
		return
	}
	m.mu.Lock()
	m.readinessChecks = append(m.readinessChecks, check)
	m.mu.Unlock()
}

// EvaluateLiveness executes all configured liveness checks.
func (m *HealthManager) EvaluateLiveness(ctx context.Context) HealthReport {
	m.mu.RLock()
	checks := append([]Check(nil), m.livenessChecks...)
	m.mu.RUnlock()
	return m.evaluate(ctx, checks)
}

// EvaluateReadiness executes all configured readiness checks.
func (m *HealthManager) EvaluateReadiness(ctx context.Context) HealthReport {
	m.mu.RLock()
	checks := append([]Check(nil), m.readinessChecks...)
	m.mu.RUnlock()
	return m.evaluate(ctx, checks)
}

// evaluate runs the checks concurrently; results keep registration order.
func (m *HealthManager) evaluate(ctx context.Context, checks []Check) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]ProbeResult, len(checks))

	var group errgroup.Group
	for i, check := range checks {
		group.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			results[i] = runCheck(checkCtx, check)
			return nil
		})
	}
	_ = group.Wait()

	return aggregate(results)
}

func aggregate(results []ProbeResult) HealthReport {
	report := HealthReport{
		Success: true,
		Status:  StatusUp,
		Checks:  results,
	}
	if report.Checks == nil {
		report.Checks = []ProbeResult{}
	}

	for _, result := range results {
		switch result.Status {
		case StatusDown:
			report.Success = false
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status != StatusDown {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

func runCheck(ctx context.Context, check Check) (result ProbeResult) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			result = ProbeResult{
				Status:   StatusDown,
				Details:  fmt.Sprintf("panic: %v", rec),
				Duration: time.Since(start),
			}
		}
		result.Component = check.Name
	}()

	result = check.Run(ctx)
	if result.Status == "" {
		result.Status = StatusDown
	}
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}
	return result
}

// MergeReports combines liveness and readiness results to a single payload.
func MergeReports(live, ready HealthReport) HealthReport {
	checks := append([]ProbeResult(nil), live.Checks...)
	checks = append(checks, ready.Checks...)
	return aggregate(checks)
}

// ResultFromError converts an error into a ProbeResult. Timeouts degrade rather than fail.
func ResultFromError(component string, err error, duration time.Duration) ProbeResult {
	if duration < 0 {
		duration = 0
	}
	if err == nil {
		return ProbeResult{Component: component, Status: StatusUp, Duration: duration}
	}

	status := StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		status = StatusDegraded
	}

	return ProbeResult{
		Component: component,
		Status:    status,
		Details:   err.Error(),
		Duration:  duration,
	}
}
