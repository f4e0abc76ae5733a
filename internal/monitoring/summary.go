package monitoring

import "time"

// Summary surfaces aggregated monitoring data for administrative dashboards.
type Summary struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Auth        AuthSummary        `json:"auth"`
	HTTP        HTTPSummary        `json:"http"`
	Bookings    BookingSummary     `json:"bookings"`
	Maintenance MaintenanceSummary `json:"maintenance"`
}

type AuthSummary struct {
	Success uint64 `json:"success"`
	Failure uint64 `json:"failure"`
	Error   uint64 `json:"error"`
}

type HTTPSummary struct {
	Requests     uint64 `json:"requests"`
	ClientErrors uint64 `json:"client_errors"`
	ServerErrors uint64 `json:"server_errors"`
	RateLimited  uint64 `json:"rate_limited"`
}

type BookingSummary struct {
	Booked    uint64 `json:"booked"`
	SlotTaken uint64 `json:"slot_taken"`
	Errors    uint64 `json:"errors"`
}

type MaintenanceSummary struct {
	Jobs []MaintenanceJobSummary `json:"jobs"`
}

type MaintenanceJobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	ConsecutiveSuccess  uint64        `json:"consecutive_success"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	TotalRuns           uint64        `json:"total_runs"`
}

// Snapshot returns a point-in-time summary of the module's counters. A nil module yields an
// empty summary.
func (m *Module) Snapshot() Summary {
	if m == nil || m.stats == nil {
		return Summary{GeneratedAt: time.Now()}
	}
	return m.stats.summary()
}
