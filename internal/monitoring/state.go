package monitoring

import (
	"sync"
	"sync/atomic"
	"time"
)

type statStore struct {
	authSuccess atomic.Uint64
	authFailure atomic.Uint64
	authError   atomic.Uint64

	requests     atomic.Uint64
	clientErrors atomic.Uint64
	serverErrors atomic.Uint64
	rateLimited  atomic.Uint64

	booked        atomic.Uint64
	slotTaken     atomic.Uint64
	bookingErrors atomic.Uint64

	maintenance sync.Map // string -> *maintenanceStats
}

func newStatStore() *statStore {
	return &statStore{}
}

func (s *statStore) cloneMaintenance() []MaintenanceJobSummary {
	summaries := []MaintenanceJobSummary{}
	s.maintenance.Range(func(key, value any) bool {
		job := key.(string)
		stats := value.(*maintenanceStats)
		summaries = append(summaries, stats.snapshot(job))
		return true
	})
	return summaries
}

func (s *statStore) summary() Summary {
	return Summary{
		GeneratedAt: time.Now(),
		Auth: AuthSummary{
			Success: s.authSuccess.Load(),
			Failure: s.authFailure.Load(),
			Error:   s.authError.Load(),
		},
		HTTP: HTTPSummary{
			Requests:     s.requests.Load(),
			ClientErrors: s.clientErrors.Load(),
			ServerErrors: s.serverErrors.Load(),
			RateLimited:  s.rateLimited.Load(),
		},
		Bookings: BookingSummary{
			Booked:    s.booked.Load(),
			SlotTaken: s.slotTaken.Load(),
			Errors:    s.bookingErrors.Load(),
		},
		Maintenance: MaintenanceSummary{
			Jobs: s.cloneMaintenance(),
		},
	}
}

func (s *statStore) recordAuth(result string) {
	switch result {
	case "success":
		s.authSuccess.Add(1)
	case "failure":
		s.authFailure.Add(1)
	default:
		s.authError.Add(1)
	}
}

func (s *statStore) recordRequest(status int) {
	s.requests.Add(1)
	switch {
	case status >= 500:
		s.serverErrors.Add(1)
	case status >= 400:
		s.clientErrors.Add(1)
	}
}

func (s *statStore) recordBooking(result string) {
	switch result {
	case "booked":
		s.booked.Add(1)
	case "slot_taken":
		s.slotTaken.Add(1)
	default:
		s.bookingErrors.Add(1)
	}
}

func (s *statStore) maintenanceEntry(job string) *maintenanceStats {
	value, ok := s.maintenance.Load(job)
	if ok {
		return value.(*maintenanceStats)
	}
	stats := &maintenanceStats{}
	actual, _ := s.maintenance.LoadOrStore(job, stats)
	return actual.(*maintenanceStats)
}

type maintenanceStats struct {
	lastStatus           atomic.Value // string
	lastError            atomic.Value // string
	lastRun              atomic.Int64 // unix nano
	lastDuration         atomic.Int64 // nanoseconds
	consecutiveFailures  atomic.Uint64
	totalRuns            atomic.Uint64
	lastSuccessfulRun    atomic.Int64
	consecutiveSuccesses atomic.Uint64
}

func (m *maintenanceStats) snapshot(job string) MaintenanceJobSummary {
	status, _ := m.lastStatus.Load().(string)
	errMsg, _ := m.lastError.Load().(string)
	lastRun := time.Unix(0, m.lastRun.Load())
	lastSuccess := time.Unix(0, m.lastSuccessfulRun.Load())

	return MaintenanceJobSummary{
		Job:                 job,
		LastStatus:          status,
		LastRunAt:           lastRun,
		LastDuration:        time.Duration(m.lastDuration.Load()),
		LastError:           errMsg,
		ConsecutiveFailures: m.consecutiveFailures.Load(),
		ConsecutiveSuccess:  m.consecutiveSuccesses.Load(),
		LastSuccessAt:       lastSuccess,
		TotalRuns:           m.totalRuns.Load(),
	}
}

func (m *maintenanceStats) record(result, message string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	now := time.Now()
	m.lastStatus.Store(result)
	m.lastError.Store(message)
	m.lastRun.Store(now.UnixNano())
	m.lastDuration.Store(int64(duration))
	m.totalRuns.Add(1)

	switch result {
	case "success":
		m.consecutiveFailures.Store(0)
		m.consecutiveSuccesses.Add(1)
		m.lastSuccessfulRun.Store(now.UnixNano())
	default:
		m.consecutiveFailures.Add(1)
		m.consecutiveSuccesses.Store(0)
	}
}
