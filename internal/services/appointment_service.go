package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/randevubu/randevubu-server/internal/cache"
	"github.com/randevubu/randevubu-server/internal/models"
	"github.com/randevubu/randevubu-server/internal/monitoring"
	apperrors "github.com/randevubu/randevubu-server/pkg/errors"
)

const (
	statsTTL     = time.Minute
	queueHorizon = 12 * time.Hour
	dateLayout   = "2006-01-02"
)

// BookAppointmentInput captures a booking request.
type BookAppointmentInput struct {
	BusinessID string
	ServiceID  string
	CustomerID string
	StartsAt   time.Time
	Notes      string
}

// ListAppointmentsOptions filters a business's appointments.
type ListAppointmentsOptions struct {
	From    time.Time
	To      time.Time
	Status  string
	Page    int
	PerPage int
}

// AppointmentStats summarises a business day.
type AppointmentStats struct {
	BusinessID   string           `json:"business_id"`
	Date         string           `json:"date"`
	Total        int64            `json:"total"`
	ByStatus     map[string]int64 `json:"by_status"`
	RevenueCents int64            `json:"revenue_cents"`
}

// AppointmentService books and tracks appointments.
type AppointmentService struct {
	db         *gorm.DB
	cache      *cache.Service
	businesses *BusinessService
	offerings  *OfferingService
	monitor    *monitoring.Module
	log        *zap.Logger
	now        func() time.Time
}

// NewAppointmentService constructs an appointment service. A nil cache disables caching.
func NewAppointmentService(db *gorm.DB, cacheSvc *cache.Service, businesses *BusinessService, offerings *OfferingService, mon *monitoring.Module, log *zap.Logger) (*AppointmentService, error) {
	if db == nil {
		return nil, errors.New("appointment service: db is required")
	}
	if businesses == nil || offerings == nil {
		return nil, errors.New("appointment service: business and offering services are required")
	}
	return &AppointmentService{
		db:         db,
		cache:      cacheSvc,
		businesses: businesses,
		offerings:  offerings,
		monitor:    mon,
		log:        loggerOrNop(log).With(zap.String("service", "appointment")),
		now:        time.Now,
	}, nil
}

// Book reserves a slot for a customer. Overlapping active appointments of the same business
// are rejected with ErrSlotTaken.
func (s *AppointmentService) Book(ctx context.Context, input BookAppointmentInput) (*models.Appointment, error) {
	ctx = ensureContext(ctx)

	customerID := strings.TrimSpace(input.CustomerID)
	if customerID == "" {
		return nil, apperrors.NewBadRequest("customer id is required")
	}
	if input.StartsAt.IsZero() {
		return nil, apperrors.NewBadRequest("start time is required")
	}
	if input.StartsAt.Before(s.now()) {
		return nil, apperrors.NewBadRequest("cannot book an appointment in the past")
	}

	service, err := s.offerings.Get(ctx, input.BusinessID, input.ServiceID)
	if err != nil {
		return nil, err
	}
	if !service.IsActive {
		return nil, apperrors.NewBadRequest("service is not bookable")
	}

	appointment := &models.Appointment{
		BusinessID: service.BusinessID,
		ServiceID:  service.ID,
		CustomerID: customerID,
		StartsAt:   input.StartsAt.UTC(),
		EndsAt:     input.StartsAt.UTC().Add(time.Duration(service.DurationMinutes) * time.Minute),
		Status:     models.AppointmentPending,
		Notes:      strings.TrimSpace(input.Notes),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var overlapping int64
		err := tx.Model(&models.Appointment{}).
			Where("business_id = ? AND status IN ?", appointment.BusinessID, activeStatuses()).
			Where("starts_at < ? AND ends_at > ?", appointment.EndsAt, appointment.StartsAt).
			Count(&overlapping).Error
		if err != nil {
			return err
		}
		if overlapping > 0 {
			return ErrSlotTaken
		}
		return tx.Create(appointment).Error
	})
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			s.monitor.RecordBooking("slot_taken")
			return nil, ErrSlotTaken
		}
		s.monitor.RecordBooking("error")
		return nil, fmt.Errorf("appointment service: book: %w", err)
	}

	s.monitor.RecordBooking("booked")
	s.invalidate(ctx, appointment)
	return appointment, nil
}

// Get loads an appointment through the cache.
func (s *AppointmentService) Get(ctx context.Context, id string) (*models.Appointment, error) {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrAppointmentNotFound
	}

	key := s.key(prefixAppointment, id, cache.KeyOptions{Shared: true})
	appointment, err := readThrough(ctx, s.cache, s.log, key, func(ctx context.Context) (models.Appointment, error) {
		return s.load(ctx, id)
	}, cache.WithTTL(cache.TTLDynamic))
	if err != nil {
		return nil, err
	}
	return &appointment, nil
}

// ListForBusiness pages through a business's appointments.
func (s *AppointmentService) ListForBusiness(ctx context.Context, businessID string, opts ListAppointmentsOptions) (Page[models.Appointment], error) {
	ctx = ensureContext(ctx)
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return Page[models.Appointment]{}, ErrBusinessNotFound
	}
	page, perPage := normalisePage(opts.Page, opts.PerPage)
	status := strings.ToLower(strings.TrimSpace(opts.Status))

	key := s.key(prefixAppointments, "list", cache.KeyOptions{
		BusinessID: businessID,
		QueryHash: cache.HashQuery(map[string]any{
			"from":     formatBound(opts.From),
			"to":       formatBound(opts.To),
			"status":   status,
			"page":     page,
			"per_page": perPage,
		}),
	})
	return readThrough(ctx, s.cache, s.log, key, func(ctx context.Context) (Page[models.Appointment], error) {
		db := s.db.WithContext(ctx).Model(&models.Appointment{}).Where("business_id = ?", businessID)
		if !opts.From.IsZero() {
			db = db.Where("starts_at >= ?", opts.From.UTC())
		}
		if !opts.To.IsZero() {
			db = db.Where("starts_at < ?", opts.To.UTC())
		}
		if status != "" {
			db = db.Where("status = ?", status)
		}

		result := Page[models.Appointment]{Page: page, PerPage: perPage}
		if err := db.Count(&result.Total).Error; err != nil {
			return result, fmt.Errorf("appointment service: count: %w", err)
		}
		if err := db.Order("starts_at ASC").Offset((page - 1) * perPage).Limit(perPage).Find(&result.Items).Error; err != nil {
			return result, fmt.Errorf("appointment service: list: %w", err)
		}
		return result, nil
	}, cache.WithTTL(cache.TTLDynamic))
}

// ListForCustomer returns a customer's upcoming appointments across businesses.
func (s *AppointmentService) ListForCustomer(ctx context.Context, customerID string) ([]models.Appointment, error) {
	ctx = ensureContext(ctx)
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, apperrors.NewBadRequest("customer id is required")
	}

	key := s.key(prefixAppointments, "upcoming", cache.KeyOptions{UserID: customerID})
	return readThrough(ctx, s.cache, s.log, key, func(ctx context.Context) ([]models.Appointment, error) {
		var appointments []models.Appointment
		err := s.db.WithContext(ctx).
			Where("customer_id = ? AND ends_at > ? AND status IN ?", customerID, s.now().UTC(), activeStatuses()).
			Order("starts_at ASC").
			Find(&appointments).Error
		if err != nil {
			return nil, fmt.Errorf("appointment service: list for customer: %w", err)
		}
		return appointments, nil
	}, cache.WithTTL(cache.TTLDynamic))
}

// UpdateStatus moves an appointment to status.
func (s *AppointmentService) UpdateStatus(ctx context.Context, id, status string) (*models.Appointment, error) {
	ctx = ensureContext(ctx)
	status = strings.ToLower(strings.TrimSpace(status))
	if !validStatus(status) {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown appointment status %q", status))
	}

	appointment, err := s.load(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if appointment.Status == models.AppointmentCancelled && status != models.AppointmentCancelled {
		return nil, apperrors.ErrConflict.WithMessage("cancelled appointments cannot be reopened")
	}

	if appointment.Status != status {
		if err := s.db.WithContext(ctx).Model(&appointment).Update("status", status).Error; err != nil {
			return nil, fmt.Errorf("appointment service: update status: %w", err)
		}
		appointment.Status = status
	}

	s.invalidate(ctx, &appointment)
	return &appointment, nil
}

// Cancel is UpdateStatus with the cancelled status.
func (s *AppointmentService) Cancel(ctx context.Context, id string) (*models.Appointment, error) {
	return s.UpdateStatus(ctx, id, models.AppointmentCancelled)
}

// Stats summarises one day of a business in the business's timezone. The summary tolerates a
// little staleness, so an expired copy is served while a fresh one is computed.
func (s *AppointmentService) Stats(ctx context.Context, businessID string, day time.Time) (*AppointmentStats, error) {
	ctx = ensureContext(ctx)

	business, err := s.businesses.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}
	start, end := dayBounds(day, business.Timezone)
	date := start.Format(dateLayout)

	key := s.key(prefixStats, "daily."+date, cache.KeyOptions{BusinessID: business.ID})
	stats, err := readThrough(ctx, s.cache, s.log, key, func(ctx context.Context) (AppointmentStats, error) {
		stats := AppointmentStats{BusinessID: business.ID, Date: date, ByStatus: map[string]int64{}}

		var rows []struct {
			Status string
			Count  int64
		}
		err := s.db.WithContext(ctx).Model(&models.Appointment{}).
			Select("status, COUNT(*) AS count").
			Where("business_id = ? AND starts_at >= ? AND starts_at < ?", business.ID, start.UTC(), end.UTC()).
			Group("status").
			Scan(&rows).Error
		if err != nil {
			return stats, fmt.Errorf("appointment service: stats: %w", err)
		}
		for _, row := range rows {
			stats.ByStatus[row.Status] = row.Count
			stats.Total += row.Count
		}

		err = s.db.WithContext(ctx).Table("appointments").
			Select("COALESCE(SUM(services.price_cents), 0)").
			Joins("JOIN services ON services.id = appointments.service_id").
			Where("appointments.business_id = ? AND appointments.status = ?", business.ID, models.AppointmentCompleted).
			Where("appointments.starts_at >= ? AND appointments.starts_at < ?", start.UTC(), end.UTC()).
			Scan(&stats.RevenueCents).Error
		if err != nil {
			return stats, fmt.Errorf("appointment service: revenue: %w", err)
		}
		return stats, nil
	}, cache.WithTTL(statsTTL), cache.WithStaleWhileRevalidate())
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Queue lists the business's active appointments starting within the next hours, for the
// front-desk monitor.
func (s *AppointmentService) Queue(ctx context.Context, businessID string) ([]models.Appointment, error) {
	ctx = ensureContext(ctx)
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, ErrBusinessNotFound
	}

	key := s.key(prefixMonitor, "queue", cache.KeyOptions{BusinessID: businessID})
	return readThrough(ctx, s.cache, s.log, key, func(ctx context.Context) ([]models.Appointment, error) {
		now := s.now().UTC()
		var appointments []models.Appointment
		err := s.db.WithContext(ctx).
			Preload("Service").
			Where("business_id = ? AND status IN ?", businessID, activeStatuses()).
			Where("ends_at > ? AND starts_at < ?", now, now.Add(queueHorizon)).
			Order("starts_at ASC").
			Find(&appointments).Error
		if err != nil {
			return nil, fmt.Errorf("appointment service: queue: %w", err)
		}
		return appointments, nil
	}, cache.WithTTL(cache.TTLRealtime))
}

func (s *AppointmentService) load(ctx context.Context, id string) (models.Appointment, error) {
	var appointment models.Appointment
	err := s.db.WithContext(ctx).Take(&appointment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Appointment{}, ErrAppointmentNotFound
	}
	if err != nil {
		return models.Appointment{}, fmt.Errorf("appointment service: load: %w", err)
	}
	return appointment, nil
}

// invalidate clears the appointment, its business listings and the customer's own views.
func (s *AppointmentService) invalidate(ctx context.Context, appointment *models.Appointment) {
	if s.cache == nil {
		return
	}
	logInvalidation(s.log, cache.EntityAppointment, appointment.ID,
		s.cache.InvalidateAppointment(ctx, appointment.ID, appointment.BusinessID))
	logInvalidation(s.log, cache.EntityUser, appointment.CustomerID,
		s.cache.InvalidateUser(ctx, appointment.CustomerID))
}

func (s *AppointmentService) key(prefix, identifier string, opts cache.KeyOptions) string {
	return cacheKey(s.cache, prefix, identifier, opts)
}

func activeStatuses() []string {
	return []string{models.AppointmentPending, models.AppointmentConfirmed}
}

func validStatus(status string) bool {
	switch status {
	case models.AppointmentPending, models.AppointmentConfirmed, models.AppointmentCancelled,
		models.AppointmentCompleted, models.AppointmentNoShow:
		return true
	default:
		return false
	}
}

func dayBounds(day time.Time, timezone string) (time.Time, time.Time) {
	loc, err := time.LoadLocation(defaultString(timezone, "UTC"))
	if err != nil {
		loc = time.UTC
	}
	local := day.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
