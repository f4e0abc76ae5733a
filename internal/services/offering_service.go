package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/randevubu/randevubu-server/internal/cache"
	"github.com/randevubu/randevubu-server/internal/models"
	apperrors "github.com/randevubu/randevubu-server/pkg/errors"
)

// CreateServiceInput captures the fields of a new bookable service.
type CreateServiceInput struct {
	Name            string
	Description     string
	DurationMinutes int
	PriceCents      int64
	Currency        string
}

// UpdateServiceInput describes mutable service fields. A nil pointer indicates no change.
type UpdateServiceInput struct {
	Name            *string
	Description     *string
	DurationMinutes *int
	PriceCents      *int64
	IsActive        *bool
}

// OfferingService manages the services a business offers.
type OfferingService struct {
	db         *gorm.DB
	cache      *cache.Service
	businesses *BusinessService
	log        *zap.Logger
}

// NewOfferingService constructs an offering service. A nil cache disables caching.
func NewOfferingService(db *gorm.DB, cacheSvc *cache.Service, businesses *BusinessService, log *zap.Logger) (*OfferingService, error) {
	if db == nil {
		return nil, errors.New("offering service: db is required")
	}
	if businesses == nil {
		return nil, errors.New("offering service: business service is required")
	}
	return &OfferingService{
		db:         db,
		cache:      cacheSvc,
		businesses: businesses,
		log:        loggerOrNop(log).With(zap.String("service", "offering")),
	}, nil
}

// Create adds a service to a business.
func (s *OfferingService) Create(ctx context.Context, businessID string, input CreateServiceInput) (*models.Service, error) {
	ctx = ensureContext(ctx)

	business, err := s.businesses.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("service name is required")
	}
	if input.DurationMinutes <= 0 {
		return nil, apperrors.NewBadRequest("service duration must be positive")
	}
	if input.PriceCents < 0 {
		return nil, apperrors.NewBadRequest("service price cannot be negative")
	}

	service := &models.Service{
		BusinessID:      business.ID,
		Name:            name,
		Description:     strings.TrimSpace(input.Description),
		DurationMinutes: input.DurationMinutes,
		PriceCents:      input.PriceCents,
		Currency:        strings.ToUpper(defaultString(strings.TrimSpace(input.Currency), "TRY")),
		IsActive:        true,
	}
	if err := s.db.WithContext(ctx).Create(service).Error; err != nil {
		return nil, fmt.Errorf("offering service: create: %w", err)
	}

	s.invalidate(ctx, service)
	return service, nil
}

// Get loads a service of a business through the cache.
func (s *OfferingService) Get(ctx context.Context, businessID, id string) (*models.Service, error) {
	ctx = ensureContext(ctx)
	businessID, id = strings.TrimSpace(businessID), strings.TrimSpace(id)
	if businessID == "" || id == "" {
		return nil, ErrServiceNotFound
	}

	key := s.key(prefixService, id, cache.KeyOptions{BusinessID: businessID})
	service, err := readThrough(ctx, s.cache, s.log, key, func(ctx context.Context) (models.Service, error) {
		return s.load(ctx, businessID, id)
	}, cache.WithTTL(cache.TTLStatic))
	if err != nil {
		return nil, err
	}
	return &service, nil
}

// ListByBusiness lists a business's services, optionally only the bookable ones.
func (s *OfferingService) ListByBusiness(ctx context.Context, businessID string, activeOnly bool) ([]models.Service, error) {
	ctx = ensureContext(ctx)
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, ErrBusinessNotFound
	}

	key := s.key(prefixServices, "list", cache.KeyOptions{
		BusinessID: businessID,
		QueryHash:  cache.HashQuery(map[string]any{"active": activeOnly}),
	})
	return readThrough(ctx, s.cache, s.log, key, func(ctx context.Context) ([]models.Service, error) {
		db := s.db.WithContext(ctx).Where("business_id = ?", businessID)
		if activeOnly {
			db = db.Where("is_active = ?", true)
		}
		var services []models.Service
		if err := db.Order("name ASC").Find(&services).Error; err != nil {
			return nil, fmt.Errorf("offering service: list: %w", err)
		}
		return services, nil
	}, cache.WithTTL(cache.TTLDynamic))
}

// Update applies input to a service and invalidates the affected cache entries.
func (s *OfferingService) Update(ctx context.Context, businessID, id string, input UpdateServiceInput) (*models.Service, error) {
	ctx = ensureContext(ctx)

	service, err := s.load(ctx, strings.TrimSpace(businessID), strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if name := trimmedPtr(input.Name); name != nil {
		if *name == "" {
			return nil, apperrors.NewBadRequest("service name cannot be empty")
		}
		updates["name"] = *name
	}
	if v := trimmedPtr(input.Description); v != nil {
		updates["description"] = *v
	}
	if input.DurationMinutes != nil {
		if *input.DurationMinutes <= 0 {
			return nil, apperrors.NewBadRequest("service duration must be positive")
		}
		updates["duration_minutes"] = *input.DurationMinutes
	}
	if input.PriceCents != nil {
		if *input.PriceCents < 0 {
			return nil, apperrors.NewBadRequest("service price cannot be negative")
		}
		updates["price_cents"] = *input.PriceCents
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&service).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("offering service: update: %w", err)
		}
	}

	s.invalidate(ctx, &service)
	updated, err := s.load(ctx, service.BusinessID, service.ID)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a service that was never booked. Booked services can only be deactivated.
func (s *OfferingService) Delete(ctx context.Context, businessID, id string) error {
	ctx = ensureContext(ctx)

	service, err := s.load(ctx, strings.TrimSpace(businessID), strings.TrimSpace(id))
	if err != nil {
		return err
	}
	var booked int64
	if err := s.db.WithContext(ctx).Model(&models.Appointment{}).Where("service_id = ?", service.ID).Count(&booked).Error; err != nil {
		return fmt.Errorf("offering service: count appointments: %w", err)
	}
	if booked > 0 {
		return apperrors.ErrConflict.WithMessage("service has appointments, deactivate it instead")
	}
	if err := s.db.WithContext(ctx).Delete(&service).Error; err != nil {
		return fmt.Errorf("offering service: delete: %w", err)
	}

	s.invalidate(ctx, &service)
	return nil
}

func (s *OfferingService) load(ctx context.Context, businessID, id string) (models.Service, error) {
	var service models.Service
	err := s.db.WithContext(ctx).Take(&service, "id = ? AND business_id = ?", id, businessID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Service{}, ErrServiceNotFound
	}
	if err != nil {
		return models.Service{}, fmt.Errorf("offering service: load: %w", err)
	}
	return service, nil
}

func (s *OfferingService) invalidate(ctx context.Context, service *models.Service) {
	if s.cache == nil {
		return
	}
	logInvalidation(s.log, cache.EntityService, service.ID, s.cache.InvalidateService(ctx, service.ID, service.BusinessID))
}

func (s *OfferingService) key(prefix, identifier string, opts cache.KeyOptions) string {
	return cacheKey(s.cache, prefix, identifier, opts)
}
