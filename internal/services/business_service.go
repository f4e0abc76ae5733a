package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/randevubu/randevubu-server/internal/cache"
	"github.com/randevubu/randevubu-server/internal/models"
	apperrors "github.com/randevubu/randevubu-server/pkg/errors"
)

var (
	slugSanitizer = regexp.MustCompile(`[^a-z0-9]+`)
	slugFolder    = strings.NewReplacer(
		"ç", "c", "Ç", "c", "ğ", "g", "Ğ", "g", "ı", "i", "İ", "i",
		"ö", "o", "Ö", "o", "ş", "s", "Ş", "s", "ü", "u", "Ü", "u",
	)
)

// DayHours is the opening window for one weekday in "HH:MM" form.
type DayHours struct {
	Open  string `json:"open" validate:"required,hhmm"`
	Close string `json:"close" validate:"required,hhmm"`
}

// CreateBusinessInput captures the fields required to register a business.
type CreateBusinessInput struct {
	OwnerID      string
	Name         string
	Slug         string
	Description  string
	Phone        string
	Email        string
	Timezone     string
	WorkingHours map[string]DayHours
}

// UpdateBusinessInput describes mutable business fields. A nil pointer indicates no change.
type UpdateBusinessInput struct {
	Name         *string
	Description  *string
	Phone        *string
	Email        *string
	Timezone     *string
	WorkingHours map[string]DayHours
	IsActive     *bool
}

// ListBusinessesOptions filters the public business directory.
type ListBusinessesOptions struct {
	Query      string
	ActiveOnly bool
	Page       int
	PerPage    int
}

// BusinessService manages businesses and keeps their cache entries coherent.
type BusinessService struct {
	db    *gorm.DB
	cache *cache.Service
	log   *zap.Logger
}

// NewBusinessService constructs a business service. A nil cache disables caching.
func NewBusinessService(db *gorm.DB, cacheSvc *cache.Service, log *zap.Logger) (*BusinessService, error) {
	if db == nil {
		return nil, errors.New("business service: db is required")
	}
	return &BusinessService{db: db, cache: cacheSvc, log: loggerOrNop(log).With(zap.String("service", "business"))}, nil
}

// Create registers a business.
func (s *BusinessService) Create(ctx context.Context, input CreateBusinessInput) (*models.Business, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("business name is required")
	}
	slug := slugify(input.Slug)
	if slug == "" {
		slug = slugify(name)
	}
	if slug == "" {
		return nil, apperrors.NewBadRequest("business slug is required")
	}

	hours, err := encodeHours(input.WorkingHours)
	if err != nil {
		return nil, err
	}

	business := &models.Business{
		OwnerID:      strings.TrimSpace(input.OwnerID),
		Name:         name,
		Slug:         slug,
		Description:  strings.TrimSpace(input.Description),
		Phone:        strings.TrimSpace(input.Phone),
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		Timezone:     defaultString(strings.TrimSpace(input.Timezone), "UTC"),
		WorkingHours: hours,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(business).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrConflict.WithMessage("business slug already in use")
		}
		return nil, fmt.Errorf("business service: create: %w", err)
	}

	s.invalidate(ctx, business)
	return business, nil
}

// Get loads a business by id through the cache.
func (s *BusinessService) Get(ctx context.Context, id string) (*models.Business, error) {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrBusinessNotFound
	}

	key := s.keys(prefixBusiness, id, cache.KeyOptions{Shared: true})
	business, err := readThrough(ctx, s.cache, s.log, key, func(ctx context.Context) (models.Business, error) {
		return s.load(ctx, "id = ?", id)
	}, cache.WithTTL(cache.TTLStatic))
	if err != nil {
		return nil, err
	}
	return &business, nil
}

// GetBySlug resolves a slug to its business. Only the slug to id mapping is cached so
// the business itself stays under its id key.
func (s *BusinessService) GetBySlug(ctx context.Context, slug string) (*models.Business, error) {
	ctx = ensureContext(ctx)
	slug = slugify(slug)
	if slug == "" {
		return nil, ErrBusinessNotFound
	}

	key := s.keys(prefixBusiness, "slug."+slug, cache.KeyOptions{Shared: true})
	id, err := readThrough(ctx, s.cache, s.log, key, func(ctx context.Context) (string, error) {
		business, err := s.load(ctx, "slug = ?", slug)
		if err != nil {
			return "", err
		}
		return business.ID, nil
	}, cache.WithTTL(cache.TTLStatic))
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// List pages through the business directory.
func (s *BusinessService) List(ctx context.Context, opts ListBusinessesOptions) (Page[models.Business], error) {
	ctx = ensureContext(ctx)
	page, perPage := normalisePage(opts.Page, opts.PerPage)
	query := strings.TrimSpace(opts.Query)

	key := s.keys(prefixBusinesses, "list", cache.KeyOptions{
		Shared: true,
		QueryHash: cache.HashQuery(map[string]any{
			"q":        strings.ToLower(query),
			"active":   opts.ActiveOnly,
			"page":     page,
			"per_page": perPage,
		}),
	})
	return readThrough(ctx, s.cache, s.log, key, func(ctx context.Context) (Page[models.Business], error) {
		db := s.db.WithContext(ctx).Model(&models.Business{})
		if opts.ActiveOnly {
			db = db.Where("is_active = ?", true)
		}
		if query != "" {
			like := "%" + strings.ToLower(query) + "%"
			db = db.Where("LOWER(name) LIKE ? OR slug LIKE ?", like, like)
		}

		result := Page[models.Business]{Page: page, PerPage: perPage}
		if err := db.Count(&result.Total).Error; err != nil {
			return result, fmt.Errorf("business service: count: %w", err)
		}
		if err := db.Order("name ASC").Offset((page - 1) * perPage).Limit(perPage).Find(&result.Items).Error; err != nil {
			return result, fmt.Errorf("business service: list: %w", err)
		}
		return result, nil
	}, cache.WithTTL(cache.TTLDynamic))
}

// ListByOwner returns the businesses owned by a user. The entry is scoped to the owner.
func (s *BusinessService) ListByOwner(ctx context.Context, ownerID string) ([]models.Business, error) {
	ctx = ensureContext(ctx)
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apperrors.NewBadRequest("owner id is required")
	}

	key := s.keys(prefixBusinesses, "owned", cache.KeyOptions{UserID: ownerID})
	return readThrough(ctx, s.cache, s.log, key, func(ctx context.Context) ([]models.Business, error) {
		var businesses []models.Business
		err := s.db.WithContext(ctx).
			Where("owner_id = ?", ownerID).
			Order("created_at ASC").
			Find(&businesses).Error
		if err != nil {
			return nil, fmt.Errorf("business service: list by owner: %w", err)
		}
		return businesses, nil
	}, cache.WithTTL(cache.TTLDynamic))
}

// Update applies input to a business and invalidates its cache entries.
func (s *BusinessService) Update(ctx context.Context, id string, input UpdateBusinessInput) (*models.Business, error) {
	ctx = ensureContext(ctx)

	business, err := s.load(ctx, "id = ?", strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if name := trimmedPtr(input.Name); name != nil {
		if *name == "" {
			return nil, apperrors.NewBadRequest("business name cannot be empty")
		}
		updates["name"] = *name
	}
	if v := trimmedPtr(input.Description); v != nil {
		updates["description"] = *v
	}
	if v := trimmedPtr(input.Phone); v != nil {
		updates["phone"] = *v
	}
	if v := trimmedPtr(input.Email); v != nil {
		updates["email"] = strings.ToLower(*v)
	}
	if v := trimmedPtr(input.Timezone); v != nil {
		updates["timezone"] = defaultString(*v, "UTC")
	}
	if input.WorkingHours != nil {
		hours, err := encodeHours(input.WorkingHours)
		if err != nil {
			return nil, err
		}
		updates["working_hours"] = hours
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&business).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("business service: update: %w", err)
		}
	}

	s.invalidate(ctx, &business)
	updated, err := s.load(ctx, "id = ?", business.ID)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a business together with its services and appointments.
func (s *BusinessService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	business, err := s.load(ctx, "id = ?", strings.TrimSpace(id))
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("business_id = ?", business.ID).Delete(&models.Appointment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("business_id = ?", business.ID).Delete(&models.Service{}).Error; err != nil {
			return err
		}
		return tx.Delete(&business).Error
	})
	if err != nil {
		return fmt.Errorf("business service: delete: %w", err)
	}

	s.invalidate(ctx, &business)
	return nil
}

func (s *BusinessService) load(ctx context.Context, query string, args ...any) (models.Business, error) {
	var business models.Business
	err := s.db.WithContext(ctx).Take(&business, append([]any{query}, args...)...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Business{}, ErrBusinessNotFound
	}
	if err != nil {
		return models.Business{}, fmt.Errorf("business service: load: %w", err)
	}
	return business, nil
}

func (s *BusinessService) invalidate(ctx context.Context, business *models.Business) {
	if s.cache == nil {
		return
	}
	logInvalidation(s.log, cache.EntityBusiness, business.ID, s.cache.InvalidateBusiness(ctx, business.ID))
	if business.OwnerID != "" {
		logInvalidation(s.log, cache.EntityUser, business.OwnerID, s.cache.InvalidateUser(ctx, business.OwnerID))
	}
	slugKey := s.keys(prefixBusiness, "slug."+business.Slug, cache.KeyOptions{Shared: true})
	if slugKey == "" {
		return
	}
	if res := s.cache.Delete(ctx, slugKey); !res.OK() {
		logInvalidation(s.log, cache.EntityBusiness, business.ID, res)
	}
}

func (s *BusinessService) keys(prefix, identifier string, opts cache.KeyOptions) string {
	return cacheKey(s.cache, prefix, identifier, opts)
}

func encodeHours(hours map[string]DayHours) (datatypes.JSON, error) {
	if len(hours) == 0 {
		return nil, nil
	}
	normalised := make(map[string]DayHours, len(hours))
	for day, window := range hours {
		day = strings.ToLower(strings.TrimSpace(day))
		if !isWeekday(day) {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown weekday %q", day))
		}
		if window.Open >= window.Close {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("opening hours for %s must close after they open", day))
		}
		normalised[day] = window
	}
	raw, err := json.Marshal(normalised)
	if err != nil {
		return nil, fmt.Errorf("business service: encode working hours: %w", err)
	}
	return datatypes.JSON(raw), nil
}

// DecodeWorkingHours parses a business's stored working hours.
func DecodeWorkingHours(business *models.Business) (map[string]DayHours, error) {
	hours := map[string]DayHours{}
	if business == nil || len(business.WorkingHours) == 0 {
		return hours, nil
	}
	if err := json.Unmarshal(business.WorkingHours, &hours); err != nil {
		return nil, fmt.Errorf("business service: decode working hours: %w", err)
	}
	return hours, nil
}

func isWeekday(day string) bool {
	switch day {
	case "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday":
		return true
	default:
		return false
	}
}

func slugify(value string) string {
	folded := strings.ToLower(slugFolder.Replace(strings.TrimSpace(value)))
	return strings.Trim(slugSanitizer.ReplaceAllString(folded, "-"), "-")
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
