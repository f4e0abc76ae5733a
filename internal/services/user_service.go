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
	"github.com/randevubu/randevubu-server/pkg/crypto"
	apperrors "github.com/randevubu/randevubu-server/pkg/errors"
)

// CreateUserInput captures the fields required to register a user.
type CreateUserInput struct {
	Email    string
	Password string
	Name     string
	Phone    string
	Locale   string
}

// UpdateUserInput describes mutable profile fields. A nil pointer indicates no change.
type UpdateUserInput struct {
	Name     *string
	Phone    *string
	Locale   *string
	IsActive *bool
}

// UserService manages user accounts and their cached profiles.
type UserService struct {
	db    *gorm.DB
	cache   *cache.Service
	monitor *monitoring.Module
	log     *zap.Logger
	now     func() time.Time
}

// NewUserService constructs a user service. A nil cache disables caching.
func NewUserService(db *gorm.DB, cacheSvc *cache.Service, mon *monitoring.Module, log *zap.Logger) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{
		db:      db,
		cache:   cacheSvc,
		monitor: mon,
		log:     loggerOrNop(log).With(zap.String("service", "user")),
		now:     time.Now,
	}, nil
}

// Create registers a user with a hashed password.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}

	hash, err := crypto.HashPassword(input.Password)
	if errors.Is(err, crypto.ErrPasswordTooShort) {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("password must be at least %d characters", crypto.MinPasswordLength))
	}
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Email:    email,
		Password: hash,
		Name:     strings.TrimSpace(input.Name),
		Phone:    strings.TrimSpace(input.Phone),
		Locale:   defaultString(strings.TrimSpace(input.Locale), "tr"),
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrConflict.WithMessage("email is already registered")
		}
		return nil, fmt.Errorf("user service: create: %w", err)
	}
	return user, nil
}

// Get returns a user profile through the cache.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrUserNotFound
	}

	key := s.key(id)
	user, err := readThrough(ctx, s.cache, s.log, key, func(ctx context.Context) (models.User, error) {
		return s.load(ctx, id)
	}, cache.WithTTL(cache.TTLDynamic))
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update changes profile fields.
func (s *UserService) Update(ctx context.Context, id string, input UpdateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.load(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if v := trimmedPtr(input.Name); v != nil {
		updates["name"] = *v
	}
	if v := trimmedPtr(input.Phone); v != nil {
		updates["phone"] = *v
	}
	if v := trimmedPtr(input.Locale); v != nil {
		updates["locale"] = *v
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) == 0 {
		return &user, nil
	}

	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: update: %w", err)
	}
	s.invalidate(ctx, user.ID)

	refreshed, err := s.load(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &refreshed, nil
}

// Authenticate verifies credentials and stamps the login time.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	ctx = ensureContext(ctx)
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.monitor.RecordAuthAttempt("failure")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		s.monitor.RecordAuthAttempt("error")
		return nil, fmt.Errorf("user service: authenticate: %w", err)
	}
	if !user.IsActive || !crypto.VerifyPassword(user.Password, password) {
		s.monitor.RecordAuthAttempt("failure")
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		s.monitor.RecordAuthAttempt("error")
		return nil, fmt.Errorf("user service: record login: %w", err)
	}
	s.monitor.RecordAuthAttempt("success")
	user.LastLoginAt = &now
	s.invalidate(ctx, user.ID)
	return &user, nil
}

// SetAdmin grants or revokes administrative access for the account with the given email.
func (s *UserService) SetAdmin(ctx context.Context, email string, admin bool) (*models.User, error) {
	ctx = ensureContext(ctx)
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: set admin: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&user).Update("is_admin", admin).Error; err != nil {
		return nil, fmt.Errorf("user service: set admin: %w", err)
	}
	user.IsAdmin = admin
	s.invalidate(ctx, user.ID)
	return &user, nil
}

// IsAdmin reports whether the user holds administrative access. Unknown and inactive users are not admins.
func (s *UserService) IsAdmin(ctx context.Context, id string) (bool, error) {
	user, err := s.Get(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.IsActive && user.IsAdmin, nil
}

// Delete removes a user account.
func (s *UserService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)

	result := s.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("user service: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *UserService) load(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("user service: load: %w", err)
	}
	return user, nil
}

func (s *UserService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	logInvalidation(s.log, cache.EntityUser, id, s.cache.InvalidateUser(ctx, id))
}

func (s *UserService) key(id string) string {
	return cacheKey(s.cache, prefixProfile, id, cache.KeyOptions{Shared: true})
}
