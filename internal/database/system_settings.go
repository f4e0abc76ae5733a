package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/randevubu/randevubu-server/internal/models"
)

const (
	SchemaVersionSetting   = "schema.version"
	CacheLastWarmedSetting = "cache.last_warmed_at"
	CacheLastPurgedSetting = "cache.last_purged_at"
)

// GetSystemSetting retrieves a system setting by key. Returns an empty string when not found.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("system settings: db is nil")
	}

	var setting models.SystemSetting
	err := db.WithContext(ctx).Take(&setting, "setting_key = ?", key).Error
	if err == nil {
		return setting.Value, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return "", nil
	}
	return "", fmt.Errorf("system settings: get %q: %w", key, err)
}

// UpsertSystemSetting stores or updates a system setting value.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("system settings: key is required")
	}

	record := models.SystemSetting{Key: key, Value: value}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "setting_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}
	return nil
}

// RecordTimestamp stores t under key in RFC 3339 form.
func RecordTimestamp(ctx context.Context, db *gorm.DB, key string, t time.Time) error {
	return UpsertSystemSetting(ctx, db, key, t.UTC().Format(time.RFC3339))
}

// GetTimestamp parses a timestamp stored by RecordTimestamp. A missing setting yields the zero time.
func GetTimestamp(ctx context.Context, db *gorm.DB, key string) (time.Time, error) {
	value, err := GetSystemSetting(ctx, db, key)
	if err != nil || value == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("system settings: parse %q: %w", key, err)
	}
	return t, nil
}
