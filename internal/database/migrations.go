package database

import (
	"context"

	"gorm.io/gorm"

	"github.com/randevubu/randevubu-server/internal/models"
)

// SchemaVersion is recorded in system settings after every successful migration.
const SchemaVersion = "2"

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Business{},
		&models.Service{},
		&models.Appointment{},
		&models.CacheEntry{},
		&models.SystemSetting{},
	)
}

// SeedData records installation metadata.
func SeedData(db *gorm.DB) error {
	return UpsertSystemSetting(context.Background(), db, SchemaVersionSetting, SchemaVersion)
}
