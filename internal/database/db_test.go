package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/randevubu/randevubu-server/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Exec("SELECT 1").Error)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestOpenAppliesPoolSettings(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite", DSN: "file:pool_test?mode=memory&cache=shared", MaxOpenConns: 3})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.Equal(t, 3, sqlDB.Stats().MaxOpenConnections)
}

func TestAutoMigrateAndSeedData(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrateAndSeed(db))

	migrator := db.Migrator()
	for _, table := range []any{
		&models.User{},
		&models.Business{},
		&models.Service{},
		&models.Appointment{},
		&models.CacheEntry{},
		&models.SystemSetting{},
	} {
		require.True(t, migrator.HasTable(table), "expected table for %T to exist", table)
	}
	require.True(t, migrator.HasColumn(&models.CacheEntry{}, "cache_key"))

	version, err := GetSystemSetting(context.Background(), db, SchemaVersionSetting)
	require.NoError(t, err)
	require.Equal(t, SchemaVersion, version)

	// Seeding twice must be idempotent.
	require.NoError(t, AutoMigrateAndSeed(db))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite", DSN: "file:" + t.Name() + "?mode=memory&cache=shared"})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
