package models

import (
	"time"
)

// CacheEntry is a cached value held by the SQL-backed cache store.
type CacheEntry struct {
	Key       string    `gorm:"column:cache_key;primaryKey;size:255"`
	Value     []byte    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table name independent of naming strategy.
func (CacheEntry) TableName() string {
	return "cache_entries"
}
