package models

import "time"

// SystemSetting persists installation-wide values that should survive restarts.
type SystemSetting struct {
	Key       string    `gorm:"column:setting_key;primaryKey;size:191" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
