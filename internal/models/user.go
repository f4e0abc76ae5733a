package models

import "time"

// User is a customer or business owner.
type User struct {
	BaseModel

	Email    string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Locale   string `gorm:"size:10" json:"locale"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
	IsAdmin  bool   `gorm:"default:false" json:"is_admin"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}
