package models

import "gorm.io/datatypes"

// Business is a tenant offering bookable services.
type Business struct {
	BaseModel

	OwnerID     string `gorm:"size:36;index" json:"owner_id"`
	Name        string `gorm:"not null" json:"name"`
	Slug        string `gorm:"size:120;uniqueIndex;not null" json:"slug"`
	Description string `json:"description"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Timezone    string `gorm:"default:UTC" json:"timezone"`

	// WorkingHours maps lower-case weekday names to {"open":"09:00","close":"18:00"}.
	WorkingHours datatypes.JSON `json:"working_hours,omitempty"`
	IsActive     bool           `gorm:"default:true" json:"is_active"`

	Services []Service `gorm:"foreignKey:BusinessID;constraint:OnDelete:CASCADE" json:"services,omitempty"`
}
