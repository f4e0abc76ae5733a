package models

// Service is a bookable offering of a business.
type Service struct {
	BaseModel

	BusinessID      string `gorm:"size:36;index;not null" json:"business_id"`
	Name            string `gorm:"not null" json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `gorm:"not null" json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	Currency        string `gorm:"size:3;default:TRY" json:"currency"`
	IsActive        bool   `gorm:"default:true" json:"is_active"`
}
