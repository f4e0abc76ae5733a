package models

import "time"

// Appointment statuses.
const (
	AppointmentPending   = "pending"
	AppointmentConfirmed = "confirmed"
	AppointmentCancelled = "cancelled"
	AppointmentCompleted = "completed"
	AppointmentNoShow    = "no_show"
)

// Appointment books a customer into a service slot.
type Appointment struct {
	BaseModel

	BusinessID string    `gorm:"size:36;index:idx_appointments_business_start;not null" json:"business_id"`
	ServiceID  string    `gorm:"size:36;index;not null" json:"service_id"`
	CustomerID string    `gorm:"size:36;index;not null" json:"customer_id"`
	StartsAt   time.Time `gorm:"index:idx_appointments_business_start;not null" json:"starts_at"`
	EndsAt     time.Time `gorm:"not null" json:"ends_at"`
	Status     string    `gorm:"size:20;index;default:pending" json:"status"`
	Notes      string    `json:"notes"`

	Service *Service `gorm:"foreignKey:ServiceID" json:"service,omitempty"`
}

// IsActiveStatus reports whether status still occupies its slot.
func IsActiveStatus(status string) bool {
	return status == AppointmentPending || status == AppointmentConfirmed
}
