package services

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/randevubu/randevubu-server/internal/cache"
	"github.com/randevubu/randevubu-server/internal/monitoring"
)

// Services bundles the domain services sharing one database handle and cache.
type Services struct {
	Businesses   *BusinessService
	Offerings    *OfferingService
	Appointments *AppointmentService
	Users        *UserService
}

// New wires every domain service. A nil cache disables caching and a nil monitoring module
// records nothing.
func New(db *gorm.DB, cacheSvc *cache.Service, mon *monitoring.Module, log *zap.Logger) (*Services, error) {
	businesses, err := NewBusinessService(db, cacheSvc, log)
	if err != nil {
		return nil, err
	}
	offerings, err := NewOfferingService(db, cacheSvc, businesses, log)
	if err != nil {
		return nil, err
	}
	appointments, err := NewAppointmentService(db, cacheSvc, businesses, offerings, mon, log)
	if err != nil {
		return nil, err
	}
	users, err := NewUserService(db, cacheSvc, mon, log)
	if err != nil {
		return nil, err
	}
	return &Services{
		Businesses:   businesses,
		Offerings:    offerings,
		Appointments: appointments,
		Users:        users,
	}, nil
}
