package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/randevubu/randevubu-server/pkg/errors"
)

var (
	// ErrBusinessNotFound indicates the requested business does not exist.
	ErrBusinessNotFound = apperrors.NewNotFound("business")
	// ErrServiceNotFound indicates the requested service does not exist.
	ErrServiceNotFound = apperrors.NewNotFound("service")
	// ErrAppointmentNotFound indicates the requested appointment does not exist.
	ErrAppointmentNotFound = apperrors.NewNotFound("appointment")
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.NewNotFound("user")
	// ErrSlotTaken is returned when a booking overlaps an active appointment.
	ErrSlotTaken = apperrors.New("SLOT_TAKEN", "The requested time slot is no longer available", http.StatusConflict)
	// ErrInvalidCredentials is returned when email and password do not match.
	ErrInvalidCredentials = apperrors.New("INVALID_CREDENTIALS", "Invalid email or password", http.StatusUnauthorized)
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate")
}
