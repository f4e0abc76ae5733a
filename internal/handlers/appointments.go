package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/randevubu/randevubu-server/internal/models"
	"github.com/randevubu/randevubu-server/internal/services"
	"github.com/randevubu/randevubu-server/pkg/errors"
	"github.com/randevubu/randevubu-server/pkg/response"
)

const dateQueryLayout = "2006-01-02"

// AppointmentHandler books appointments and serves the owner dashboards built on them.
type AppointmentHandler struct {
	businesses   *services.BusinessService
	appointments *services.AppointmentService
}

type bookAppointmentRequest struct {
	ServiceID string    `json:"service_id" validate:"required"`
	StartsAt  time.Time `json:"starts_at" validate:"required"`
	Notes     string    `json:"notes" validate:"max=1000"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed cancelled completed no_show"`
}

func NewAppointmentHandler(businesses *services.BusinessService, appointments *services.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{businesses: businesses, appointments: appointments}
}

// POST /api/businesses/:id/appointments
func (h *AppointmentHandler) Book(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var body bookAppointmentRequest
	if !bindAndValidate(c, &body) {
		return
	}

	appointment, err := h.appointments.Book(requestContext(c), services.BookAppointmentInput{
		BusinessID: c.Param("id"),
		ServiceID:  body.ServiceID,
		CustomerID: userID,
		StartsAt:   body.StartsAt,
		Notes:      body.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, appointment)
}

// GET /api/businesses/:id/appointments
func (h *AppointmentHandler) ListForBusiness(c *gin.Context) {
	business, ok := requireOwner(c, h.businesses)
	if !ok {
		return
	}

	opts := services.ListAppointmentsOptions{
		Status:  c.Query("status"),
		Page:    parseIntQuery(c, "page", 1),
		PerPage: parseIntQuery(c, "per_page", 20),
	}
	var err error
	if opts.From, err = parseDateQuery(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if opts.To, err = parseDateQuery(c, "to"); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.appointments.ListForBusiness(requestContext(c), business.ID, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, result.Items, response.NewMeta(result.Page, result.PerPage, result.Total))
}

// GET /api/businesses/:id/stats?date=YYYY-MM-DD
func (h *AppointmentHandler) Stats(c *gin.Context) {
	business, ok := requireOwner(c, h.businesses)
	if !ok {
		return
	}
	day, err := parseDateQuery(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	if day.IsZero() {
		day = time.Now()
	} else {
		// Midday UTC lands on the same calendar date in every business timezone.
		day = day.Add(12 * time.Hour)
	}

	stats, err := h.appointments.Stats(requestContext(c), business.ID, day)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// GET /api/businesses/:id/queue
func (h *AppointmentHandler) Queue(c *gin.Context) {
	business, ok := requireOwner(c, h.businesses)
	if !ok {
		return
	}
	queue, err := h.appointments.Queue(requestContext(c), business.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, queue)
}

// GET /api/me/appointments
func (h *AppointmentHandler) Mine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	appointments, err := h.appointments.ListForCustomer(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, appointments)
}

// GET /api/appointments/:id
func (h *AppointmentHandler) Get(c *gin.Context) {
	appointment, _, ok := h.authorize(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, appointment)
}

// PATCH /api/appointments/:id/status
func (h *AppointmentHandler) UpdateStatus(c *gin.Context) {
	appointment, owner, ok := h.authorize(c)
	if !ok {
		return
	}
	if !owner {
		response.Error(c, errors.ErrForbidden)
		return
	}
	var body updateStatusRequest
	if !bindAndValidate(c, &body) {
		return
	}

	updated, err := h.appointments.UpdateStatus(requestContext(c), appointment.ID, body.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, updated)
}

// POST /api/appointments/:id/cancel
func (h *AppointmentHandler) Cancel(c *gin.Context) {
	appointment, _, ok := h.authorize(c)
	if !ok {
		return
	}
	cancelled, err := h.appointments.Cancel(requestContext(c), appointment.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, cancelled)
}

// authorize loads the appointment and admits its customer or the owning business.
// owner reports whether the caller owns the business.
func (h *AppointmentHandler) authorize(c *gin.Context) (*models.Appointment, bool, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		return nil, false, false
	}
	ctx := requestContext(c)
	appointment, err := h.appointments.Get(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false, false
	}

	business, err := h.businesses.Get(ctx, appointment.BusinessID)
	if err != nil {
		response.Error(c, err)
		return nil, false, false
	}
	owner := business.OwnerID == userID
	if !owner && appointment.CustomerID != userID {
		// Hide appointments of other customers.
		response.Error(c, services.ErrAppointmentNotFound)
		return nil, false, false
	}
	return appointment, owner, true
}

func parseDateQuery(c *gin.Context, key string) (time.Time, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(dateQueryLayout, value)
	if err != nil {
		return time.Time{}, errors.NewBadRequest(key + " must use the YYYY-MM-DD format")
	}
	return parsed, nil
}
