package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/randevubu/randevubu-server/internal/services"
	"github.com/randevubu/randevubu-server/pkg/response"
)

// OfferingHandler manages the services a business offers.
type OfferingHandler struct {
	businesses *services.BusinessService
	offerings  *services.OfferingService
}

type createOfferingRequest struct {
	Name            string `json:"name" validate:"required,max=120"`
	Description     string `json:"description" validate:"max=2000"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,min=5,max=720"`
	PriceCents      int64  `json:"price_cents" validate:"min=0"`
	Currency        string `json:"currency" validate:"omitempty,len=3"`
}

type updateOfferingRequest struct {
	Name            *string `json:"name" validate:"omitempty,max=120"`
	Description     *string `json:"description" validate:"omitempty,max=2000"`
	DurationMinutes *int    `json:"duration_minutes" validate:"omitempty,min=5,max=720"`
	PriceCents      *int64  `json:"price_cents" validate:"omitempty,min=0"`
	IsActive        *bool   `json:"is_active"`
}

func NewOfferingHandler(businesses *services.BusinessService, offerings *services.OfferingService) *OfferingHandler {
	return &OfferingHandler{businesses: businesses, offerings: offerings}
}

// GET /api/businesses/:id/services
func (h *OfferingHandler) List(c *gin.Context) {
	list, err := h.offerings.ListByBusiness(requestContext(c), c.Param("id"), true)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, list)
}

// GET /api/businesses/:id/services/:serviceID
func (h *OfferingHandler) Get(c *gin.Context) {
	service, err := h.offerings.Get(requestContext(c), c.Param("id"), c.Param("serviceID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, service)
}

// POST /api/businesses/:id/services
func (h *OfferingHandler) Create(c *gin.Context) {
	business, ok := requireOwner(c, h.businesses)
	if !ok {
		return
	}
	var body createOfferingRequest
	if !bindAndValidate(c, &body) {
		return
	}

	service, err := h.offerings.Create(requestContext(c), business.ID, services.CreateServiceInput{
		Name:            body.Name,
		Description:     body.Description,
		DurationMinutes: body.DurationMinutes,
		PriceCents:      body.PriceCents,
		Currency:        body.Currency,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, service)
}

// PATCH /api/businesses/:id/services/:serviceID
func (h *OfferingHandler) Update(c *gin.Context) {
	business, ok := requireOwner(c, h.businesses)
	if !ok {
		return
	}
	var body updateOfferingRequest
	if !bindAndValidate(c, &body) {
		return
	}

	service, err := h.offerings.Update(requestContext(c), business.ID, c.Param("serviceID"), services.UpdateServiceInput{
		Name:            body.Name,
		Description:     body.Description,
		DurationMinutes: body.DurationMinutes,
		PriceCents:      body.PriceCents,
		IsActive:        body.IsActive,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, service)
}

// DELETE /api/businesses/:id/services/:serviceID
func (h *OfferingHandler) Delete(c *gin.Context) {
	business, ok := requireOwner(c, h.businesses)
	if !ok {
		return
	}
	if err := h.offerings.Delete(requestContext(c), business.ID, c.Param("serviceID")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
