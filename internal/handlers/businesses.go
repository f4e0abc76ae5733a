package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/randevubu/randevubu-server/internal/services"
	"github.com/randevubu/randevubu-server/pkg/response"
)

// BusinessHandler serves the business directory and owner management endpoints.
type BusinessHandler struct {
	businesses *services.BusinessService
}

type businessRequest struct {
	Name         string                       `json:"name" validate:"required,max=120"`
	Slug         string                       `json:"slug" validate:"omitempty,max=120"`
	Description  string                       `json:"description" validate:"max=2000"`
	Phone        string                       `json:"phone" validate:"max=32"`
	Email        string                       `json:"email" validate:"omitempty,email"`
	Timezone     string                       `json:"timezone" validate:"omitempty,timezone"`
	WorkingHours map[string]services.DayHours `json:"working_hours" validate:"omitempty,dive"`
}

type updateBusinessRequest struct {
	Name         *string                      `json:"name" validate:"omitempty,max=120"`
	Description  *string                      `json:"description" validate:"omitempty,max=2000"`
	Phone        *string                      `json:"phone" validate:"omitempty,max=32"`
	Email        *string                      `json:"email" validate:"omitempty,email"`
	Timezone     *string                      `json:"timezone" validate:"omitempty,timezone"`
	WorkingHours map[string]services.DayHours `json:"working_hours" validate:"omitempty,dive"`
	IsActive     *bool                        `json:"is_active"`
}

func NewBusinessHandler(businesses *services.BusinessService) *BusinessHandler {
	return &BusinessHandler{businesses: businesses}
}

// GET /api/businesses
func (h *BusinessHandler) List(c *gin.Context) {
	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 20)

	result, err := h.businesses.List(requestContext(c), services.ListBusinessesOptions{
		Query:      c.Query("q"),
		ActiveOnly: true,
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, result.Items, response.NewMeta(result.Page, result.PerPage, result.Total))
}

// GET /api/businesses/:id
func (h *BusinessHandler) Get(c *gin.Context) {
	business, err := h.businesses.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, business)
}

// GET /api/directory/:slug
func (h *BusinessHandler) GetBySlug(c *gin.Context) {
	business, err := h.businesses.GetBySlug(requestContext(c), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, business)
}

// GET /api/me/businesses
func (h *BusinessHandler) Mine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	businesses, err := h.businesses.ListByOwner(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, businesses)
}

// POST /api/businesses
func (h *BusinessHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var body businessRequest
	if !bindAndValidate(c, &body) {
		return
	}

	business, err := h.businesses.Create(requestContext(c), services.CreateBusinessInput{
		OwnerID:      userID,
		Name:         body.Name,
		Slug:         body.Slug,
		Description:  body.Description,
		Phone:        body.Phone,
		Email:        body.Email,
		Timezone:     body.Timezone,
		WorkingHours: body.WorkingHours,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, business)
}

// PATCH /api/businesses/:id
func (h *BusinessHandler) Update(c *gin.Context) {
	business, ok := requireOwner(c, h.businesses)
	if !ok {
		return
	}
	var body updateBusinessRequest
	if !bindAndValidate(c, &body) {
		return
	}

	updated, err := h.businesses.Update(requestContext(c), business.ID, services.UpdateBusinessInput{
		Name:         body.Name,
		Description:  body.Description,
		Phone:        body.Phone,
		Email:        body.Email,
		Timezone:     body.Timezone,
		WorkingHours: body.WorkingHours,
		IsActive:     body.IsActive,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, updated)
}

// DELETE /api/businesses/:id
func (h *BusinessHandler) Delete(c *gin.Context) {
	business, ok := requireOwner(c, h.businesses)
	if !ok {
		return
	}
	if err := h.businesses.Delete(requestContext(c), business.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
