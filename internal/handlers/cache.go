package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/randevubu/randevubu-server/internal/cache"
	appErrors "github.com/randevubu/randevubu-server/pkg/errors"
	"github.com/randevubu/randevubu-server/pkg/response"
)

// CacheHandler exposes cache statistics and manual invalidation to administrators.
type CacheHandler struct {
	cache *cache.Service
}

type invalidateRequest struct {
	Entity     string `json:"entity" validate:"required,oneof=business service appointment user"`
	ID         string `json:"id" validate:"required,max=128"`
	BusinessID string `json:"business_id" validate:"omitempty,max=128"`
}

type invalidationResponse struct {
	Entity  string `json:"entity"`
	Deleted int64  `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

func NewCacheHandler(svc *cache.Service) *CacheHandler {
	return &CacheHandler{cache: svc}
}

// GET /api/cache/stats
func (h *CacheHandler) Stats(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	response.Success(c, http.StatusOK, h.cache.Statistics(requestContext(c)))
}

// GET /api/cache/health
func (h *CacheHandler) Health(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	healthy := h.cache.HealthCheck(requestContext(c))
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, gin.H{"healthy": healthy})
}

// POST /api/cache/invalidate
func (h *CacheHandler) Invalidate(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	var body invalidateRequest
	if !bindAndValidate(c, &body) {
		return
	}

	res, err := h.cache.InvalidateEntity(requestContext(c), body.Entity, body.ID, body.BusinessID)
	if errors.Is(err, cache.ErrUnknownEntity) {
		response.Error(c, appErrors.NewBadRequest(err.Error()))
		return
	}
	h.writeResult(c, body.Entity, res)
}

// DELETE /api/cache
func (h *CacheHandler) Clear(c *gin.Context) {
	if !h.enabled(c) {
		return
	}
	h.writeResult(c, cache.EntityAll, h.cache.ClearAll(requestContext(c)))
}

func (h *CacheHandler) writeResult(c *gin.Context, entity string, res cache.Result) {
	payload := invalidationResponse{Entity: entity, Deleted: res.Deleted}
	status := http.StatusOK
	if !res.OK() {
		// Partial invalidation still reports what was removed.
		payload.Error = res.Err.Error()
		status = http.StatusMultiStatus
	}
	response.Success(c, status, payload)
}

func (h *CacheHandler) enabled(c *gin.Context) bool {
	if h == nil || h.cache == nil {
		response.Error(c, appErrors.ErrServiceUnavailable.WithMessage("cache is disabled"))
		return false
	}
	return true
}
