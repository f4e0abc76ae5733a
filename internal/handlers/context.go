package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/randevubu/randevubu-server/internal/middleware"
	"github.com/randevubu/randevubu-server/internal/models"
	"github.com/randevubu/randevubu-server/internal/services"
	"github.com/randevubu/randevubu-server/pkg/errors"
	"github.com/randevubu/randevubu-server/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUserID returns the authenticated user, writing a 401 when the request is anonymous.
func currentUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}

// requireOwner loads the business named by the :id route parameter and checks that the caller owns it.
func requireOwner(c *gin.Context, businesses *services.BusinessService) (*models.Business, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		return nil, false
	}
	business, err := businesses.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if business.OwnerID != userID {
		response.Error(c, errors.ErrForbidden)
		return nil, false
	}
	return business, true
}
