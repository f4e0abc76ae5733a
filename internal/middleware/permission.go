package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/randevubu/randevubu-server/pkg/errors"
	"github.com/randevubu/randevubu-server/pkg/logger"
	"github.com/randevubu/randevubu-server/pkg/response"
)

// AdminChecker resolves whether a user may reach administrative endpoints.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// RequireAdmin allows the request through only for authenticated administrators.
// It must run after Auth.
func RequireAdmin(checker AdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(CtxUserIDKey)
		if userID == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		allowed, err := checker.IsAdmin(c.Request.Context(), userID)
		if err != nil {
			logger.WithModule("http").Error("admin check failed", zap.String("user_id", userID), zap.Error(err))
			response.Error(c, errors.ErrInternalServer)
			c.Abort()
			return
		}
		if !allowed {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
