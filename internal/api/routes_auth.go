package api

import (
	"github.com/gin-gonic/gin"

	"github.com/randevubu/randevubu-server/internal/handlers"
)

func registerAuthRoutes(public, api *gin.RouterGroup, handler *handlers.AuthHandler) {
	auth := public.Group("/auth")
	{
		auth.POST("/register", handler.Register)
		auth.POST("/login", handler.Login)
	}

	api.GET("/auth/me", handler.Me)
	api.PATCH("/auth/me", handler.UpdateMe)
}
