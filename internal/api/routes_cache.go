package api

import (
	"github.com/gin-gonic/gin"

	"github.com/randevubu/randevubu-server/internal/handlers"
)

func registerCacheRoutes(api *gin.RouterGroup, handler *handlers.CacheHandler, requireAdmin gin.HandlerFunc) {
	group := api.Group("/cache")
	group.Use(requireAdmin)
	{
		group.GET("/stats", handler.Stats)
		group.GET("/health", handler.Health)
		group.POST("/invalidate", handler.Invalidate)
		group.DELETE("", handler.Clear)
	}
}
