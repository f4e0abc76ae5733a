package api

import (
	"github.com/gin-gonic/gin"

	"github.com/randevubu/randevubu-server/internal/handlers"
)

type businessRouteDeps struct {
	Businesses   *handlers.BusinessHandler
	Offerings    *handlers.OfferingHandler
	Appointments *handlers.AppointmentHandler
}

func registerBusinessRoutes(public, api *gin.RouterGroup, deps businessRouteDeps) {
	// Public directory
	public.GET("/businesses", deps.Businesses.List)
	public.GET("/businesses/:id", deps.Businesses.Get)
	public.GET("/businesses/:id/services", deps.Offerings.List)
	public.GET("/businesses/:id/services/:serviceID", deps.Offerings.Get)
	public.GET("/directory/:slug", deps.Businesses.GetBySlug)

	businesses := api.Group("/businesses")
	{
		businesses.POST("", deps.Businesses.Create)
		businesses.PATCH("/:id", deps.Businesses.Update)
		businesses.DELETE("/:id", deps.Businesses.Delete)

		businesses.POST("/:id/services", deps.Offerings.Create)
		businesses.PATCH("/:id/services/:serviceID", deps.Offerings.Update)
		businesses.DELETE("/:id/services/:serviceID", deps.Offerings.Delete)

		businesses.POST("/:id/appointments", deps.Appointments.Book)
		businesses.GET("/:id/appointments", deps.Appointments.ListForBusiness)
		businesses.GET("/:id/stats", deps.Appointments.Stats)
		businesses.GET("/:id/queue", deps.Appointments.Queue)
	}

	appointments := api.Group("/appointments")
	{
		appointments.GET("/:id", deps.Appointments.Get)
		appointments.PATCH("/:id/status", deps.Appointments.UpdateStatus)
		appointments.POST("/:id/cancel", deps.Appointments.Cancel)
	}

	me := api.Group("/me")
	{
		me.GET("/businesses", deps.Businesses.Mine)
		me.GET("/appointments", deps.Appointments.Mine)
	}
}
