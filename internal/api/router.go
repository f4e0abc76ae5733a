package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/randevubu/randevubu-server/internal/app"
	iauth "github.com/randevubu/randevubu-server/internal/auth"
	"github.com/randevubu/randevubu-server/internal/cache"
	"github.com/randevubu/randevubu-server/internal/handlers"
	"github.com/randevubu/randevubu-server/internal/middleware"
	"github.com/randevubu/randevubu-server/internal/monitoring"
	"github.com/randevubu/randevubu-server/internal/services"
)

// Options carries the long-lived dependencies the router mounts.
type Options struct {
	Config     *app.Config
	Services   *services.Services
	Tokens     *iauth.TokenIssuer
	Cache      *cache.Service
	Monitoring *monitoring.Module
	RateStore  middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if opts.Services == nil {
		return nil, fmt.Errorf("services must be provided")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("token issuer must be provided")
	}
	cfg := opts.Config

	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics(opts.Monitoring))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	if cfg.Server.RateLimit.Enabled {
		r.Use(middleware.RateLimit(opts.RateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window, opts.Monitoring))
	}

	registerHealthRoutes(r, cfg, opts.Monitoring)

	requireAuth := middleware.Auth(opts.Tokens)
	requireAdmin := middleware.RequireAdmin(opts.Services.Users)

	public := r.Group("/api")
	api := r.Group("/api")
	api.Use(requireAuth)

	registerAuthRoutes(public, api, handlers.NewAuthHandler(opts.Services.Users, opts.Tokens))
	registerBusinessRoutes(public, api, businessRouteDeps{
		Businesses:   handlers.NewBusinessHandler(opts.Services.Businesses),
		Offerings:    handlers.NewOfferingHandler(opts.Services.Businesses, opts.Services.Offerings),
		Appointments: handlers.NewAppointmentHandler(opts.Services.Businesses, opts.Services.Appointments),
	})
	registerCacheRoutes(api, handlers.NewCacheHandler(opts.Cache), requireAdmin)
	registerMonitoringRoutes(api, handlers.NewMonitoringHandler(opts.Monitoring, cfg), requireAdmin)

	if opts.Monitoring != nil && cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.HandlerFor(opts.Monitoring.Registry(), promhttp.HandlerOpts{})))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
