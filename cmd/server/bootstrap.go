package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/randevubu/randevubu-server/internal/api"
	"github.com/randevubu/randevubu-server/internal/app"
	"github.com/randevubu/randevubu-server/internal/app/maintenance"
	iauth "github.com/randevubu/randevubu-server/internal/auth"
	"github.com/randevubu/randevubu-server/internal/cache"
	"github.com/randevubu/randevubu-server/internal/database"
	"github.com/randevubu/randevubu-server/internal/middleware"
	"github.com/randevubu/randevubu-server/internal/monitoring"
	"github.com/randevubu/randevubu-server/internal/monitoring/checks"
	"github.com/randevubu/randevubu-server/internal/services"
	"github.com/randevubu/randevubu-server/pkg/logger"
)

const metricsNamespace = "randevubu"

// runtimeStack bundles long-lived services used by the HTTP server and the admin commands.
type runtimeStack struct {
	DB         *gorm.DB
	Store      cache.Store
	Cache      *cache.Service
	Services   *services.Services
	Monitoring *monitoring.Module
	Scheduler  *maintenance.Scheduler
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, cache and domain services. When withHTTP is set
// it also starts the maintenance scheduler and builds the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger, withHTTP bool) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Monitoring, err = monitoring.NewModule(monitoring.Options{Namespace: metricsNamespace})
	if err != nil {
		return nil, fmt.Errorf("initialise monitoring: %w", err)
	}

	cacheLog := logger.WithModule("cache")
	stack.Store = cfg.Cache.OpenCacheStore(ctx, stack.DB, cacheLog)
	metrics, err := cache.NewMetrics(stack.Monitoring.Registry(), metricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("register cache metrics: %w", err)
	}
	stack.Cache, err = cache.NewService(stack.Store, cfg.Cache.ServiceOptions(cacheLog, metrics))
	if err != nil {
		return nil, fmt.Errorf("initialise cache: %w", err)
	}

	stack.Services, err = services.New(stack.DB, stack.Cache, stack.Monitoring, logger.WithModule("services"))
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}

	if !withHTTP {
		success = true
		return stack, nil
	}

	health := stack.Monitoring.Health()
	health.RegisterReadiness(checks.Database(stack.DB, 0))
	health.RegisterReadiness(checks.Cache(stack.Store, 0))

	if cfg.Maintenance.Enabled {
		stack.Scheduler = maintenance.NewScheduler(stack.DB, stack.Cache,
			maintenance.WithLogger(logger.WithModule("maintenance")),
			maintenance.WithSchedules(cfg.Maintenance.PurgeSchedule, cfg.Maintenance.WarmSchedule, cfg.Maintenance.StatsSchedule),
			maintenance.WithWarmBusinesses(cfg.Maintenance.WarmBusinesses),
			maintenance.WithWarmer(stack.Services.Businesses, stack.Services.Offerings),
			maintenance.WithMonitoring(stack.Monitoring),
		)
		if err := stack.Scheduler.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
		health.RegisterLiveness(checks.Maintenance(stack.Monitoring, 0))
	}

	tokens, err := iauth.NewTokenIssuer(cfg.Auth.TokenConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise token issuer: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Options{
		Config:     cfg,
		Services:   stack.Services,
		Tokens:     tokens,
		Cache:      stack.Cache,
		Monitoring: stack.Monitoring,
		RateStore:  middleware.NewRateStore(stack.Store),
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Scheduler != nil {
		select {
		case <-s.Scheduler.Stop().Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown")
		}
	}

	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil {
			log.Warn("cache shutdown", zap.Error(err))
		}
	} else if s.Store != nil {
		_ = s.Store.Close()
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
