package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/randevubu/randevubu-server/internal/cache"
	"github.com/randevubu/randevubu-server/internal/database"
	"github.com/randevubu/randevubu-server/internal/monitoring"
	"github.com/randevubu/randevubu-server/internal/services"
	"github.com/randevubu/randevubu-server/pkg/logger"
)

const (
	defaultPurgeSpec      = "@every 10m"
	defaultWarmSpec       = "@every 30m"
	defaultStatsSpec      = "@every 5m"
	defaultWarmBusinesses = 50
	jobTimeout            = 2 * time.Minute
)

// Scheduler runs background cache housekeeping: purging expired database cache rows,
// re-warming the business directory and logging cache statistics.
type Scheduler struct {
	db         *gorm.DB
	cache      *cache.Service
	businesses *services.BusinessService
	offerings  *services.OfferingService
	monitor    *monitoring.Module
	cron       *cron.Cron
	now        func() time.Time
	log        *zap.Logger

	purgeSchedule  string
	warmSchedule   string
	statsSchedule  string
	warmBusinesses int
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithMonitoring records every job run on mod.
func WithMonitoring(mod *monitoring.Module) Option {
	return func(s *Scheduler) {
		s.monitor = mod
	}
}

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used when recording run timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithSchedules overrides the cron specifications. Empty values keep the defaults.
func WithSchedules(purge, warm, stats string) Option {
	return func(s *Scheduler) {
		if purge != "" {
			s.purgeSchedule = purge
		}
		if warm != "" {
			s.warmSchedule = warm
		}
		if stats != "" {
			s.statsSchedule = stats
		}
	}
}

// WithWarmBusinesses bounds how many businesses the warmer visits per run.
func WithWarmBusinesses(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.warmBusinesses = n
		}
	}
}

// WithWarmer enables cache warming through the given services.
func WithWarmer(businesses *services.BusinessService, offerings *services.OfferingService) Option {
	return func(s *Scheduler) {
		s.businesses = businesses
		s.offerings = offerings
	}
}

// NewScheduler constructs a Scheduler. A nil cache disables every job.
func NewScheduler(db *gorm.DB, cacheSvc *cache.Service, opts ...Option) *Scheduler {
	s := &Scheduler{
		db:             db,
		cache:          cacheSvc,
		now:            time.Now,
		log:            logger.WithModule("maintenance"),
		purgeSchedule:  defaultPurgeSpec,
		warmSchedule:   defaultWarmSpec,
		statsSchedule:  defaultStatsSpec,
		warmBusinesses: defaultWarmBusinesses,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s
}

type job struct {
	name string
	spec string
	run  func(context.Context) error
}

// jobs lists the jobs the configured dependencies allow.
func (s *Scheduler) jobs() []job {
	if s.cache == nil {
		return nil
	}
	var jobs []job
	if s.databaseStore() != nil {
		jobs = append(jobs, job{name: "purge", spec: s.purgeSchedule, run: s.purgeExpired})
	}
	if s.businesses != nil && s.offerings != nil {
		jobs = append(jobs, job{name: "warm", spec: s.warmSchedule, run: s.warm})
	}
	return append(jobs, job{name: "stats", spec: s.statsSchedule, run: s.logStatistics})
}

// Start registers the jobs and launches the scheduler.
func (s *Scheduler) Start() error {
	jobs := s.jobs()
	if len(jobs) == 0 {
		return nil
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if err := s.execute(ctx, j); err != nil {
				s.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", j.name, err)
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, returning a context that is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes every enabled job sequentially.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs error
	for _, j := range s.jobs() {
		errs = multierr.Append(errs, s.execute(ctx, j))
	}
	return errs
}

func (s *Scheduler) execute(ctx context.Context, j job) error {
	start := time.Now()
	err := j.run(ctx)
	result, message := "success", ""
	if err != nil {
		result, message = "failure", err.Error()
	}
	s.monitor.RecordMaintenanceRun("cache_"+j.name, result, message, time.Since(start))
	return err
}

func (s *Scheduler) purgeExpired(ctx context.Context) error {
	store := s.databaseStore()
	if store == nil {
		return errors.New("maintenance: cache store is not database backed")
	}
	purged, err := store.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	s.log.Debug("purged expired cache rows", zap.Int64("deleted", purged))
	return s.record(ctx, database.CacheLastPurgedSetting)
}

// warm walks the first page of active businesses and their bookable services so the most
// requested entries are hot after a deploy or a ClearAll.
func (s *Scheduler) warm(ctx context.Context) error {
	page, err := s.businesses.List(ctx, services.ListBusinessesOptions{ActiveOnly: true, PerPage: s.warmBusinesses})
	if err != nil {
		return err
	}

	var errs error
	for _, business := range page.Items {
		if _, err := s.businesses.Get(ctx, business.ID); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if _, err := s.offerings.ListByBusiness(ctx, business.ID, true); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	s.log.Info("cache warmed", zap.Int("businesses", len(page.Items)))
	return multierr.Append(errs, s.record(ctx, database.CacheLastWarmedSetting))
}

func (s *Scheduler) logStatistics(ctx context.Context) error {
	stats := s.cache.Statistics(ctx)
	s.log.Info("cache statistics",
		zap.String("backend", stats.Backend),
		zap.Int64("hits", stats.Hits),
		zap.Int64("misses", stats.Misses),
		zap.Int64("errors", stats.Errors),
		zap.Float64("hit_rate", stats.HitRate),
		zap.Int64("keys", stats.Keys),
		zap.String("memory", stats.MemoryHuman),
		zap.Int64("active_locks", stats.Locks.ActiveLocks),
	)
	return nil
}

func (s *Scheduler) record(ctx context.Context, key string) error {
	if s.db == nil {
		return nil
	}
	return database.RecordTimestamp(ctx, s.db, key, s.now())
}

func (s *Scheduler) databaseStore() *cache.DatabaseStore {
	if s.cache == nil {
		return nil
	}
	store := s.cache.Store()
	if breaker, ok := store.(*cache.BreakerStore); ok {
		store = breaker.Unwrap()
	}
	dbStore, _ := store.(*cache.DatabaseStore)
	return dbStore
}
