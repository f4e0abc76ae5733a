package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/randevubu/randevubu-server/internal/cache"
	"github.com/randevubu/randevubu-server/internal/database/testutil"
	"github.com/randevubu/randevubu-server/internal/models"
	"github.com/randevubu/randevubu-server/internal/monitoring"
)

var errCacheDown = errors.New("cache down")

// flakyStore wraps a MemoryStore and can be switched into a failing state.
type flakyStore struct {
	*cache.MemoryStore

	mu   sync.Mutex
	down bool
}

func (s *flakyStore) setDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

func (s *flakyStore) isDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down
}

func (s *flakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.isDown() {
		return nil, false, errCacheDown
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.isDown() {
		return errCacheDown
	}
	return s.MemoryStore.Set(ctx, key, value, ttl)
}

func (s *flakyStore) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	if s.isDown() {
		return 0, errCacheDown
	}
	return s.MemoryStore.DeletePattern(ctx, pattern)
}

type fixture struct {
	db           *gorm.DB
	store        *flakyStore
	cache        *cache.Service
	monitor      *monitoring.Module
	businesses   *BusinessService
	offerings    *OfferingService
	appointments *AppointmentService
	users        *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := &flakyStore{MemoryStore: cache.NewMemoryStore()}

	metrics, err := cache.NewMetrics(prometheus.NewRegistry(), "test")
	require.NoError(t, err)
	cacheSvc, err := cache.NewService(store, cache.ServiceOptions{
		Logger:        zap.NewNop(),
		Metrics:       metrics,
		JitterPercent: -1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cacheSvc.Close() })

	mod, err := monitoring.NewModule(monitoring.Options{DisableGoCollector: true, DisableProcessCollector: true})
	require.NoError(t, err)

	svc, err := New(db, cacheSvc, mod, zap.NewNop())
	require.NoError(t, err)

	return &fixture{
		db:           db,
		store:        store,
		cache:        cacheSvc,
		monitor:      mod,
		businesses:   svc.Businesses,
		offerings:    svc.Offerings,
		appointments: svc.Appointments,
		users:        svc.Users,
	}
}

func (f *fixture) createBusiness(t *testing.T, name string) *models.Business {
	t.Helper()
	business, err := f.businesses.Create(context.Background(), CreateBusinessInput{
		OwnerID:  "owner-1",
		Name:     name,
		Timezone: "Europe/Istanbul",
	})
	require.NoError(t, err)
	return business
}

func (f *fixture) createService(t *testing.T, businessID string) *models.Service {
	t.Helper()
	service, err := f.offerings.Create(context.Background(), businessID, CreateServiceInput{
		Name:            "Haircut",
		DurationMinutes: 30,
		PriceCents:      25000,
	})
	require.NoError(t, err)
	return service
}

func (f *fixture) cached(t *testing.T, key string) bool {
	t.Helper()
	_, ok, err := f.store.MemoryStore.Get(context.Background(), key)
	require.NoError(t, err)
	return ok
}
