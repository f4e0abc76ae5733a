package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultLockTTL        = 10 * time.Second
	defaultLockWait       = 2 * time.Second
	defaultPollInterval   = 50 * time.Millisecond
	defaultStaleFactor    = 5
	defaultMinStaleTTL    = 5 * time.Minute
	defaultRefreshTimeout = 30 * time.Second
	unlockTimeout         = time.Second

	lockKeyPrefix  = "lock:"
	staleKeySuffix = ":~stale"
)

// Source tells the caller how Guard.Get produced its value.
type Source int

const (
	SourceNone Source = iota
	// SourceHit means the value was read from the store.
	SourceHit
	// SourceComputed means this caller ran the compute function.
	SourceComputed
	// SourceShared means the caller joined a computation started by another caller.
	SourceShared
	// SourceStale means an expired copy was served while a refresh runs in the background.
	SourceStale
	// SourceRemote means another process filled the key while this one waited on its lock.
	SourceRemote
)

func (s Source) String() string {
	switch s {
	case SourceHit:
		return "hit"
	case SourceComputed:
		return "computed"
	case SourceShared:
		return "shared"
	case SourceStale:
		return "stale"
	case SourceRemote:
		return "remote"
	default:
		return "none"
	}
}

// ComputeFunc produces the encoded value for a missing key.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// GuardOptions tunes a single Guard.Get call.
type GuardOptions struct {
	StaleWhileRevalidate bool
}

// GuardConfig configures a Guard. Zero values select the defaults.
type GuardConfig struct {
	JitterPercent float64
	// LockTTL bounds how long a cross-process recompute lock is held.
	LockTTL time.Duration
	// LockWait is how long a caller that lost the lock polls for the winner's value.
	LockWait     time.Duration
	PollInterval time.Duration
	// Stale copies live StaleFactor times longer than the value, and at least MinStaleTTL.
	StaleFactor    int
	MinStaleTTL    time.Duration
	RefreshTimeout time.Duration
	// DisableDistributedLock skips the store lock even when the store supports one.
	DisableDistributedLock bool
	Logger                 *zap.Logger
}

// LockStats exposes the guard's in-flight bookkeeping.
type LockStats struct {
	ActiveLocks         int64 `json:"active_locks"`
	InFlight            int64 `json:"in_flight"`
	Coalesced           int64 `json:"coalesced"`
	StaleServed         int64 `json:"stale_served"`
	LockWaits           int64 `json:"lock_waits"`
	BackgroundRefreshes int64 `json:"background_refreshes"`
}

// Guard implements get-or-compute with stampede protection. Concurrent misses for one key
// in this process share a single computation; across processes a store lock, when available,
// keeps recomputation to one winner while the others wait briefly for its result.
type Guard struct {
	store  Store
	locker Locker
	cfg    GuardConfig
	log    *zap.Logger
	group  singleflight.Group

	baseCtx context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	closed     bool
	wg         sync.WaitGroup
	refreshing sync.Map

	activeLocks atomic.Int64
	inFlight    atomic.Int64
	coalesced   atomic.Int64
	staleServed atomic.Int64
	lockWaits   atomic.Int64
	refreshes   atomic.Int64
}

type fillResult struct {
	data   []byte
	source Source
}

// NewGuard constructs a Guard over store.
func NewGuard(store Store, cfg GuardConfig) *Guard {
	if cfg.JitterPercent < 0 {
		cfg.JitterPercent = 0
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.StaleFactor <= 0 {
		cfg.StaleFactor = defaultStaleFactor
	}
	if cfg.MinStaleTTL <= 0 {
		cfg.MinStaleTTL = defaultMinStaleTTL
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = defaultRefreshTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	g := &Guard{store: store, cfg: cfg, log: log}
	if locker, ok := store.(Locker); ok && !cfg.DisableDistributedLock {
		g.locker = locker
	}
	g.baseCtx, g.cancel = context.WithCancel(context.Background())
	return g
}

// Get returns the value stored under key, computing and storing it on a miss.
// Store read failures are returned as *StoreError; compute errors are returned unchanged.
// A cancelled ctx releases the caller but not the shared computation.
func (g *Guard) Get(ctx context.Context, key string, compute ComputeFunc, ttl time.Duration, opts GuardOptions) ([]byte, Source, error) {
	ctx = ensureContext(ctx)

	data, ok, err := g.store.Get(ctx, key)
	if err != nil {
		return nil, SourceNone, &StoreError{Op: "get", Key: key, Err: err}
	}
	if ok {
		return data, SourceHit, nil
	}

	if opts.StaleWhileRevalidate {
		stale, found, err := g.store.Get(ctx, staleKey(key))
		switch {
		case err != nil:
			g.log.Debug("stale copy lookup failed", zap.String("key", key), zap.Error(err))
		case found:
			g.staleServed.Add(1)
			g.refreshInBackground(key, compute, ttl, opts)
			return stale, SourceStale, nil
		}
	}

	return g.load(ctx, key, compute, ttl, opts)
}

func (g *Guard) load(ctx context.Context, key string, compute ComputeFunc, ttl time.Duration, opts GuardOptions) ([]byte, Source, error) {
	detached := context.WithoutCancel(ctx)
	led := false
	ch := g.group.DoChan(key, func() (interface{}, error) {
		led = true
		return g.fill(detached, key, compute, ttl, opts)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, SourceNone, res.Err
		}
		filled := res.Val.(fillResult)
		if !led {
			g.coalesced.Add(1)
			if filled.source == SourceComputed {
				return filled.data, SourceShared, nil
			}
		}
		return filled.data, filled.source, nil
	case <-ctx.Done():
		return nil, SourceNone, ctx.Err()
	}
}

func (g *Guard) fill(ctx context.Context, key string, compute ComputeFunc, ttl time.Duration, opts GuardOptions) (fillResult, error) {
	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	// A flight that finished between our miss and joining the group has already stored the value.
	if data, ok, err := g.store.Get(ctx, key); err == nil && ok {
		return fillResult{data: data, source: SourceHit}, nil
	}

	token, locked, contended := g.acquire(ctx, key)
	if locked {
		defer g.release(key, token)
	}
	if contended {
		if data, ok := g.awaitRemote(ctx, key); ok {
			return fillResult{data: data, source: SourceRemote}, nil
		}
		g.log.Debug("lock holder did not fill key in time; computing locally", zap.String("key", key))
	}

	data, err := compute(ctx)
	if err != nil {
		return fillResult{}, err
	}
	if err := g.write(ctx, key, data, ttl, opts.StaleWhileRevalidate); err != nil {
		g.log.Warn("cache write after compute failed", zap.String("key", key), zap.Error(err))
	}
	return fillResult{data: data, source: SourceComputed}, nil
}

// write stores data with a jittered TTL and, when requested, a longer-lived stale copy.
func (g *Guard) write(ctx context.Context, key string, data []byte, ttl time.Duration, withStale bool) error {
	if err := g.store.Set(ctx, key, data, AddJitter(ttl, g.cfg.JitterPercent)); err != nil {
		return err
	}
	if !withStale {
		return nil
	}
	staleTTL := ttl * time.Duration(g.cfg.StaleFactor)
	if staleTTL < g.cfg.MinStaleTTL {
		staleTTL = g.cfg.MinStaleTTL
	}
	return g.store.Set(ctx, staleKey(key), data, AddJitter(staleTTL, g.cfg.JitterPercent))
}

func (g *Guard) acquire(ctx context.Context, key string) (token string, locked, contended bool) {
	if g.locker == nil {
		return "", false, false
	}
	token = uuid.NewString()
	ok, err := g.locker.TryLock(ctx, lockKey(key), token, g.cfg.LockTTL)
	if err != nil {
		g.log.Debug("recompute lock unavailable", zap.String("key", key), zap.Error(err))
		return "", false, false
	}
	if !ok {
		g.lockWaits.Add(1)
		return "", false, true
	}
	g.activeLocks.Add(1)
	return token, true, false
}

func (g *Guard) release(key, token string) {
	defer g.activeLocks.Add(-1)
	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()
	if err := g.locker.Unlock(ctx, lockKey(key), token); err != nil {
		g.log.Debug("recompute lock release failed", zap.String("key", key), zap.Error(err))
	}
}

func (g *Guard) awaitRemote(ctx context.Context, key string) ([]byte, bool) {
	deadline := time.NewTimer(g.cfg.LockWait)
	defer deadline.Stop()
	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-deadline.C:
			return nil, false
		case <-ticker.C:
			data, ok, err := g.store.Get(ctx, key)
			if err != nil {
				return nil, false
			}
			if ok {
				return data, true
			}
		}
	}
}

func (g *Guard) refreshInBackground(key string, compute ComputeFunc, ttl time.Duration, opts GuardOptions) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	if _, busy := g.refreshing.LoadOrStore(key, struct{}{}); busy {
		return
	}

	g.refreshes.Add(1)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.refreshing.Delete(key)

		ctx, cancel := context.WithTimeout(g.baseCtx, g.cfg.RefreshTimeout)
		defer cancel()

		_, err, _ := g.group.Do(key, func() (interface{}, error) {
			return g.fill(ctx, key, compute, ttl, opts)
		})
		if err != nil {
			g.log.Warn("background cache refresh failed", zap.String("key", key), zap.Error(err))
		}
	}()
}

// LockStats returns a snapshot of the guard's counters.
func (g *Guard) LockStats() LockStats {
	return LockStats{
		ActiveLocks:         g.activeLocks.Load(),
		InFlight:            g.inFlight.Load(),
		Coalesced:           g.coalesced.Load(),
		StaleServed:         g.staleServed.Load(),
		LockWaits:           g.lockWaits.Load(),
		BackgroundRefreshes: g.refreshes.Load(),
	}
}

// Close cancels background refreshes and waits for them to return.
func (g *Guard) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()
}

func lockKey(key string) string {
	return lockKeyPrefix + key
}

func staleKey(key string) string {
	return key + staleKeySuffix
}
