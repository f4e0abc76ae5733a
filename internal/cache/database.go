package cache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/randevubu/randevubu-server/internal/models"
)

const (
	likeEscape      = '!'
	deleteBatchSize = 500
)

var errDatabaseStoreNil = errors.New("cache: database store not initialised")

// DatabaseStore implements Store on the primary SQL database. Pattern deletes are translated
// to LIKE queries and executed in bounded batches.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseStore constructs a database-backed Store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db, now: time.Now}
}

// Get retrieves a value by key, respecting expiry.
func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, errDatabaseStoreNil
	}
	ctx = ensureContext(ctx)

	var entry models.CacheEntry
	err := s.db.WithContext(ctx).Take(&entry, "cache_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if !entry.ExpiresAt.IsZero() && s.now().After(entry.ExpiresAt) {
		_, _ = s.Delete(ctx, key)
		return nil, false, nil
	}

	return entry.Value, true, nil
}

// Set upserts the value for a given key with expiry.
func (s *DatabaseStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return errDatabaseStoreNil
	}

	entry := models.CacheEntry{
		Key:       key,
		Value:     value,
		ExpiresAt: s.expiry(ttl),
	}

	return s.db.WithContext(ensureContext(ctx)).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).Create(&entry).Error
}

// Delete removes keys from the store.
func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if s == nil {
		return 0, errDatabaseStoreNil
	}
	if len(keys) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ensureContext(ctx)).
		Where("cache_key IN ?", keys).
		Delete(&models.CacheEntry{})
	return result.RowsAffected, result.Error
}

// DeletePattern deletes matching rows in primary-key batches so a large invalidation never
// holds one long-running lock on the table.
func (s *DatabaseStore) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	if s == nil {
		return 0, errDatabaseStoreNil
	}
	ctx = ensureContext(ctx)
	like := globToLike(pattern)

	var deleted int64
	for {
		var keys []string
		err := s.db.WithContext(ctx).
			Model(&models.CacheEntry{}).
			Where("cache_key LIKE ? ESCAPE '!'", like).
			Order("cache_key").
			Limit(deleteBatchSize).
			Pluck("cache_key", &keys).Error
		if err != nil {
			return deleted, err
		}
		if len(keys) == 0 {
			return deleted, nil
		}

		n, err := s.Delete(ctx, keys...)
		deleted += n
		if err != nil {
			return deleted, err
		}
		if len(keys) < deleteBatchSize {
			return deleted, nil
		}
	}
}

// Stats counts live cache entries of the current key version and the bytes they hold. Lock
// and rate-limit rows share the table but are not counted.
func (s *DatabaseStore) Stats(ctx context.Context) (StoreStats, error) {
	if s == nil {
		return StoreStats{}, errDatabaseStoreNil
	}

	var row struct {
		EntryCount int64
		ByteCount  int64
	}
	err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.CacheEntry{}).
		Select("COUNT(*) AS entry_count, COALESCE(SUM(LENGTH(value)), 0) AS byte_count").
		Where("cache_key LIKE ? ESCAPE '!'", globToLike(cacheEntryPattern)).
		Where("expires_at > ? OR expires_at IS NULL OR expires_at = ?", s.now(), time.Time{}).
		Scan(&row).Error
	if err != nil {
		return StoreStats{}, err
	}
	return StoreStats{Backend: "database", Keys: row.EntryCount, MemoryBytes: row.ByteCount}, nil
}

func (s *DatabaseStore) Ping(ctx context.Context) error {
	if s == nil {
		return errDatabaseStoreNil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ensureContext(ctx))
}

// Close is a no-op: the database handle is owned by the caller.
func (s *DatabaseStore) Close() error {
	return nil
}

// TryLock inserts a lock row, replacing it only when the previous holder's lease expired.
func (s *DatabaseStore) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if s == nil {
		return false, errDatabaseStoreNil
	}
	now := s.now()
	acquired := false

	err := s.db.WithContext(ensureContext(ctx)).Transaction(func(tx *gorm.DB) error {
		var entry models.CacheEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&entry, "cache_key = ?", key).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			entry = models.CacheEntry{Key: key, Value: []byte(token), ExpiresAt: now.Add(ttl)}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			acquired = true
			return nil
		case err != nil:
			return err
		}

		if !entry.ExpiresAt.IsZero() && entry.ExpiresAt.After(now) {
			return nil
		}
		entry.Value = []byte(token)
		entry.ExpiresAt = now.Add(ttl)
		if err := tx.Save(&entry).Error; err != nil {
			return err
		}
		acquired = true
		return nil
	})
	return acquired, err
}

func (s *DatabaseStore) Unlock(ctx context.Context, key, token string) error {
	if s == nil {
		return errDatabaseStoreNil
	}
	return s.db.WithContext(ensureContext(ctx)).
		Where("cache_key = ? AND value = ?", key, []byte(token)).
		Delete(&models.CacheEntry{}).Error
}

// IncrementWithTTL atomically increments a counter for the supplied key.
func (s *DatabaseStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s == nil {
		return 0, 0, errDatabaseStoreNil
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.now()
	expiry := now.Add(window)
	var count int64

	err := s.db.WithContext(ensureContext(ctx)).Transaction(func(tx *gorm.DB) error {
		var entry models.CacheEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&entry, "cache_key = ?", key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			count = 1
			entry = models.CacheEntry{
				Key:       key,
				Value:     encodeCounter(count),
				ExpiresAt: expiry,
			}
			return tx.Create(&entry).Error
		}
		if err != nil {
			return err
		}

		if entry.ExpiresAt.Before(now) {
			count = 1
			entry.ExpiresAt = expiry
		} else {
			count = decodeCounter(entry.Value) + 1
			expiry = entry.ExpiresAt
		}
		entry.Value = encodeCounter(count)

		return tx.Save(&entry).Error
	})
	if err != nil {
		return 0, 0, err
	}

	return count, expiry.Sub(now), nil
}

// PurgeExpired removes rows whose expiry has passed.
func (s *DatabaseStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errDatabaseStoreNil
	}
	result := s.db.WithContext(ensureContext(ctx)).
		Where("expires_at < ? AND expires_at <> ?", s.now(), time.Time{}).
		Delete(&models.CacheEntry{})
	return result.RowsAffected, result.Error
}

func (s *DatabaseStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

// globToLike translates a glob into a LIKE pattern using '!' as the escape character.
// '*' and '?' map to '%' and '_'; everything else, including '[' and ']', is literal.
func globToLike(pattern string) string {
	var builder strings.Builder
	builder.Grow(len(pattern) + 4)
	for _, r := range pattern {
		switch r {
		case '*':
			builder.WriteByte('%')
		case '?':
			builder.WriteByte('_')
		case '%', '_', likeEscape:
			builder.WriteRune(likeEscape)
			builder.WriteRune(r)
		default:
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

func encodeCounter(count int64) []byte {
	return []byte(strconv.FormatInt(count, 10))
}

func decodeCounter(value []byte) int64 {
	count, _ := strconv.ParseInt(string(value), 10, 64)
	return count
}
