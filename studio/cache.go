package studio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultCacheTTL applies when a caller does not specify a window.
const DefaultCacheTTL = 60 * time.Minute

// CacheManager owns the durable TTL cache. Expiry is lazy: an expired entry
// is detected and removed the next time it is read, with ClearExpired as
// the bulk fallback run by maintenance.
type CacheManager struct {
	db *gorm.DB
}

// cacheID derives the row id deterministically from the caller-supplied
// key, normalizing anything outside [a-zA-Z0-9] so the same key always maps
// to the same row.
func cacheID(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return fmt.Sprintf("cache_%s", b.String())
}

// Set upserts the entry for key, resetting the access counter and stamping
// the expiry window. A zero or negative ttl stores an already-expired entry,
// which the next read treats as absent.
func (m *CacheManager) Set(ctx context.Context, key string, data any, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("studio: marshal cache payload for %q: %w", key, err)
	}

	now := time.Now().UTC()
	entry := CacheEntry{
		ID:           cacheID(key),
		Key:          key,
		Data:         datatypes.JSON(payload),
		ExpiresAt:    now.Add(ttl),
		AccessCount:  0,
		LastAccessed: now,
	}

	return m.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&entry).Error
}

// Get reads the entry for key. A read past the expiry deletes the entry as
// a side effect and reports absence. A live read increments the access
// counter and refreshes the last-accessed stamp before returning the data.
func (m *CacheManager) Get(ctx context.Context, key string) (datatypes.JSON, bool, error) {
	id := cacheID(key)

	var entry CacheEntry
	if err := m.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	now := time.Now().UTC()
	if now.After(entry.ExpiresAt) {
		if err := m.db.WithContext(ctx).Delete(&CacheEntry{}, "id = ?", id).Error; err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	err := m.db.WithContext(ctx).
		Model(&CacheEntry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_count":  gorm.Expr("access_count + 1"),
			"last_accessed": now,
		}).Error
	if err != nil {
		return nil, false, err
	}

	return entry.Data, true, nil
}

// ClearExpired bulk-deletes every entry whose expiry lies in the past.
// Running it twice in a row is harmless.
func (m *CacheManager) ClearExpired(ctx context.Context) (int64, error) {
	result := m.db.WithContext(ctx).
		Where("expires_at < ?", time.Now().UTC()).
		Delete(&CacheEntry{})
	return result.RowsAffected, result.Error
}
