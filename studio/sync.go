package studio

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SyncQueue is the append-only log of mutations awaiting remote
// propagation. It performs no network I/O itself: an external drain reads
// pending items, pushes them to the sync backend, and either removes the
// item or reports the failure back through IncrementRetry.
type SyncQueue struct {
	db *gorm.DB
}

// Enqueue records a pending remote operation with its payload snapshot.
func (q *SyncQueue) Enqueue(ctx context.Context, operation, entityType, entityID string, payload any) error {
	item := SyncQueueItem{
		ID:         newID("sync"),
		Operation:  operation,
		EntityType: entityType,
		EntityID:   entityID,
		Timestamp:  time.Now().UTC(),
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Printf("studio: marshal sync payload for %s %s failed: %v", entityType, entityID, err)
		} else {
			item.Payload = datatypes.JSON(data)
		}
	}

	return q.db.WithContext(ctx).Create(&item).Error
}

// Pending lists queued items oldest first, the order the drain should
// replay them in.
func (q *SyncQueue) Pending(ctx context.Context) ([]SyncQueueItem, error) {
	var items []SyncQueueItem
	if err := q.db.WithContext(ctx).Order("timestamp ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// IncrementRetry bumps the retry counter and records the last failure. An
// item that no longer exists (already drained or pruned) makes this a
// no-op: callers race the drain and must not treat the miss as an error.
func (q *SyncQueue) IncrementRetry(ctx context.Context, id, cause string) error {
	updates := map[string]any{
		"retry_count": gorm.Expr("retry_count + 1"),
	}
	if cause != "" {
		updates["last_error"] = cause
	}
	return q.db.WithContext(ctx).
		Model(&SyncQueueItem{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Remove drops a queue item after the drain confirmed the remote write.
func (q *SyncQueue) Remove(ctx context.Context, id string) error {
	return q.db.WithContext(ctx).Delete(&SyncQueueItem{}, "id = ?", id).Error
}

// pruneStale deletes items that are both older than the retention cutoff
// and past the retry ceiling. A young failed item or an old item still
// within its retry budget is kept.
func (q *SyncQueue) pruneStale(ctx context.Context, cutoff time.Time, retryCeiling int) (int64, error) {
	result := q.db.WithContext(ctx).
		Where("timestamp < ? AND retry_count > ?", cutoff, retryCeiling).
		Delete(&SyncQueueItem{})
	return result.RowsAffected, result.Error
}
