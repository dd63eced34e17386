package studio

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event types recorded by the facade.
const (
	eventProjectCreated  = "project_created"
	eventProjectViewed   = "project_viewed"
	eventProjectUpdated  = "project_updated"
	eventProjectDeleted  = "project_deleted"
	eventProjectImported = "project_imported"
	eventSceneCreated    = "scene_created"
	eventSceneViewed     = "scene_viewed"
	eventSceneUpdated    = "scene_updated"
	eventSceneDeleted    = "scene_deleted"
	eventScenesReordered = "scenes_reordered"
	eventAssetSaved      = "asset_saved"
	eventAssetUpdated    = "asset_updated"
	eventAssetDeleted    = "asset_deleted"
)

// sessionSource hands out the process-wide session token. The token is
// created lazily on first use and reused for the remainder of the process;
// it is never rotated mid-session.
type sessionSource struct {
	once  sync.Once
	token string
}

// Token returns the session token, creating it on first access.
func (s *sessionSource) Token() string {
	s.once.Do(func() {
		s.token = newID("session")
	})
	return s.token
}

// Recorder appends analytics events. Recording is a side effect of domain
// operations whose outcome is already durable, so failures are logged and
// swallowed rather than surfaced to the caller.
type Recorder struct {
	db      *gorm.DB
	session *sessionSource
}

// Record appends one event stamped with the session token and, when the
// context carries one, the acting user id.
func (r *Recorder) Record(ctx context.Context, eventType, entityType, entityID string, data map[string]any) {
	event := AnalyticsEvent{
		ID:        newID("event"),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		SessionID: r.session.Token(),
		UserID:    userIDFromContext(ctx),
	}

	if entityType != "" {
		value := entityType
		event.EntityType = &value
	}
	if entityID != "" {
		value := entityID
		event.EntityID = &value
	}
	if len(data) > 0 {
		payload, err := json.Marshal(data)
		if err != nil {
			log.Printf("studio: marshal analytics payload for %s failed: %v", eventType, err)
		} else {
			event.Data = datatypes.JSON(payload)
		}
	}

	if err := r.db.WithContext(ctx).Create(&event).Error; err != nil {
		log.Printf("studio: record analytics event %s failed: %v", eventType, err)
	}
}

// EventsBySession lists events for one session, oldest first.
func (r *Recorder) EventsBySession(ctx context.Context, sessionID string) ([]AnalyticsEvent, error) {
	var events []AnalyticsEvent
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// pruneOlderThan deletes events past the retention window.
func (r *Recorder) pruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Delete(&AnalyticsEvent{})
	return result.RowsAffected, result.Error
}
