package studio

import (
	"time"

	"gorm.io/datatypes"
)

// Sync states a locally persisted project moves through. Every local
// mutation parks the record at StatusPending until the remote drain
// reconciles it.
const (
	SyncStatusSynced   = "synced"
	SyncStatusPending  = "pending"
	SyncStatusConflict = "conflict"
	SyncStatusError    = "error"
)

// Asset kinds. A scene holds at most one asset per kind at a time.
const (
	AssetKindText  = "text"
	AssetKindImage = "image"
	AssetKindVideo = "video"
	AssetKindAudio = "audio"
)

// Asset generation states.
const (
	AssetStatusGenerating = "generating"
	AssetStatusCompleted  = "completed"
	AssetStatusFailed     = "failed"
)

// Sync queue operations and entity discriminators.
const (
	SyncOpCreate = "create"
	SyncOpUpdate = "update"
	SyncOpDelete = "delete"

	EntityProject = "project"
	EntityScene   = "scene"
	EntityAsset   = "asset"
)

// Template kinds. Templates are stored for completeness; they carry no
// lifecycle beyond save/list/import.
const (
	TemplateTypeScene     = "scene"
	TemplateTypeProject   = "project"
	TemplateTypeStyle     = "style"
	TemplateTypeCharacter = "character"
)

// Project is the root entity of the studio store. Version and SyncStatus
// are maintained by the record store boundary, never by callers.
type Project struct {
	ID          string         `gorm:"primaryKey;size:96" json:"id"`
	Name        string         `gorm:"size:200;not null" json:"name"`
	Description *string        `gorm:"type:text" json:"description,omitempty"`
	Settings    datatypes.JSON `gorm:"type:json" json:"settings,omitempty"`
	SyncStatus  string         `gorm:"size:16;not null;default:'pending';index" json:"sync_status"`
	Version     int            `gorm:"not null;default:1" json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`
}

// TableName pins the storage table for Project.
func (Project) TableName() string {
	return "projects"
}

// Scene belongs to exactly one project. SortOrder is unique within a
// project and defines the render/display sequence.
type Scene struct {
	ID          string    `gorm:"primaryKey;size:96" json:"id"`
	ProjectID   string    `gorm:"size:96;not null;index" json:"project_id"`
	Title       string    `gorm:"size:200" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Emotion     string    `gorm:"size:64" json:"emotion"`
	Intensity   int       `gorm:"not null;default:0" json:"intensity"`
	Duration    float64   `gorm:"not null;default:0" json:"duration"`
	Style       string    `gorm:"size:64" json:"style"`
	Camera      string    `gorm:"size:64" json:"camera"`
	SortOrder   int       `gorm:"column:sort_order;not null;default:0" json:"order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName pins the storage table for Scene.
func (Scene) TableName() string {
	return "scenes"
}

// GeneratedAsset is a leaf record produced by the fusion pipeline. It keeps
// back-references to both its scene and project so cascade deletes and
// per-project exports stay index lookups.
type GeneratedAsset struct {
	ID         string         `gorm:"primaryKey;size:96" json:"id"`
	SceneID    string         `gorm:"size:96;not null;index" json:"scene_id"`
	ProjectID  string         `gorm:"size:96;not null;index" json:"project_id"`
	Kind       string         `gorm:"size:16;not null;index" json:"kind"`
	URL        *string        `gorm:"size:2048" json:"url,omitempty"`
	Data       *string        `gorm:"type:text" json:"data,omitempty"`
	Prompt     string         `gorm:"type:text" json:"prompt"`
	Model      string         `gorm:"size:100" json:"model"`
	Parameters datatypes.JSON `gorm:"type:json" json:"parameters,omitempty"`
	Status     string         `gorm:"size:16;not null;default:'generating'" json:"status"`
	Progress   *int           `json:"progress,omitempty"`
	Error      *string        `gorm:"type:text" json:"error,omitempty"`
	FileSize   *int64         `json:"file_size,omitempty"`
	Duration   *float64       `json:"duration,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// TableName pins the storage table for GeneratedAsset.
func (GeneratedAsset) TableName() string {
	return "generated_assets"
}

// SyncQueueItem records one pending remote mutation. Items are keyed by
// their own id, not the entity id: several pending operations may exist for
// a single entity at once.
type SyncQueueItem struct {
	ID         string         `gorm:"primaryKey;size:96" json:"id"`
	Operation  string         `gorm:"size:16;not null" json:"operation"`
	EntityType string         `gorm:"size:16;not null;index" json:"entity_type"`
	EntityID   string         `gorm:"size:96;not null;index" json:"entity_id"`
	Payload    datatypes.JSON `gorm:"type:json" json:"payload,omitempty"`
	Timestamp  time.Time      `gorm:"not null;index" json:"timestamp"`
	RetryCount int            `gorm:"not null;default:0" json:"retry_count"`
	LastError  *string        `gorm:"type:text" json:"last_error,omitempty"`
}

// TableName pins the storage table for SyncQueueItem.
func (SyncQueueItem) TableName() string {
	return "sync_queue"
}

// CacheEntry is a durable TTL cache row. The id is derived from the key, so
// writing the same key twice overwrites in place. Data keeps text affinity:
// payloads are opaque and may be bare JSON scalars, which a json-typed
// column coerces to numbers on sqlite.
type CacheEntry struct {
	ID           string         `gorm:"primaryKey;size:200" json:"id"`
	Key          string         `gorm:"size:200;not null" json:"key"`
	Data         datatypes.JSON `gorm:"type:text" json:"data,omitempty"`
	ExpiresAt    time.Time      `gorm:"not null;index" json:"expires_at"`
	AccessCount  int            `gorm:"not null;default:0" json:"access_count"`
	LastAccessed time.Time      `json:"last_accessed"`
}

// TableName pins the storage table for CacheEntry.
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// AnalyticsEvent is an append-only usage record scoped to one session.
type AnalyticsEvent struct {
	ID         string         `gorm:"primaryKey;size:96" json:"id"`
	EventType  string         `gorm:"size:64;not null;index" json:"event_type"`
	EntityType *string        `gorm:"size:16" json:"entity_type,omitempty"`
	EntityID   *string        `gorm:"size:96" json:"entity_id,omitempty"`
	Data       datatypes.JSON `gorm:"type:json" json:"data,omitempty"`
	Timestamp  time.Time      `gorm:"not null;index" json:"timestamp"`
	SessionID  string         `gorm:"size:96;not null;index" json:"session_id"`
	UserID     *uint          `json:"user_id,omitempty"`
}

// TableName pins the storage table for AnalyticsEvent.
func (AnalyticsEvent) TableName() string {
	return "analytics_events"
}

// UserTemplate is a shareable preset. Stored shape only; no lifecycle
// beyond save, list, and bundle import.
type UserTemplate struct {
	ID          string         `gorm:"primaryKey;size:96" json:"id"`
	Name        string         `gorm:"size:200;not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Author      string         `gorm:"size:128" json:"author"`
	Type        string         `gorm:"size:16;not null;index" json:"type"`
	Data        datatypes.JSON `gorm:"type:json" json:"data,omitempty"`
	Tags        datatypes.JSON `gorm:"type:json" json:"tags,omitempty"`
	Downloads   int            `gorm:"not null;default:0" json:"downloads"`
	Rating      float64        `gorm:"not null;default:0" json:"rating"`
	Public      bool           `gorm:"not null;default:false" json:"public"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TableName pins the storage table for UserTemplate.
func (UserTemplate) TableName() string {
	return "user_templates"
}
