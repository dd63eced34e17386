package studio

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service orchestrates the record store, sync queue, and analytics recorder
// into the project/scene/asset lifecycle operations. It never caches
// records across calls: every operation re-reads or writes the record
// store, which stays the single source of truth.
//
// Mutations flow one direction: durable store write, then sync queue
// enqueue, then analytics event. Remote propagation is only deferred, never
// awaited; a local mutation completes before this returns regardless of
// network health.
type Service struct {
	db        *gorm.DB
	store     *recordStore
	syncQueue *SyncQueue
	analytics *Recorder
	media     MediaJanitor
}

// MediaJanitor frees archived payloads once the asset row pointing at them
// is gone. Implementations ignore URLs outside their own store.
type MediaJanitor interface {
	Remove(ctx context.Context, mediaURL string) error
}

// NewService wires a facade over the given database handle.
func NewService(db *gorm.DB) *Service {
	return &Service{
		db:        db,
		store:     &recordStore{db: db},
		syncQueue: &SyncQueue{db: db},
		analytics: &Recorder{db: db, session: &sessionSource{}},
	}
}

// SyncQueue exposes the queue for the external drain collaborator.
func (s *Service) SyncQueue() *SyncQueue {
	return s.syncQueue
}

// Analytics exposes the recorder, mainly for session inspection endpoints.
func (s *Service) Analytics() *Recorder {
	return s.analytics
}

// AttachMediaJanitor opts asset deletion and slot eviction into releasing
// archived payloads. Without one, deletes leave objects behind.
func (s *Service) AttachMediaJanitor(janitor MediaJanitor) {
	s.media = janitor
}

func (s *Service) releaseMedia(ctx context.Context, asset *GeneratedAsset) {
	if s.media == nil || asset == nil || asset.URL == nil || *asset.URL == "" {
		return
	}
	if err := s.media.Remove(ctx, *asset.URL); err != nil {
		// The row is already gone; a leaked object is the maintenance
		// operator's problem, not the caller's.
		log.Printf("studio: release media for asset %s failed: %v", asset.ID, err)
	}
}

func (s *Service) enqueueSync(ctx context.Context, operation, entityType, entityID string, payload any) {
	if err := s.syncQueue.Enqueue(ctx, operation, entityType, entityID, payload); err != nil {
		// The local write already succeeded; a lost queue item means the
		// entity stays pending until a later mutation re-enqueues it.
		log.Printf("studio: enqueue sync %s for %s %s failed: %v", operation, entityType, entityID, err)
	}
}

// ---- Projects ----

// CreateProjectInput carries caller-supplied project fields. Identity,
// timestamps, version, and sync status are assigned by the store.
type CreateProjectInput struct {
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Settings    json.RawMessage `json:"settings"`
}

// CreateProject persists a new project, enqueues its sync create, and
// records a project_created event.
func (s *Service) CreateProject(ctx context.Context, input CreateProjectInput) (*Project, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrValidation)
	}

	project := &Project{
		ID:          newID("project"),
		Name:        name,
		Description: input.Description,
	}
	if len(input.Settings) > 0 {
		project.Settings = datatypes.JSON(input.Settings)
	}

	if err := s.store.createRecord(ctx, project); err != nil {
		return nil, err
	}

	s.enqueueSync(ctx, SyncOpCreate, EntityProject, project.ID, project)
	s.analytics.Record(ctx, eventProjectCreated, EntityProject, project.ID, map[string]any{"name": project.Name})

	return project, nil
}

// GetProject reads one project. A successful read records a project_viewed
// analytics event, so callers polling projects should use GetAllProjects
// instead.
func (s *Service) GetProject(ctx context.Context, id string) (*Project, error) {
	project, err := s.store.getProject(ctx, id)
	if err != nil {
		return nil, err
	}

	s.analytics.Record(ctx, eventProjectViewed, EntityProject, project.ID, nil)
	return project, nil
}

// UpdateProjectInput lists the fields eligible for partial update. Nil
// pointers leave the stored value untouched.
type UpdateProjectInput struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Settings    json.RawMessage `json:"settings"`
}

// UpdateProject merges the partial input into the stored record. The
// version bump and sync status reset happen at the store boundary, not
// here, so no call path can skip them.
func (s *Service) UpdateProject(ctx context.Context, id string, input UpdateProjectInput) (*Project, error) {
	project, err := s.store.getProject(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: project name cannot be empty", ErrValidation)
		}
		project.Name = name
	}
	if input.Description != nil {
		project.Description = input.Description
	}
	if len(input.Settings) > 0 {
		project.Settings = datatypes.JSON(input.Settings)
	}

	if err := s.store.updateRecord(ctx, project); err != nil {
		return nil, err
	}

	s.enqueueSync(ctx, SyncOpUpdate, EntityProject, project.ID, project)
	s.analytics.Record(ctx, eventProjectUpdated, EntityProject, project.ID, map[string]any{"version": project.Version})

	return project, nil
}

// DeleteProject removes a project and everything it owns: assets under each
// scene first, then the scenes, then the project row. Children go before
// the parent so an interrupted cascade never leaves a child pointing at a
// parent that also appears deleted. The sequence is deliberately not a
// transaction (per-key writes only); a create racing the cascade window can
// still insert a child after its parent is gone, which the maintenance
// orphan report surfaces.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	project, err := s.store.getProject(ctx, id)
	if err != nil {
		return err
	}

	scenes, err := s.GetProjectScenes(ctx, id)
	if err != nil {
		return err
	}

	for _, scene := range scenes {
		if err := s.deleteSceneCascade(ctx, scene.ID); err != nil {
			return err
		}
	}

	if err := s.db.WithContext(ctx).Delete(&Project{}, "id = ?", id).Error; err != nil {
		return err
	}

	s.enqueueSync(ctx, SyncOpDelete, EntityProject, id, project)
	s.analytics.Record(ctx, eventProjectDeleted, EntityProject, id, map[string]any{"scenes": len(scenes)})

	return nil
}

// GetAllProjects returns every project, most recently touched first. This
// is the canonical project-list ordering, not insertion order.
func (s *Service) GetAllProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// SearchProjects matches the query case-insensitively as a substring of
// name or description. A project matching both fields appears once.
func (s *Service) SearchProjects(ctx context.Context, query string) ([]Project, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	var projects []Project
	err := s.db.WithContext(ctx).
		Where("LOWER(name) LIKE ? OR LOWER(COALESCE(description, '')) LIKE ?", pattern, pattern).
		Find(&projects).Error
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// ---- Scenes ----

// CreateSceneInput carries caller-supplied scene fields. A nil Order
// appends the scene after the project's current last position.
type CreateSceneInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Emotion     string  `json:"emotion"`
	Intensity   int     `json:"intensity"`
	Duration    float64 `json:"duration"`
	Style       string  `json:"style"`
	Camera      string  `json:"camera"`
	Order       *int    `json:"order"`
}

// CreateScene persists a scene under an existing project. An unresolvable
// project id is rejected before any write.
func (s *Service) CreateScene(ctx context.Context, projectID string, input CreateSceneInput) (*Scene, error) {
	if _, err := s.store.getProject(ctx, projectID); err != nil {
		if err == ErrNotFound {
			return nil, fmt.Errorf("%w: project %s does not exist", ErrValidation, projectID)
		}
		return nil, err
	}

	if input.Intensity < 0 || input.Intensity > 100 {
		return nil, fmt.Errorf("%w: intensity must be between 0 and 100", ErrValidation)
	}
	if input.Duration < 0 {
		return nil, fmt.Errorf("%w: duration cannot be negative", ErrValidation)
	}

	order := 0
	if input.Order != nil {
		order = *input.Order
	} else {
		var maxOrder sql.NullInt64
		err := s.db.WithContext(ctx).
			Model(&Scene{}).
			Where("project_id = ?", projectID).
			Select("MAX(sort_order)").
			Scan(&maxOrder).Error
		if err != nil {
			return nil, err
		}
		if maxOrder.Valid {
			order = int(maxOrder.Int64) + 1
		}
	}

	scene := &Scene{
		ID:          newID("scene"),
		ProjectID:   projectID,
		Title:       input.Title,
		Description: input.Description,
		Emotion:     input.Emotion,
		Intensity:   input.Intensity,
		Duration:    input.Duration,
		Style:       input.Style,
		Camera:      input.Camera,
		SortOrder:   order,
	}

	if err := s.store.createRecord(ctx, scene); err != nil {
		return nil, err
	}

	s.enqueueSync(ctx, SyncOpCreate, EntityScene, scene.ID, scene)
	s.analytics.Record(ctx, eventSceneCreated, EntityScene, scene.ID, map[string]any{"project_id": projectID})

	return scene, nil
}

// GetScene reads one scene and records a scene_viewed event, mirroring
// GetProject.
func (s *Service) GetScene(ctx context.Context, id string) (*Scene, error) {
	scene, err := s.store.getScene(ctx, id)
	if err != nil {
		return nil, err
	}

	s.analytics.Record(ctx, eventSceneViewed, EntityScene, scene.ID, nil)
	return scene, nil
}

// UpdateSceneInput lists the fields eligible for partial scene update.
type UpdateSceneInput struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Emotion     *string  `json:"emotion"`
	Intensity   *int     `json:"intensity"`
	Duration    *float64 `json:"duration"`
	Style       *string  `json:"style"`
	Camera      *string  `json:"camera"`
	Order       *int     `json:"order"`
}

// UpdateScene merges the partial input into the stored scene.
func (s *Service) UpdateScene(ctx context.Context, id string, input UpdateSceneInput) (*Scene, error) {
	scene, err := s.store.getScene(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		scene.Title = *input.Title
	}
	if input.Description != nil {
		scene.Description = *input.Description
	}
	if input.Emotion != nil {
		scene.Emotion = *input.Emotion
	}
	if input.Intensity != nil {
		if *input.Intensity < 0 || *input.Intensity > 100 {
			return nil, fmt.Errorf("%w: intensity must be between 0 and 100", ErrValidation)
		}
		scene.Intensity = *input.Intensity
	}
	if input.Duration != nil {
		if *input.Duration < 0 {
			return nil, fmt.Errorf("%w: duration cannot be negative", ErrValidation)
		}
		scene.Duration = *input.Duration
	}
	if input.Style != nil {
		scene.Style = *input.Style
	}
	if input.Camera != nil {
		scene.Camera = *input.Camera
	}
	if input.Order != nil {
		scene.SortOrder = *input.Order
	}

	if err := s.store.updateRecord(ctx, scene); err != nil {
		return nil, err
	}

	s.enqueueSync(ctx, SyncOpUpdate, EntityScene, scene.ID, scene)
	s.analytics.Record(ctx, eventSceneUpdated, EntityScene, scene.ID, nil)

	return scene, nil
}

// DeleteScene removes a scene and its assets, assets first.
func (s *Service) DeleteScene(ctx context.Context, id string) error {
	scene, err := s.store.getScene(ctx, id)
	if err != nil {
		return err
	}

	if err := s.deleteSceneCascade(ctx, id); err != nil {
		return err
	}

	s.enqueueSync(ctx, SyncOpDelete, EntityScene, id, scene)
	s.analytics.Record(ctx, eventSceneDeleted, EntityScene, id, map[string]any{"project_id": scene.ProjectID})

	return nil
}

// deleteSceneCascade removes a scene's assets and then the scene row. It is
// shared between DeleteScene and the project cascade, which re-enqueues and
// records at its own granularity.
func (s *Service) deleteSceneCascade(ctx context.Context, sceneID string) error {
	if err := s.db.WithContext(ctx).Delete(&GeneratedAsset{}, "scene_id = ?", sceneID).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(&Scene{}, "id = ?", sceneID).Error
}

// GetProjectScenes lists a project's scenes in display order.
func (s *Service) GetProjectScenes(ctx context.Context, projectID string) ([]Scene, error) {
	var scenes []Scene
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("sort_order ASC").
		Find(&scenes).Error
	if err != nil {
		return nil, err
	}
	return scenes, nil
}

// SceneOrder assigns one scene its new position.
type SceneOrder struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
}

// ReorderScenes applies the order updates in the given sequence; a scene id
// repeated in the list keeps its last assignment. Scenes not belonging to
// the project are skipped. Each applied scene enqueues its own sync update,
// plus one aggregate project update carrying the full order list; analytics
// gets a single aggregate event.
func (s *Service) ReorderScenes(ctx context.Context, projectID string, orders []SceneOrder) error {
	if _, err := s.store.getProject(ctx, projectID); err != nil {
		return err
	}

	applied := 0
	for _, entry := range orders {
		scene, err := s.store.getScene(ctx, entry.ID)
		if err != nil {
			if err == ErrNotFound {
				log.Printf("studio: reorder skipped missing scene %s", entry.ID)
				continue
			}
			return err
		}
		if scene.ProjectID != projectID {
			log.Printf("studio: reorder skipped scene %s outside project %s", entry.ID, projectID)
			continue
		}

		scene.SortOrder = entry.Order
		if err := s.store.updateRecord(ctx, scene); err != nil {
			return err
		}
		s.enqueueSync(ctx, SyncOpUpdate, EntityScene, scene.ID, scene)
		applied++
	}

	s.enqueueSync(ctx, SyncOpUpdate, EntityProject, projectID, orders)
	s.analytics.Record(ctx, eventScenesReordered, EntityProject, projectID, map[string]any{"count": applied})

	return nil
}

// ---- Assets ----

// SaveAssetInput carries caller-supplied asset fields.
type SaveAssetInput struct {
	SceneID    string          `json:"scene_id"`
	Kind       string          `json:"kind"`
	URL        *string         `json:"url"`
	Data       *string         `json:"data"`
	Prompt     string          `json:"prompt"`
	Model      string          `json:"model"`
	Parameters json.RawMessage `json:"parameters"`
	Status     string          `json:"status"`
	Progress   *int            `json:"progress"`
	Error      *string         `json:"error"`
	FileSize   *int64          `json:"file_size"`
	Duration   *float64        `json:"duration"`
}

func validAssetKind(kind string) bool {
	switch kind {
	case AssetKindText, AssetKindImage, AssetKindVideo, AssetKindAudio:
		return true
	default:
		return false
	}
}

// SaveAsset persists a generated asset under an existing scene. A scene
// holds at most one asset per kind: saving into an occupied slot replaces
// the previous asset of that kind.
func (s *Service) SaveAsset(ctx context.Context, input SaveAssetInput) (*GeneratedAsset, error) {
	if !validAssetKind(input.Kind) {
		return nil, fmt.Errorf("%w: unknown asset kind %q", ErrValidation, input.Kind)
	}

	scene, err := s.store.getScene(ctx, input.SceneID)
	if err != nil {
		if err == ErrNotFound {
			return nil, fmt.Errorf("%w: scene %s does not exist", ErrValidation, input.SceneID)
		}
		return nil, err
	}

	// Slot-map semantics: evict the current occupant of this kind, if any,
	// releasing its archived payload along with the row.
	var occupant GeneratedAsset
	err = s.db.WithContext(ctx).
		First(&occupant, "scene_id = ? AND kind = ?", input.SceneID, input.Kind).Error
	switch {
	case err == nil:
		s.releaseMedia(ctx, &occupant)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	err = s.db.WithContext(ctx).
		Delete(&GeneratedAsset{}, "scene_id = ? AND kind = ?", input.SceneID, input.Kind).Error
	if err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = AssetStatusGenerating
	}

	asset := &GeneratedAsset{
		ID:        newID("asset"),
		SceneID:   scene.ID,
		ProjectID: scene.ProjectID,
		Kind:      input.Kind,
		URL:       input.URL,
		Data:      input.Data,
		Prompt:    input.Prompt,
		Model:     input.Model,
		Status:    status,
		Progress:  input.Progress,
		Error:     input.Error,
		FileSize:  input.FileSize,
		Duration:  input.Duration,
	}
	if len(input.Parameters) > 0 {
		asset.Parameters = datatypes.JSON(input.Parameters)
	}

	if err := s.store.createRecord(ctx, asset); err != nil {
		return nil, err
	}

	s.enqueueSync(ctx, SyncOpCreate, EntityAsset, asset.ID, asset)
	s.analytics.Record(ctx, eventAssetSaved, EntityAsset, asset.ID, map[string]any{"kind": asset.Kind, "scene_id": asset.SceneID})

	return asset, nil
}

// GetAsset reads one asset.
func (s *Service) GetAsset(ctx context.Context, id string) (*GeneratedAsset, error) {
	return s.store.getAsset(ctx, id)
}

// UpdateAssetInput lists the fields eligible for partial asset update.
type UpdateAssetInput struct {
	URL      *string  `json:"url"`
	Data     *string  `json:"data"`
	Status   *string  `json:"status"`
	Progress *int     `json:"progress"`
	Error    *string  `json:"error"`
	FileSize *int64   `json:"file_size"`
	Duration *float64 `json:"duration"`
}

// UpdateAsset merges the partial input into the stored asset.
func (s *Service) UpdateAsset(ctx context.Context, id string, input UpdateAssetInput) (*GeneratedAsset, error) {
	asset, err := s.store.getAsset(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.URL != nil {
		asset.URL = input.URL
	}
	if input.Data != nil {
		asset.Data = input.Data
	}
	if input.Status != nil {
		asset.Status = *input.Status
	}
	if input.Progress != nil {
		asset.Progress = input.Progress
	}
	if input.Error != nil {
		asset.Error = input.Error
	}
	if input.FileSize != nil {
		asset.FileSize = input.FileSize
	}
	if input.Duration != nil {
		asset.Duration = input.Duration
	}

	if err := s.store.updateRecord(ctx, asset); err != nil {
		return nil, err
	}

	s.enqueueSync(ctx, SyncOpUpdate, EntityAsset, asset.ID, asset)
	s.analytics.Record(ctx, eventAssetUpdated, EntityAsset, asset.ID, nil)

	return asset, nil
}

// DeleteAsset removes one asset. Assets are leaves; nothing cascades.
func (s *Service) DeleteAsset(ctx context.Context, id string) error {
	asset, err := s.store.getAsset(ctx, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&GeneratedAsset{}, "id = ?", id).Error; err != nil {
		return err
	}
	s.releaseMedia(ctx, asset)

	s.enqueueSync(ctx, SyncOpDelete, EntityAsset, id, asset)
	s.analytics.Record(ctx, eventAssetDeleted, EntityAsset, id, map[string]any{"kind": asset.Kind})

	return nil
}

// GetAssetsByType lists every asset of one kind, newest first.
func (s *Service) GetAssetsByType(ctx context.Context, kind string) ([]GeneratedAsset, error) {
	if !validAssetKind(kind) {
		return nil, fmt.Errorf("%w: unknown asset kind %q", ErrValidation, kind)
	}
	var assets []GeneratedAsset
	err := s.db.WithContext(ctx).
		Where("kind = ?", kind).
		Order("created_at DESC").
		Find(&assets).Error
	if err != nil {
		return nil, err
	}
	return assets, nil
}

// GetAssetsByScene lists a scene's assets.
func (s *Service) GetAssetsByScene(ctx context.Context, sceneID string) ([]GeneratedAsset, error) {
	var assets []GeneratedAsset
	err := s.db.WithContext(ctx).
		Where("scene_id = ?", sceneID).
		Order("created_at DESC").
		Find(&assets).Error
	if err != nil {
		return nil, err
	}
	return assets, nil
}
