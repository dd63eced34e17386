package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	err = db.AutoMigrate(
		&Project{}, &Scene{}, &GeneratedAsset{},
		&SyncQueueItem{}, &CacheEntry{}, &AnalyticsEvent{}, &UserTemplate{},
	)
	if err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(newTestDB(t))
}

func mustCreateProject(t *testing.T, svc *Service, name string) *Project {
	t.Helper()
	project, err := svc.CreateProject(context.Background(), CreateProjectInput{Name: name})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return project
}

func mustCreateScene(t *testing.T, svc *Service, projectID string, input CreateSceneInput) *Scene {
	t.Helper()
	scene, err := svc.CreateScene(context.Background(), projectID, input)
	if err != nil {
		t.Fatalf("create scene: %v", err)
	}
	return scene
}

func countSyncItems(t *testing.T, svc *Service) int {
	t.Helper()
	items, err := svc.SyncQueue().Pending(context.Background())
	if err != nil {
		t.Fatalf("list pending sync items: %v", err)
	}
	return len(items)
}

func TestCreateProjectInitializesVersionAndSyncStatus(t *testing.T) {
	svc := newTestService(t)

	project := mustCreateProject(t, svc, "Wheat Field")

	if project.Version != 1 {
		t.Errorf("version = %d, want 1", project.Version)
	}
	if project.SyncStatus != SyncStatusPending {
		t.Errorf("sync status = %q, want %q", project.SyncStatus, SyncStatusPending)
	}
	if !strings.HasPrefix(project.ID, "project_") {
		t.Errorf("id %q missing project_ prefix", project.ID)
	}

	items, err := svc.SyncQueue().Pending(context.Background())
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("sync items = %d, want 1", len(items))
	}
	if items[0].Operation != SyncOpCreate || items[0].EntityType != EntityProject {
		t.Errorf("sync item = %s/%s, want create/project", items[0].Operation, items[0].EntityType)
	}
}

func TestCreateProjectRejectsBlankName(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateProject(context.Background(), CreateProjectInput{Name: "   "})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if countSyncItems(t, svc) != 0 {
		t.Error("rejected create must not enqueue sync work")
	}
}

func TestUpdateProjectBumpsVersionAndResetsSyncStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	project := mustCreateProject(t, svc, "Original")

	// Simulate a completed remote drain.
	if err := svc.db.Model(&Project{}).Where("id = ?", project.ID).
		Update("sync_status", SyncStatusSynced).Error; err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	name := "Renamed"
	updated, err := svc.UpdateProject(ctx, project.ID, UpdateProjectInput{Name: &name})
	if err != nil {
		t.Fatalf("update project: %v", err)
	}

	if updated.Version != 2 {
		t.Errorf("version = %d, want 2", updated.Version)
	}
	if updated.SyncStatus != SyncStatusPending {
		t.Errorf("sync status = %q, want pending after update", updated.SyncStatus)
	}
	if updated.Name != "Renamed" {
		t.Errorf("name = %q, want Renamed", updated.Name)
	}
}

func TestGetAllProjectsOrdersByRecency(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first := mustCreateProject(t, svc, "First")
	second := mustCreateProject(t, svc, "Second")

	// Age the first project so the list order is unambiguous.
	if err := svc.db.Model(&Project{}).Where("id = ?", first.ID).
		Update("updated_at", time.Now().UTC().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("age project: %v", err)
	}

	projects, err := svc.GetAllProjects(ctx)
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 2 || projects[0].ID != second.ID {
		t.Fatalf("list head = %v, want the untouched project first", projectIDs(projects))
	}

	// Touching the older project moves it back to the head.
	name := "First Again"
	if _, err := svc.UpdateProject(ctx, first.ID, UpdateProjectInput{Name: &name}); err != nil {
		t.Fatalf("update project: %v", err)
	}

	projects, err = svc.GetAllProjects(ctx)
	if err != nil {
		t.Fatalf("relist projects: %v", err)
	}
	if projects[0].ID != first.ID {
		t.Errorf("list head after touch = %v, want the updated project first", projectIDs(projects))
	}
}

func projectIDs(projects []Project) []string {
	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	return ids
}

func TestUpdateProjectPartialMergeKeepsOtherFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	desc := "a boy runs through wheat"
	project, err := svc.CreateProject(ctx, CreateProjectInput{Name: "Keep", Description: &desc})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "Keep v2"
	updated, err := svc.UpdateProject(ctx, project.ID, UpdateProjectInput{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Description == nil || *updated.Description != desc {
		t.Errorf("description lost on partial update: %v", updated.Description)
	}
}

func TestGetProjectRecordsViewEvent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	project := mustCreateProject(t, svc, "Viewed")
	if _, err := svc.GetProject(ctx, project.ID); err != nil {
		t.Fatalf("get project: %v", err)
	}

	var count int64
	err := svc.db.Model(&AnalyticsEvent{}).
		Where("event_type = ? AND entity_id = ?", eventProjectViewed, project.ID).
		Count(&count).Error
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Errorf("project_viewed events = %d, want 1", count)
	}
}

func TestGetProjectMissingReturnsNotFound(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.GetProject(context.Background(), "project_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteProjectCascadesScenesAndAssets(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	project := mustCreateProject(t, svc, "Doomed")
	sceneA := mustCreateScene(t, svc, project.ID, CreateSceneInput{Title: "A"})
	sceneB := mustCreateScene(t, svc, project.ID, CreateSceneInput{Title: "B"})
	for _, sceneID := range []string{sceneA.ID, sceneB.ID} {
		if _, err := svc.SaveAsset(ctx, SaveAssetInput{SceneID: sceneID, Kind: AssetKindImage}); err != nil {
			t.Fatalf("save asset: %v", err)
		}
	}

	if err := svc.DeleteProject(ctx, project.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}

	var scenes, assets, projects int64
	svc.db.Model(&Scene{}).Where("project_id = ?", project.ID).Count(&scenes)
	svc.db.Model(&GeneratedAsset{}).Where("project_id = ?", project.ID).Count(&assets)
	svc.db.Model(&Project{}).Where("id = ?", project.ID).Count(&projects)
	if scenes != 0 || assets != 0 || projects != 0 {
		t.Errorf("leftovers after cascade: scenes=%d assets=%d projects=%d", scenes, assets, projects)
	}
}

func TestSearchProjectsMatchesNameAndDescriptionOnce(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	desc := "epic WHEAT harvest"
	if _, err := svc.CreateProject(ctx, CreateProjectInput{Name: "wheat field", Description: &desc}); err != nil {
		t.Fatalf("create: %v", err)
	}
	mustCreateProject(t, svc, "city nights")

	results, err := svc.SearchProjects(ctx, "Wheat")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1 (match on both fields must not duplicate)", len(results))
	}
	if results[0].Name != "wheat field" {
		t.Errorf("matched %q, want wheat field", results[0].Name)
	}

	none, err := svc.SearchProjects(ctx, "volcano")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("results = %d, want 0", len(none))
	}
}

func TestCreateSceneValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	project := mustCreateProject(t, svc, "Scenes")

	tests := []struct {
		name      string
		projectID string
		input     CreateSceneInput
	}{
		{"missing project", "project_missing", CreateSceneInput{Title: "x"}},
		{"intensity above range", project.ID, CreateSceneInput{Intensity: 101}},
		{"intensity below range", project.ID, CreateSceneInput{Intensity: -1}},
		{"negative duration", project.ID, CreateSceneInput{Duration: -0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateScene(ctx, tt.projectID, tt.input); !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreateSceneAppendsToEndWhenOrderOmitted(t *testing.T) {
	svc := newTestService(t)
	project := mustCreateProject(t, svc, "Ordering")

	first := mustCreateScene(t, svc, project.ID, CreateSceneInput{Title: "first"})
	second := mustCreateScene(t, svc, project.ID, CreateSceneInput{Title: "second"})
	explicit := 10
	third := mustCreateScene(t, svc, project.ID, CreateSceneInput{Title: "third", Order: &explicit})
	fourth := mustCreateScene(t, svc, project.ID, CreateSceneInput{Title: "fourth"})

	if first.SortOrder != 0 || second.SortOrder != 1 {
		t.Errorf("orders = %d,%d, want 0,1", first.SortOrder, second.SortOrder)
	}
	if third.SortOrder != 10 {
		t.Errorf("explicit order = %d, want 10", third.SortOrder)
	}
	if fourth.SortOrder != 11 {
		t.Errorf("append after explicit = %d, want 11", fourth.SortOrder)
	}
}

func TestReorderScenesSwapsAndSkipsForeign(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	project := mustCreateProject(t, svc, "Swap")
	other := mustCreateProject(t, svc, "Other")
	s1 := mustCreateScene(t, svc, project.ID, CreateSceneInput{Title: "s1"})
	s2 := mustCreateScene(t, svc, project.ID, CreateSceneInput{Title: "s2"})
	foreign := mustCreateScene(t, svc, other.ID, CreateSceneInput{Title: "foreign"})

	before := countSyncItems(t, svc)

	err := svc.ReorderScenes(ctx, project.ID, []SceneOrder{
		{ID: s2.ID, Order: 0},
		{ID: s1.ID, Order: 1},
		{ID: foreign.ID, Order: 2},
		{ID: "scene_missing", Order: 3},
	})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}

	scenes, err := svc.GetProjectScenes(ctx, project.ID)
	if err != nil {
		t.Fatalf("list scenes: %v", err)
	}
	if len(scenes) != 2 || scenes[0].ID != s2.ID || scenes[1].ID != s1.ID {
		t.Errorf("scene order after reorder = %v, want [s2 s1]", sceneIDs(scenes))
	}

	reloaded, err := svc.store.getScene(ctx, foreign.ID)
	if err != nil {
		t.Fatalf("reload foreign scene: %v", err)
	}
	if reloaded.SortOrder != 0 {
		t.Errorf("foreign scene order = %d, want untouched 0", reloaded.SortOrder)
	}

	// Per-scene updates plus one aggregate project update. Skipped entries
	// enqueue nothing.
	if got := countSyncItems(t, svc) - before; got != 3 {
		t.Errorf("sync items added by reorder = %d, want 3", got)
	}
	var sceneUpdates, projectUpdates int64
	svc.db.Model(&SyncQueueItem{}).
		Where("operation = ? AND entity_type = ?", SyncOpUpdate, EntityScene).
		Count(&sceneUpdates)
	svc.db.Model(&SyncQueueItem{}).
		Where("operation = ? AND entity_type = ? AND entity_id = ?", SyncOpUpdate, EntityProject, project.ID).
		Count(&projectUpdates)
	if sceneUpdates != 2 || projectUpdates != 1 {
		t.Errorf("sync breakdown = %d scene updates, %d project updates, want 2 and 1", sceneUpdates, projectUpdates)
	}
}

func sceneIDs(scenes []Scene) []string {
	ids := make([]string, len(scenes))
	for i, s := range scenes {
		ids[i] = s.ID
	}
	return ids
}

type recordingJanitor struct {
	removed []string
}

func (j *recordingJanitor) Remove(_ context.Context, mediaURL string) error {
	j.removed = append(j.removed, mediaURL)
	return nil
}

func TestAssetDeletionReleasesArchivedMedia(t *testing.T) {
	svc := newTestService(t)
	janitor := &recordingJanitor{}
	svc.AttachMediaJanitor(janitor)
	ctx := context.Background()

	project := mustCreateProject(t, svc, "Media")
	scene := mustCreateScene(t, svc, project.ID, CreateSceneInput{Title: "clip"})

	firstURL := "http://media.local/genx/media/first.png"
	if _, err := svc.SaveAsset(ctx, SaveAssetInput{SceneID: scene.ID, Kind: AssetKindImage, URL: &firstURL}); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if len(janitor.removed) != 0 {
		t.Fatalf("removed after first save = %v, want none", janitor.removed)
	}

	// Replacing the slot occupant releases its payload.
	secondURL := "http://media.local/genx/media/second.png"
	replacement, err := svc.SaveAsset(ctx, SaveAssetInput{SceneID: scene.ID, Kind: AssetKindImage, URL: &secondURL})
	if err != nil {
		t.Fatalf("save replacement: %v", err)
	}
	if len(janitor.removed) != 1 || janitor.removed[0] != firstURL {
		t.Errorf("removed after eviction = %v, want [%s]", janitor.removed, firstURL)
	}

	if err := svc.DeleteAsset(ctx, replacement.ID); err != nil {
		t.Fatalf("delete asset: %v", err)
	}
	if len(janitor.removed) != 2 || janitor.removed[1] != secondURL {
		t.Errorf("removed after delete = %v, want [%s %s]", janitor.removed, firstURL, secondURL)
	}
}

func TestSaveAssetReplacesSlotOccupant(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	project := mustCreateProject(t, svc, "Slots")
	scene := mustCreateScene(t, svc, project.ID, CreateSceneInput{Title: "slotted"})

	first, err := svc.SaveAsset(ctx, SaveAssetInput{SceneID: scene.ID, Kind: AssetKindImage})
	if err != nil {
		t.Fatalf("save first: %v", err)
	}
	second, err := svc.SaveAsset(ctx, SaveAssetInput{SceneID: scene.ID, Kind: AssetKindImage})
	if err != nil {
		t.Fatalf("save second: %v", err)
	}
	if _, err := svc.SaveAsset(ctx, SaveAssetInput{SceneID: scene.ID, Kind: AssetKindAudio}); err != nil {
		t.Fatalf("save audio: %v", err)
	}

	assets, err := svc.GetAssetsByScene(ctx, scene.ID)
	if err != nil {
		t.Fatalf("list assets: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("assets = %d, want 2 (one image slot, one audio slot)", len(assets))
	}
	if _, err := svc.GetAsset(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("evicted asset still readable: %v", err)
	}
	if _, err := svc.GetAsset(ctx, second.ID); err != nil {
		t.Errorf("replacement asset unreadable: %v", err)
	}
}

func TestSaveAssetValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	project := mustCreateProject(t, svc, "AssetChecks")
	scene := mustCreateScene(t, svc, project.ID, CreateSceneInput{Title: "s"})

	if _, err := svc.SaveAsset(ctx, SaveAssetInput{SceneID: scene.ID, Kind: "hologram"}); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown kind err = %v, want ErrValidation", err)
	}
	if _, err := svc.SaveAsset(ctx, SaveAssetInput{SceneID: "scene_missing", Kind: AssetKindText}); !errors.Is(err, ErrValidation) {
		t.Errorf("missing scene err = %v, want ErrValidation", err)
	}

	asset, err := svc.SaveAsset(ctx, SaveAssetInput{SceneID: scene.ID, Kind: AssetKindText})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if asset.Status != AssetStatusGenerating {
		t.Errorf("default status = %q, want generating", asset.Status)
	}
	if asset.ProjectID != project.ID {
		t.Errorf("asset project back-reference = %q, want %q", asset.ProjectID, project.ID)
	}
}

func TestGetAssetsByTypeRejectsUnknownKind(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.GetAssetsByType(context.Background(), "smellovision"); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestMutatingOperationsEnqueueOneSyncItemEach(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	project := mustCreateProject(t, svc, "Counted") // 1
	scene := mustCreateScene(t, svc, project.ID, CreateSceneInput{Title: "s"}) // 2
	asset, err := svc.SaveAsset(ctx, SaveAssetInput{SceneID: scene.ID, Kind: AssetKindImage}) // 3
	if err != nil {
		t.Fatalf("save asset: %v", err)
	}

	status := AssetStatusCompleted
	if _, err := svc.UpdateAsset(ctx, asset.ID, UpdateAssetInput{Status: &status}); err != nil { // 4
		t.Fatalf("update asset: %v", err)
	}
	if err := svc.DeleteAsset(ctx, asset.ID); err != nil { // 5
		t.Fatalf("delete asset: %v", err)
	}
	if err := svc.DeleteScene(ctx, scene.ID); err != nil { // 6
		t.Fatalf("delete scene: %v", err)
	}
	if err := svc.DeleteProject(ctx, project.ID); err != nil { // 7
		t.Fatalf("delete project: %v", err)
	}

	if got := countSyncItems(t, svc); got != 7 {
		t.Errorf("sync items = %d, want 7 (one per mutating call)", got)
	}
}

func TestNewIDShape(t *testing.T) {
	id := newID("scene")
	parts := strings.SplitN(id, "_", 3)
	if len(parts) != 3 || parts[0] != "scene" {
		t.Fatalf("id %q does not match prefix_millis_random", id)
	}
	if len(parts[2]) != 8 {
		t.Errorf("random suffix %q length = %d, want 8", parts[2], len(parts[2]))
	}
	if newID("scene") == id {
		t.Error("consecutive ids collided")
	}
}

func TestAnalyticsSessionTokenIsStable(t *testing.T) {
	svc := newTestService(t)
	first := svc.Analytics().session.Token()
	second := svc.Analytics().session.Token()
	if first == "" || first != second {
		t.Fatalf("session token not stable: %q vs %q", first, second)
	}
	if !strings.HasPrefix(first, "session_") {
		t.Errorf("session token %q missing session_ prefix", first)
	}
}

func TestRecorderCarriesUserFromContext(t *testing.T) {
	svc := newTestService(t)
	ctx := WithUserID(context.Background(), 42)

	mustCreateProjectCtx(t, svc, ctx, "Attributed")

	var event AnalyticsEvent
	err := svc.db.Where("event_type = ?", eventProjectCreated).First(&event).Error
	if err != nil {
		t.Fatalf("load event: %v", err)
	}
	if event.UserID == nil || *event.UserID != 42 {
		t.Errorf("event user = %v, want 42", event.UserID)
	}
	if event.SessionID == "" {
		t.Error("event missing session id")
	}
}

func mustCreateProjectCtx(t *testing.T, svc *Service, ctx context.Context, name string) *Project {
	t.Helper()
	project, err := svc.CreateProject(ctx, CreateProjectInput{Name: name})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return project
}
