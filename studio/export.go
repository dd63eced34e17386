package studio

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// exportFormatVersion stamps export payloads so a future reader can detect
// older snapshots.
const exportFormatVersion = 1

// ProjectExport is the portable snapshot of one project: the project row,
// its scenes in display order, and the flattened union of every asset
// belonging to those scenes.
type ProjectExport struct {
	FormatVersion int              `json:"format_version"`
	ExportedAt    time.Time        `json:"exported_at"`
	Project       Project          `json:"project"`
	Scenes        []Scene          `json:"scenes"`
	Assets        []GeneratedAsset `json:"assets"`
}

// ExportProject assembles the snapshot for one project. It fails with
// ErrNotFound when the project is absent. Beyond the project_viewed event
// implied by the project read, exporting is a pure read.
func (s *Service) ExportProject(ctx context.Context, id string) (*ProjectExport, error) {
	project, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	scenes, err := s.GetProjectScenes(ctx, id)
	if err != nil {
		return nil, err
	}

	assets := make([]GeneratedAsset, 0)
	for _, scene := range scenes {
		sceneAssets, err := s.GetAssetsByScene(ctx, scene.ID)
		if err != nil {
			return nil, err
		}
		assets = append(assets, sceneAssets...)
	}

	return &ProjectExport{
		FormatVersion: exportFormatVersion,
		ExportedAt:    time.Now().UTC(),
		Project:       *project,
		Scenes:        scenes,
		Assets:        assets,
	}, nil
}

// ImportProject materializes an exported snapshot as a brand-new project.
// Incoming ids are discarded: the project gets a fresh id and a name marked
// as imported, every scene is remapped to a fresh id under the new project,
// and each asset follows its scene through that mapping. An asset whose
// original scene id has no mapping entry is dropped silently rather than
// failing the import. Import only fails when the top-level payload is
// structurally unusable.
func (s *Service) ImportProject(ctx context.Context, payload ProjectExport) (*Project, error) {
	name := strings.TrimSpace(payload.Project.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: import payload has no project name", ErrValidation)
	}

	project := &Project{
		ID:          newID("project"),
		Name:        name + " (Imported)",
		Description: payload.Project.Description,
		Settings:    payload.Project.Settings,
	}
	if err := s.store.createRecord(ctx, project); err != nil {
		return nil, err
	}

	sceneIDMap := make(map[string]string, len(payload.Scenes))
	for _, incoming := range payload.Scenes {
		scene := incoming
		oldID := scene.ID
		scene.ID = newID("scene")
		scene.ProjectID = project.ID
		if err := s.store.createRecord(ctx, &scene); err != nil {
			return nil, err
		}
		if oldID != "" {
			sceneIDMap[oldID] = scene.ID
		}
	}

	imported, dropped := 0, 0
	for _, incoming := range payload.Assets {
		newSceneID, ok := sceneIDMap[incoming.SceneID]
		if !ok {
			dropped++
			continue
		}
		asset := incoming
		asset.ID = newID("asset")
		asset.SceneID = newSceneID
		asset.ProjectID = project.ID
		if err := s.store.createRecord(ctx, &asset); err != nil {
			return nil, err
		}
		imported++
	}
	if dropped > 0 {
		log.Printf("studio: import of %s dropped %d assets with unmapped scene references", project.ID, dropped)
	}

	s.enqueueSync(ctx, SyncOpCreate, EntityProject, project.ID, project)
	s.analytics.Record(ctx, eventProjectImported, EntityProject, project.ID, map[string]any{
		"scenes":         len(payload.Scenes),
		"assets":         imported,
		"dropped_assets": dropped,
	})

	return project, nil
}
