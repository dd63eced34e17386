package studio

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// record is implemented by every domain entity persisted through the record
// store. The two stamping methods are the only places where timestamps,
// versions, and sync status are mutated: callers go through createRecord or
// updateRecord and cannot construct a persisted row without them.
type record interface {
	stampCreate(now time.Time)
	stampUpdate(now time.Time)
}

func (p *Project) stampCreate(now time.Time) {
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Version = 1
	p.SyncStatus = SyncStatusPending
}

func (p *Project) stampUpdate(now time.Time) {
	p.UpdatedAt = now
	p.Version++
	p.SyncStatus = SyncStatusPending
}

func (s *Scene) stampCreate(now time.Time) {
	s.CreatedAt = now
	s.UpdatedAt = now
}

func (s *Scene) stampUpdate(now time.Time) {
	s.UpdatedAt = now
}

func (a *GeneratedAsset) stampCreate(now time.Time) {
	a.CreatedAt = now
	a.UpdatedAt = now
}

func (a *GeneratedAsset) stampUpdate(now time.Time) {
	a.UpdatedAt = now
}

func (t *UserTemplate) stampCreate(now time.Time) {
	t.CreatedAt = now
}

func (t *UserTemplate) stampUpdate(time.Time) {}

// recordStore is the single durable write boundary of the studio module.
type recordStore struct {
	db *gorm.DB
}

// createRecord stamps creation metadata and inserts the record.
func (s *recordStore) createRecord(ctx context.Context, rec record) error {
	rec.stampCreate(time.Now().UTC())
	return s.db.WithContext(ctx).Create(rec).Error
}

// updateRecord stamps update metadata (updated_at always; version bump and
// sync status reset for projects) and persists the full record.
func (s *recordStore) updateRecord(ctx context.Context, rec record) error {
	rec.stampUpdate(time.Now().UTC())
	return s.db.WithContext(ctx).Save(rec).Error
}

// getProject returns (nil, ErrNotFound) for a missing id; it never panics
// or hides storage failures.
func (s *recordStore) getProject(ctx context.Context, id string) (*Project, error) {
	var project Project
	if err := s.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		return nil, mapStoreError(err)
	}
	return &project, nil
}

func (s *recordStore) getScene(ctx context.Context, id string) (*Scene, error) {
	var scene Scene
	if err := s.db.WithContext(ctx).First(&scene, "id = ?", id).Error; err != nil {
		return nil, mapStoreError(err)
	}
	return &scene, nil
}

func (s *recordStore) getAsset(ctx context.Context, id string) (*GeneratedAsset, error) {
	var asset GeneratedAsset
	if err := s.db.WithContext(ctx).First(&asset, "id = ?", id).Error; err != nil {
		return nil, mapStoreError(err)
	}
	return &asset, nil
}

func mapStoreError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
