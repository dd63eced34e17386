package fusion

import (
	"context"
	"testing"
	"time"
)

func TestJobRegistryPutGet(t *testing.T) {
	registry := NewJobRegistry(nil)
	ctx := context.Background()

	job := &Job{ID: "job-1", SceneID: "scene_1", Status: JobStatusQueued, CreatedAt: time.Now().UTC()}
	registry.Put(ctx, job)

	got, ok := registry.Get(ctx, "job-1")
	if !ok {
		t.Fatal("job missing after put")
	}
	if got.Status != JobStatusQueued || got.SceneID != "scene_1" {
		t.Errorf("job = %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("put did not stamp updated_at")
	}

	if _, ok := registry.Get(ctx, "job-unknown"); ok {
		t.Error("unknown job reported present")
	}
}

func TestJobRegistryGetReturnsCopy(t *testing.T) {
	registry := NewJobRegistry(nil)
	ctx := context.Background()

	registry.Put(ctx, &Job{ID: "job-copy", Status: JobStatusProcessing})

	first, _ := registry.Get(ctx, "job-copy")
	first.Status = JobStatusFailed

	second, _ := registry.Get(ctx, "job-copy")
	if second.Status != JobStatusProcessing {
		t.Errorf("mutating a snapshot leaked into the registry: %q", second.Status)
	}
}

func TestJobRegistryUpdate(t *testing.T) {
	registry := NewJobRegistry(nil)
	ctx := context.Background()

	registry.Put(ctx, &Job{ID: "job-2", Status: JobStatusQueued})

	ok := registry.Update(ctx, "job-2", func(j *Job) {
		j.Status = JobStatusProcessing
		j.Stage = StageVisualGen
		j.Progress = 40
	})
	if !ok {
		t.Fatal("update reported missing job")
	}

	job, _ := registry.Get(ctx, "job-2")
	if job.Status != JobStatusProcessing || job.Stage != StageVisualGen || job.Progress != 40 {
		t.Errorf("job after update = %+v", job)
	}

	if registry.Update(ctx, "job-unknown", func(j *Job) {}) {
		t.Error("update on unknown job reported success")
	}
}
