package fusion

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"genx_back/cache"
)

const (
	jobMirrorTTL     = time.Hour
	jobMirrorTimeout = 300 * time.Millisecond
)

// JobRegistry tracks generation jobs in memory and, when Redis is
// available, mirrors them so sibling replicas can answer status queries.
type JobRegistry struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	client *redis.Client
}

// NewJobRegistry creates a registry. The Redis client may be nil, in
// which case job state is process-local only.
func NewJobRegistry(client *redis.Client) *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*Job), client: client}
}

func (r *JobRegistry) mirrorKey(jobID string) string {
	return cache.Key("fusion", "job", jobID)
}

func (r *JobRegistry) mirrorContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), jobMirrorTimeout)
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= jobMirrorTimeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, jobMirrorTimeout)
}

// Put stores or replaces a job snapshot.
func (r *JobRegistry) Put(ctx context.Context, job *Job) {
	if job == nil || job.ID == "" {
		return
	}

	snapshot := *job
	snapshot.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	r.jobs[snapshot.ID] = &snapshot
	r.mu.Unlock()

	r.mirror(ctx, &snapshot)
}

// Update applies fn to the stored job under the registry lock and
// mirrors the new snapshot. Returns false when the job is unknown.
func (r *JobRegistry) Update(ctx context.Context, jobID string, fn func(*Job)) bool {
	r.mu.Lock()
	job, ok := r.jobs[jobID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
	snapshot := *job
	r.mu.Unlock()

	r.mirror(ctx, &snapshot)
	return true
}

// Get returns a copy of the job, consulting the Redis mirror when the
// job is unknown locally.
func (r *JobRegistry) Get(ctx context.Context, jobID string) (*Job, bool) {
	r.mu.RLock()
	job, ok := r.jobs[jobID]
	if ok {
		snapshot := *job
		r.mu.RUnlock()
		return &snapshot, true
	}
	r.mu.RUnlock()

	if r.client == nil {
		return nil, false
	}

	mirrorCtx, cancel := r.mirrorContext(ctx)
	defer cancel()

	data, err := r.client.Get(mirrorCtx, r.mirrorKey(jobID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("fusion: read job mirror failed: %v", err)
		}
		return nil, false
	}

	var mirrored Job
	if err := json.Unmarshal(data, &mirrored); err != nil {
		log.Printf("fusion: decode job mirror failed: %v", err)
		return nil, false
	}
	return &mirrored, true
}

func (r *JobRegistry) mirror(ctx context.Context, job *Job) {
	if r.client == nil {
		return
	}

	payload, err := json.Marshal(job)
	if err != nil {
		log.Printf("fusion: marshal job mirror payload failed: %v", err)
		return
	}

	mirrorCtx, cancel := r.mirrorContext(ctx)
	defer cancel()

	if err := r.client.Set(mirrorCtx, r.mirrorKey(job.ID), payload, jobMirrorTTL).Err(); err != nil {
		log.Printf("fusion: write job mirror failed: %v", err)
	}
}
