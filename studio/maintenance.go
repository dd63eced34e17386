package studio

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	defaultMaintenanceInterval = time.Hour
	analyticsRetention         = 30 * 24 * time.Hour
	syncRetention              = 7 * 24 * time.Hour
	syncRetryCeiling           = 5

	maintenanceLockKey = "genx:studio:maintenance"
	maintenanceLockTTL = 10 * time.Minute
	maintenanceTimeout = 5 * time.Minute
)

// Maintenance sweeps the cache, analytics, and sync-queue collections on a
// fixed interval, independent of any request path. Each run is isolated:
// a failing step logs and the loop continues.
type Maintenance struct {
	db        *gorm.DB
	cache     *CacheManager
	sync      *SyncQueue
	analytics *Recorder
	redis     *redis.Client
	interval  time.Duration

	stop chan struct{}
	done chan struct{}
}

func newMaintenance(db *gorm.DB, cache *CacheManager, sync *SyncQueue, analytics *Recorder, redisClient *redis.Client, interval time.Duration) *Maintenance {
	if interval <= 0 {
		interval = defaultMaintenanceInterval
	}
	return &Maintenance{
		db:        db,
		cache:     cache,
		sync:      sync,
		analytics: analytics,
		redis:     redisClient,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the background loop. Call Stop to tear it down.
func (m *Maintenance) Start() {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.runOnce()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight run to finish.
func (m *Maintenance) Stop() {
	close(m.stop)
	<-m.done
}

// runOnce performs one sweep. When Redis is available a short-lived lock
// keeps multiple replicas from double-sweeping the shared collections; a
// lost or unavailable lock degrades to always running.
func (m *Maintenance) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	if m.redis != nil {
		acquired, err := m.redis.SetNX(ctx, maintenanceLockKey, time.Now().UTC().Format(time.RFC3339), maintenanceLockTTL).Result()
		if err != nil {
			log.Printf("studio: maintenance lock unavailable, sweeping anyway: %v", err)
		} else if !acquired {
			return
		} else {
			defer func() {
				if err := m.redis.Del(context.Background(), maintenanceLockKey).Err(); err != nil {
					log.Printf("studio: release maintenance lock failed: %v", err)
				}
			}()
		}
	}

	if removed, err := m.cache.ClearExpired(ctx); err != nil {
		log.Printf("studio: clear expired cache failed: %v", err)
	} else if removed > 0 {
		log.Printf("studio: maintenance removed %d expired cache entries", removed)
	}

	if removed, err := m.analytics.pruneOlderThan(ctx, time.Now().UTC().Add(-analyticsRetention)); err != nil {
		log.Printf("studio: prune analytics failed: %v", err)
	} else if removed > 0 {
		log.Printf("studio: maintenance removed %d analytics events", removed)
	}

	if removed, err := m.sync.pruneStale(ctx, time.Now().UTC().Add(-syncRetention), syncRetryCeiling); err != nil {
		log.Printf("studio: prune sync queue failed: %v", err)
	} else if removed > 0 {
		log.Printf("studio: maintenance removed %d stale sync items", removed)
	}

	m.reportOrphans(ctx)
}

// reportOrphans counts children left behind by an interrupted cascade.
// Orphans are an accepted transient state awaiting reconciliation, so they
// are logged, never deleted here.
func (m *Maintenance) reportOrphans(ctx context.Context) {
	var orphanScenes int64
	err := m.db.WithContext(ctx).
		Model(&Scene{}).
		Where("project_id NOT IN (?)", m.db.Model(&Project{}).Select("id")).
		Count(&orphanScenes).Error
	if err != nil {
		log.Printf("studio: count orphan scenes failed: %v", err)
	}

	var orphanAssets int64
	err = m.db.WithContext(ctx).
		Model(&GeneratedAsset{}).
		Where("scene_id NOT IN (?)", m.db.Model(&Scene{}).Select("id")).
		Count(&orphanAssets).Error
	if err != nil {
		log.Printf("studio: count orphan assets failed: %v", err)
	}

	if orphanScenes > 0 || orphanAssets > 0 {
		log.Printf("studio: maintenance found %d orphan scenes and %d orphan assets awaiting reconciliation", orphanScenes, orphanAssets)
	}
}
