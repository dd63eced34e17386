package fusion

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"genx_back/cache"
	"genx_back/storage"
	"genx_back/studio"
)

const defaultStageDelay = 500 * time.Millisecond

// Module exposes the generation pipeline over HTTP.
type Module struct {
	engine  *Engine
	jobs    *JobRegistry
	studio  *studio.Service
	media   *storage.MediaStorage
	timeout time.Duration
}

// RegisterRoutes mounts the generation endpoints. The studio service may
// be nil, in which case completed jobs are not persisted as scene assets.
func RegisterRoutes(router *gin.Engine, studioService *studio.Service) (*Module, error) {
	redisClient, err := cache.GetRedisClient()
	if err != nil {
		log.Printf("fusion: redis unavailable, job registry is process-local: %v", err)
		redisClient = nil
	}

	media, err := storage.NewMediaStorageFromEnv()
	if err != nil {
		log.Printf("fusion: object storage unavailable, manifests stay inline: %v", err)
		media = nil
	}
	if studioService != nil && media.Enabled() {
		// Asset deletes and slot evictions release their archived payloads.
		studioService.AttachMediaJanitor(media)
	}

	module := &Module{
		engine:  NewEngine(stageDelayFromEnv()),
		jobs:    NewJobRegistry(redisClient),
		studio:  studioService,
		media:   media,
		timeout: 2 * time.Minute,
	}

	router.GET("/health", module.handleHealth)

	api := router.Group("/api/v1")
	api.POST("/generate/multimodal", module.handleGenerate)
	api.GET("/jobs/:id/status", module.handleJobStatus)
	api.GET("/jobs/:id/stream", module.handleJobStream)
	api.POST("/enhance/prompt", module.handleEnhancePrompt)
	api.GET("/fusion/models", module.handleListModels)

	return module, nil
}

func stageDelayFromEnv() time.Duration {
	raw := strings.TrimSpace(os.Getenv("FUSION_STAGE_DELAY_MS"))
	if raw == "" {
		return defaultStageDelay
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms < 0 {
		log.Printf("fusion: invalid FUSION_STAGE_DELAY_MS %q, using default", raw)
		return defaultStageDelay
	}
	return time.Duration(ms) * time.Millisecond
}

func (m *Module) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": "1.0.0",
		"components": gin.H{
			"model_fusion": "operational",
			"pollinations": "connected",
			"job_registry": map[bool]string{true: "redis", false: "memory"}[cache.Enabled()],
		},
	})
}

func (m *Module) handleGenerate(c *gin.Context) {
	var req GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid generation request: " + err.Error()})
		return
	}

	job := &Job{
		ID:        uuid.NewString(),
		SceneID:   req.SceneID,
		Status:    JobStatusQueued,
		Progress:  0,
		CreatedAt: time.Now().UTC(),
	}
	m.jobs.Put(c.Request.Context(), job)

	go m.runJob(job.ID, req)

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":         job.ID,
		"status":         JobStatusProcessing,
		"estimated_time": 30,
		"progress_url":   "/api/v1/jobs/" + job.ID + "/status",
	})
}

// runJob drives one pipeline run to completion in the background.
func (m *Module) runJob(jobID string, req GenerationRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.jobs.Update(ctx, jobID, func(j *Job) {
		j.Status = JobStatusProcessing
	})

	result, err := m.engine.Process(ctx, req, func(stage string, percent int) {
		m.jobs.Update(ctx, jobID, func(j *Job) {
			j.Stage = stage
			j.Progress = percent
		})
	})
	if err != nil {
		log.Printf("fusion: job %s failed: %v", jobID, err)
		m.jobs.Update(ctx, jobID, func(j *Job) {
			j.Status = JobStatusFailed
			j.Error = err.Error()
		})
		return
	}

	m.archiveManifest(ctx, req, result)
	m.persistAssets(ctx, req, result)

	m.jobs.Update(ctx, jobID, func(j *Job) {
		j.Status = JobStatusCompleted
		j.Stage = ""
		j.Progress = 100
		j.Result = result
	})
}

// archiveManifest uploads the fused result as a JSON manifest to object
// storage, when one is configured, and records its URL on the result.
func (m *Module) archiveManifest(ctx context.Context, req GenerationRequest, result *GenerationResult) {
	if !m.media.Enabled() || result == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		log.Printf("fusion: marshal manifest for scene %s failed: %v", req.SceneID, err)
		return
	}

	manifestURL, err := m.media.Upload(ctx, payload, "application/json", "manifests", req.SceneID)
	if err != nil {
		log.Printf("fusion: archive manifest for scene %s failed: %v", req.SceneID, err)
		return
	}
	result.ManifestURL = manifestURL
}

// persistAssets writes the generated outputs into the scene's asset
// slots. Failures are logged and do not fail the job: the result still
// carries the provider URLs.
func (m *Module) persistAssets(ctx context.Context, req GenerationRequest, result *GenerationResult) {
	if m.studio == nil || result == nil {
		return
	}

	progress := 100
	save := func(kind, rawURL, model string) {
		if rawURL == "" {
			return
		}
		assetURL := rawURL
		_, err := m.studio.SaveAsset(ctx, studio.SaveAssetInput{
			SceneID:  req.SceneID,
			Kind:     kind,
			URL:      &assetURL,
			Prompt:   result.EnhancedPrompt,
			Model:    model,
			Status:   studio.AssetStatusCompleted,
			Progress: &progress,
		})
		if err != nil {
			log.Printf("fusion: persist %s asset for scene %s failed: %v", kind, req.SceneID, err)
		}
	}

	if result.Image != nil {
		save(studio.AssetKindImage, result.Image.URL, req.Models["image"])
	}
	if result.Video != nil {
		save(studio.AssetKindVideo, result.Video.URL, req.Models["video"])
	}
	if result.Audio != nil {
		save(studio.AssetKindAudio, result.Audio.VoiceURL, req.Models["audio"])
	}
}

func (m *Module) handleJobStatus(c *gin.Context) {
	job, ok := m.jobs.Get(c.Request.Context(), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

type enhancePromptRequest struct {
	Prompt  string         `json:"prompt" binding:"required"`
	Context map[string]any `json:"context"`
}

func (m *Module) handleEnhancePrompt(c *gin.Context) {
	var req enhancePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}

	emotion, _ := req.Context["emotion"].(string)
	style, _ := req.Context["style"].(string)
	cameraAngle, _ := req.Context["camera_angle"].(string)
	intensity := 0.5
	if raw, ok := req.Context["intensity"].(float64); ok {
		intensity = raw
	}

	enhanced := m.engine.EnhancePrompt(req.Prompt, emotion, intensity, style, cameraAngle)
	c.JSON(http.StatusOK, gin.H{
		"original": req.Prompt,
		"enhanced": enhanced,
		"improvements": []string{
			"Added cinematic direction",
			"Enhanced emotional context",
			"Optimized for AI generation",
			"Improved visual descriptors",
		},
	})
}

func (m *Module) handleListModels(c *gin.Context) {
	c.JSON(http.StatusOK, AvailableModels())
}
