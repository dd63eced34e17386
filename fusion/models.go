package fusion

import "time"

// Job lifecycle states.
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Pipeline stages reported through job progress updates.
const (
	StageTextEnhancement = "text_enhancement"
	StageVisualGen       = "visual_generation"
	StageAudioGen        = "audio_generation"
	StageFusion          = "fusion"
)

// GenerationRequest is the unified payload for a multimodal generation run.
type GenerationRequest struct {
	SceneID     string            `json:"scene_id" binding:"required"`
	TextPrompt  string            `json:"text_prompt" binding:"required"`
	Emotion     string            `json:"emotion" binding:"required"`
	Intensity   float64           `json:"intensity"`
	Style       string            `json:"style" binding:"required"`
	CameraAngle string            `json:"camera_angle" binding:"required"`
	Models      map[string]string `json:"models" binding:"required"`
	Parameters  map[string]any    `json:"parameters"`
}

// ImageOutput describes one generated still image.
type ImageOutput struct {
	URL              string  `json:"url"`
	Style            string  `json:"style"`
	EmotionAccuracy  float64 `json:"emotion_accuracy"`
	TechnicalQuality float64 `json:"technical_quality"`
}

// VideoOutput describes one generated video clip.
type VideoOutput struct {
	URL           string  `json:"url"`
	CameraWork    string  `json:"camera_work"`
	MotionQuality float64 `json:"motion_quality"`
	EmotionalSync float64 `json:"emotional_sync"`
}

// AudioOutput describes the generated voice and music tracks.
type AudioOutput struct {
	VoiceURL     string  `json:"voice_url"`
	MusicURL     string  `json:"music_url"`
	EmotionMatch float64 `json:"emotion_match"`
	Naturalness  float64 `json:"naturalness"`
}

// FusedTimeline carries the synchronization points produced by the
// fusion stage.
type FusedTimeline struct {
	TotalDuration     float64   `json:"total_duration"`
	EmotionPeaks      []float64 `json:"emotion_peaks"`
	CameraTransitions []float64 `json:"camera_transitions"`
	AudioSyncPoints   []float64 `json:"audio_sync_points"`
}

// GenerationResult is the unified output of a completed run.
type GenerationResult struct {
	RequestID      string            `json:"request_id"`
	SceneID        string            `json:"scene_id"`
	Status         string            `json:"status"`
	EnhancedPrompt string            `json:"enhanced_prompt"`
	Image          *ImageOutput      `json:"image,omitempty"`
	Video          *VideoOutput      `json:"video,omitempty"`
	Audio          *AudioOutput      `json:"audio,omitempty"`
	Timeline       *FusedTimeline    `json:"timeline,omitempty"`
	ModelsUsed     map[string]string `json:"models_used"`
	ManifestURL    string            `json:"manifest_url,omitempty"`
	ProcessingTime float64           `json:"processing_time"`
}

// Job tracks one generation run from acceptance to completion.
type Job struct {
	ID        string            `json:"job_id"`
	SceneID   string            `json:"scene_id"`
	Status    string            `json:"status"`
	Stage     string            `json:"stage,omitempty"`
	Progress  int               `json:"progress"`
	Result    *GenerationResult `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ModelInfo describes one selectable model.
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// ModelCatalog groups the selectable models by modality.
type ModelCatalog struct {
	TextModels  []ModelInfo `json:"text_models"`
	ImageModels []ModelInfo `json:"image_models"`
	VideoModels []ModelInfo `json:"video_models"`
	AudioModels []ModelInfo `json:"audio_models"`
}

// AvailableModels returns the static catalog of models the engine can route to.
func AvailableModels() ModelCatalog {
	return ModelCatalog{
		TextModels: []ModelInfo{
			{ID: "claude-3-haiku", Name: "Claude 3 Haiku", Type: "fast"},
			{ID: "gpt-4", Name: "GPT-4", Type: "premium"},
			{ID: "gemini-pro", Name: "Gemini Pro", Type: "balanced"},
		},
		ImageModels: []ModelInfo{
			{ID: "flux", Name: "Flux", Type: "photorealistic"},
			{ID: "flux-realism", Name: "Flux Realism", Type: "hyperrealistic"},
			{ID: "flux-anime", Name: "Flux Anime", Type: "artistic"},
		},
		VideoModels: []ModelInfo{
			{ID: "seedance", Name: "Seedance", Type: "motion"},
			{ID: "lens-warp", Name: "Lens Warp", Type: "cinematic"},
		},
		AudioModels: []ModelInfo{
			{ID: "pollinations-voice", Name: "Pollinations Voice", Type: "speech"},
			{ID: "pollinations-music", Name: "Pollinations Music", Type: "soundtrack"},
		},
	}
}
