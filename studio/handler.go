package studio

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"genx_back/authorization"
	"genx_back/cache"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Module wires the studio store, facade, cache manager, and maintenance
// loop, and owns their HTTP surface.
type Module struct {
	db          *gorm.DB
	service     *Service
	cacheStore  *CacheManager
	maintenance *Maintenance
}

// Service returns the domain facade for sibling modules (fusion persists
// generated assets through it).
func (m *Module) Service() *Service {
	if m == nil {
		return nil
	}
	return m.service
}

// Close stops the background maintenance loop.
func (m *Module) Close() {
	if m == nil || m.maintenance == nil {
		return
	}
	m.maintenance.Stop()
}

// RegisterRoutes bootstraps the studio module and registers its routes
// under /studio. The guard is optional; when present, sync-queue and
// template-import endpoints require authentication and analytics events
// carry the acting user.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard) (*Module, error) {
	db, err := openDatabaseFromEnv()
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&Project{}, &Scene{}, &GeneratedAsset{},
		&SyncQueueItem{}, &CacheEntry{}, &AnalyticsEvent{}, &UserTemplate{},
	)
	if err != nil {
		return nil, err
	}

	service := NewService(db)
	cacheStore := &CacheManager{db: db}

	var redisClient *redis.Client
	if client, err := cache.GetRedisClient(); err != nil {
		log.Printf("studio: redis unavailable, maintenance lock disabled: %v", err)
	} else {
		redisClient = client
	}

	maintenance := newMaintenance(db, cacheStore, service.SyncQueue(), service.Analytics(), redisClient, maintenanceIntervalFromEnv())
	maintenance.Start()

	module := &Module{db: db, service: service, cacheStore: cacheStore, maintenance: maintenance}

	group := router.Group("/studio")
	group.Use(identityContext(guard))

	group.POST("/projects", module.handleCreateProject)
	group.GET("/projects", module.handleListProjects)
	group.GET("/projects/search", module.handleSearchProjects)
	group.POST("/projects/import", module.handleImportProject)
	group.GET("/projects/:id", module.handleGetProject)
	group.PUT("/projects/:id", module.handleUpdateProject)
	group.DELETE("/projects/:id", module.handleDeleteProject)
	group.GET("/projects/:id/export", module.handleExportProject)
	group.GET("/projects/:id/scenes", module.handleListScenes)
	group.POST("/projects/:id/scenes", module.handleCreateScene)
	group.PUT("/projects/:id/scenes/reorder", module.handleReorderScenes)

	group.GET("/scenes/:id", module.handleGetScene)
	group.PUT("/scenes/:id", module.handleUpdateScene)
	group.DELETE("/scenes/:id", module.handleDeleteScene)
	group.GET("/scenes/:id/assets", module.handleListSceneAssets)

	group.POST("/assets", module.handleSaveAsset)
	group.GET("/assets", module.handleListAssetsByType)
	group.GET("/assets/:id", module.handleGetAsset)
	group.PUT("/assets/:id", module.handleUpdateAsset)
	group.DELETE("/assets/:id", module.handleDeleteAsset)

	group.PUT("/cache/:key", module.handleSetCache)
	group.GET("/cache/:key", module.handleGetCache)
	group.DELETE("/cache", module.handleClearExpiredCache)

	group.GET("/templates", module.handleListTemplates)
	group.POST("/templates", module.handleSaveTemplate)

	group.GET("/session", module.handleGetSession)

	secured := group.Group("")
	if guard != nil {
		secured.Use(guard.RequireAuthenticated())
	} else {
		secured.Use(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization middleware missing"})
		})
	}
	secured.GET("/sync/pending", module.handleListPendingSync)
	secured.POST("/sync/:id/retry", module.handleSyncRetry)
	secured.DELETE("/sync/:id", module.handleSyncRemove)
	secured.POST("/templates/import", module.handleImportTemplateBundle)

	return module, nil
}

func maintenanceIntervalFromEnv() time.Duration {
	raw := strings.TrimSpace(os.Getenv("STUDIO_MAINTENANCE_INTERVAL"))
	if raw == "" {
		return defaultMaintenanceInterval
	}
	interval, err := time.ParseDuration(raw)
	if err != nil || interval <= 0 {
		log.Printf("studio: invalid STUDIO_MAINTENANCE_INTERVAL %q, using default", raw)
		return defaultMaintenanceInterval
	}
	return interval
}

// identityContext copies the authenticated user, when one is present, into
// the request context so analytics events can carry it.
func identityContext(guard *authorization.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		if guard != nil {
			if userID := authorization.CurrentUserID(c); userID != 0 {
				c.Request = c.Request.WithContext(WithUserID(c.Request.Context(), userID))
			}
		}
		c.Next()
	}
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("studio: request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (m *Module) handleCreateProject(c *gin.Context) {
	var input CreateProjectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	project, err := m.service.CreateProject(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": project})
}

func (m *Module) handleListProjects(c *gin.Context) {
	projects, err := m.service.GetAllProjects(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (m *Module) handleSearchProjects(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}
	projects, err := m.service.SearchProjects(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (m *Module) handleGetProject(c *gin.Context) {
	project, err := m.service.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func (m *Module) handleUpdateProject(c *gin.Context) {
	var input UpdateProjectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	project, err := m.service.UpdateProject(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func (m *Module) handleDeleteProject(c *gin.Context) {
	if err := m.service.DeleteProject(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (m *Module) handleExportProject(c *gin.Context) {
	export, err := m.service.ExportProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, export)
}

func (m *Module) handleImportProject(c *gin.Context) {
	var payload ProjectExport
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid import payload"})
		return
	}
	project, err := m.service.ImportProject(c.Request.Context(), payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": project})
}

func (m *Module) handleListScenes(c *gin.Context) {
	scenes, err := m.service.GetProjectScenes(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scenes": scenes})
}

func (m *Module) handleCreateScene(c *gin.Context) {
	var input CreateSceneInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	scene, err := m.service.CreateScene(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"scene": scene})
}

func (m *Module) handleReorderScenes(c *gin.Context) {
	var body struct {
		Orders []SceneOrder `json:"orders"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || len(body.Orders) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "orders list is required"})
		return
	}
	if err := m.service.ReorderScenes(c.Request.Context(), c.Param("id"), body.Orders); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reordered": true})
}

func (m *Module) handleGetScene(c *gin.Context) {
	scene, err := m.service.GetScene(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scene": scene})
}

func (m *Module) handleUpdateScene(c *gin.Context) {
	var input UpdateSceneInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	scene, err := m.service.UpdateScene(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scene": scene})
}

func (m *Module) handleDeleteScene(c *gin.Context) {
	if err := m.service.DeleteScene(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (m *Module) handleListSceneAssets(c *gin.Context) {
	assets, err := m.service.GetAssetsByScene(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": assets})
}

func (m *Module) handleSaveAsset(c *gin.Context) {
	var input SaveAssetInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	asset, err := m.service.SaveAsset(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"asset": asset})
}

func (m *Module) handleListAssetsByType(c *gin.Context) {
	kind := strings.TrimSpace(c.Query("kind"))
	if kind == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter kind is required"})
		return
	}
	assets, err := m.service.GetAssetsByType(c.Request.Context(), kind)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": assets})
}

func (m *Module) handleGetAsset(c *gin.Context) {
	asset, err := m.service.GetAsset(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": asset})
}

func (m *Module) handleUpdateAsset(c *gin.Context) {
	var input UpdateAssetInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	asset, err := m.service.UpdateAsset(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset": asset})
}

func (m *Module) handleDeleteAsset(c *gin.Context) {
	if err := m.service.DeleteAsset(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type setCacheRequest struct {
	Data       any  `json:"data"`
	TTLMinutes *int `json:"ttl_minutes"`
}

func (m *Module) handleSetCache(c *gin.Context) {
	var req setCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	ttl := DefaultCacheTTL
	if req.TTLMinutes != nil {
		ttl = time.Duration(*req.TTLMinutes) * time.Minute
	}
	if err := m.cacheStore.Set(c.Request.Context(), c.Param("key"), req.Data, ttl); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cached": true})
}

func (m *Module) handleGetCache(c *gin.Context) {
	data, ok, err := m.cacheStore.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (m *Module) handleClearExpiredCache(c *gin.Context) {
	removed, err := m.cacheStore.ClearExpired(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (m *Module) handleListTemplates(c *gin.Context) {
	templates, err := m.service.ListTemplates(c.Request.Context(), strings.TrimSpace(c.Query("type")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

func (m *Module) handleSaveTemplate(c *gin.Context) {
	var doc TemplateDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	template, err := m.service.SaveTemplate(c.Request.Context(), doc)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"template": template})
}

func (m *Module) handleImportTemplateBundle(c *gin.Context) {
	file, err := c.FormFile("bundle")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bundle file is required"})
		return
	}
	imported, err := m.service.ImportTemplateBundle(c.Request.Context(), file)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"templates": imported, "count": len(imported)})
}

func (m *Module) handleGetSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"session_id": m.service.Analytics().session.Token()})
}

func (m *Module) handleListPendingSync(c *gin.Context) {
	items, err := m.service.SyncQueue().Pending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type syncRetryRequest struct {
	Error string `json:"error"`
}

func (m *Module) handleSyncRetry(c *gin.Context) {
	var req syncRetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if err := m.service.SyncQueue().IncrementRetry(c.Request.Context(), c.Param("id"), req.Error); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": true})
}

func (m *Module) handleSyncRemove(c *gin.Context) {
	if err := m.service.SyncQueue().Remove(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}
