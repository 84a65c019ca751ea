package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/wechatpad/internal/handler"
)

const sessionCookieName = "wechatpad_session"

// Options 配置路由中间件。
type Options struct {
	SessionSecret string
	Logger        *slog.Logger
}

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	r.MaxMultipartMemory = 32 << 20

	// 配置会话中间件
	store := cookie.NewStore([]byte(opts.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionCookieName, store))
	r.Use(api.LocaleMiddleware())

	r.GET("/healthz", api.HealthCheck)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/session", api.SessionStatus)
		apiGroup.POST("/session/login", api.Login)
		apiGroup.POST("/session/logout", api.Logout)

		docs := apiGroup.Group("/documents")
		docs.GET("", api.ListDocuments)
		docs.POST("", api.CreateDocument)
		docs.POST("/save", api.SaveCurrentContent)
		docs.POST("/metadata/rebuild", api.RebuildMetadata)
		docs.GET("/:id", api.GetDocument)
		docs.PUT("/:id", api.UpdateDocument)
		docs.DELETE("/:id", api.DeleteDocument)
		docs.POST("/:id/duplicate", api.DuplicateDocument)

		docs.GET("/:id/versions", api.ListVersions)
		docs.POST("/:id/versions", api.CreateSnapshot)
		docs.POST("/:id/versions/auto", api.CreateAutoVersion)
		docs.GET("/:id/versions/:versionId", api.GetVersion)
		docs.DELETE("/:id/versions/:versionId", api.DeleteVersion)
		docs.POST("/:id/versions/:versionId/restore", api.RestoreVersion)

		images := apiGroup.Group("/images")
		images.GET("", api.ListImages)
		images.POST("", api.UploadImages)
		images.GET("/resolve", api.ResolveImageURL)
		images.GET("/:filename", api.GetImageInfo)
		images.DELETE("/:filename", api.DeleteImage)
		images.GET("/:filename/raw", api.GetImageRaw)

		apiGroup.GET("/settings", api.GetSettings)
		apiGroup.PUT("/settings", api.UpdateSettings)
		apiGroup.GET("/storage/quota", api.StorageQuota)
		apiGroup.GET("/storage/stats", api.StorageStats)

		apiGroup.GET("/export", api.Export)
		apiGroup.GET("/export/preview", api.ExportPreview)
		apiGroup.POST("/import", api.Import)
		apiGroup.POST("/import/validate", api.ValidateImport)

		editor := apiGroup.Group("/editor/sessions")
		editor.POST("", api.OpenEditorSession)
		editor.GET("/:sid", api.GetEditorSession)
		editor.DELETE("/:sid", api.CloseEditorSession)
		editor.POST("/:sid/edits", api.EditorEdit)
		editor.POST("/:sid/save", api.EditorSave)
	}

	return r
}

// WithCORS 允许浏览器中的编辑器从配置的来源访问接口。
func WithCORS(h http.Handler, origins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Accept-Language", "Authorization"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Language"},
		AllowCredentials: true,
		MaxAge:           600,
	}).Handler(h)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
