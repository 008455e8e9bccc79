package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-seb/internal/config"
	"github.com/stemsi/exstem-seb/internal/handler"
	"github.com/stemsi/exstem-seb/internal/metrics"
	"github.com/stemsi/exstem-seb/internal/middleware"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	Settings      *handler.SEBSettingsHandler
	Templates     *handler.TemplateHandler
	Access        *handler.AccessHandler
	Config        *handler.SEBConfigHandler
	PluginSetting *handler.PluginSettingHandler
	Events        *handler.AccessEventHandler
	WS            *handler.WSHandler
	Backup        *handler.BackupHandler
	System        *handler.SystemHandler
}

// Deps are the middleware collaborators shared across route groups.
type Deps struct {
	Auth          middleware.TokenAuthenticator
	Access        middleware.AccessChecker
	Metrics       *metrics.Metrics
	RedirectLimit *middleware.RateLimiter
}

// NewEngine creates the Gin engine. Forwarded client addresses are honoured
// only from cfg.TrustedProxies; with none configured ClientIP is the peer
// address, which session keys are bound to.
func NewEngine(cfg *config.Config) (*gin.Engine, error) {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	return router, nil
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(deps Deps, handlers *Handlers, cfg *config.Config) (*gin.Engine, error) {
	router, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin", "Content-Type", "Authorization", "X-Request-ID",
		middleware.HeaderConfigKeyHash, middleware.HeaderRequestHash,
	}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	if deps.Metrics != nil {
		router.Use(middleware.Metrics(deps.Metrics))
	}

	// .seb downloads and redirects go to the exam browser's own HTTP client.
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:   middleware.DefaultBrotliConfig.Quality,
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		SkipPaths: []string{"/seb/"},
	}))

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	requireAuth := middleware.RequireJWT(deps.Auth)
	optionalAuth := middleware.OptionalJWT(deps.Auth)

	// ─── 1. Auth Group ─────────────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/logout", requireAuth, handlers.Auth.Logout)
		auth.GET("/me", requireAuth, handlers.Auth.Me)
	}

	// ─── 2. Exam Browser Endpoints ─────────────────────────────────────
	sebGroup := router.Group("/seb")
	sebGroup.Use(middleware.NoStore())
	{
		sebGroup.GET("/config", requireAuth, handlers.Config.Download)
		sebGroup.GET("/redirect", deps.RedirectLimit.Middleware(), optionalAuth, handlers.Config.Redirect)
	}

	// The page every generated configuration starts on.
	router.GET("/quiz/view",
		requireAuth,
		middleware.RequireSEBAccess(deps.Access, cfg.WWWRoot, "id"),
		handlers.Access.QuizView,
	)

	// ─── 3. Quiz Runtime (any logged-in user) ──────────────────────────
	runtime := router.Group("/api/v1/seb")
	runtime.Use(requireAuth)
	{
		runtime.GET("/access", middleware.RequireSEBAccess(deps.Access, cfg.WWWRoot, "cmid"), handlers.Access.Check)
		runtime.POST("/validate", handlers.Access.ValidateKeys)
		runtime.GET("/quizzes/:cmid/description", handlers.Access.Description)
		runtime.POST("/quizzes/:cmid/attempt-finished", handlers.Access.AttemptFinished)
	}

	// ─── 4. Management (JWT + RBAC) ────────────────────────────────────
	manage := router.Group("/api/v1/seb")
	manage.Use(requireAuth)
	{
		manage.GET("/quizzes/:cmid/settings",
			middleware.RequirePermission(model.PermissionSEBManage),
			handlers.Settings.GetSettings,
		)
		manage.PUT("/quizzes/:cmid/settings",
			middleware.RequirePermission(model.PermissionSEBManage),
			handlers.Settings.SaveSettings,
		)
		manage.DELETE("/quizzes/:cmid/settings",
			middleware.RequirePermission(model.PermissionSEBManage),
			handlers.Settings.DeleteSettings,
		)
		manage.POST("/quizzes/:cmid/config-file",
			middleware.RequirePermission(model.PermissionSEBManage),
			handlers.Settings.UploadConfigFile,
		)
		manage.GET("/quizzes/:cmid/overrides",
			middleware.RequirePermission(model.PermissionSEBManage),
			handlers.Settings.ListOverrides,
		)
		manage.PUT("/overrides/:override_id",
			middleware.RequirePermission(model.PermissionSEBManage),
			handlers.Settings.SaveOverride,
		)
		manage.DELETE("/overrides/:override_id",
			middleware.RequirePermission(model.PermissionSEBManage),
			handlers.Settings.DeleteOverride,
		)

		// Templates are listed for anyone configuring a quiz.
		templates := manage.Group("/templates")
		{
			templates.GET("", middleware.RequireAnyPermission(model.PermissionSEBManage, model.PermissionSEBManageTemplates), handlers.Templates.GetAll)
			templates.GET("/:id", middleware.RequireAnyPermission(model.PermissionSEBManage, model.PermissionSEBManageTemplates), handlers.Templates.GetByID)
			templates.POST("", middleware.RequirePermission(model.PermissionSEBManageTemplates), handlers.Templates.Create)
			templates.PUT("/:id", middleware.RequirePermission(model.PermissionSEBManageTemplates), handlers.Templates.Update)
			templates.PATCH("/:id/enabled", middleware.RequirePermission(model.PermissionSEBManageTemplates), handlers.Templates.SetEnabled)
			templates.DELETE("/:id", middleware.RequirePermission(model.PermissionSEBManageTemplates), handlers.Templates.Delete)
		}

		plugin := manage.Group("/plugin-settings")
		plugin.Use(middleware.RequirePermission(model.PermissionSEBSettings))
		{
			plugin.GET("", handlers.PluginSetting.GetAllSettings)
			plugin.PUT("", handlers.PluginSetting.UpdateSettings)
		}

		manage.GET("/quizzes/:cmid/events",
			middleware.RequirePermission(model.PermissionSEBMonitor),
			handlers.Events.List,
		)
		manage.GET("/quizzes/:cmid/events/stream",
			middleware.RequirePermission(model.PermissionSEBMonitor),
			handlers.Events.Stream,
		)

		manage.GET("/quizzes/:cmid/backup",
			middleware.RequirePermission(model.PermissionSEBBackup),
			handlers.Backup.Export,
		)
		manage.POST("/quizzes/:cmid/restore",
			middleware.RequirePermission(model.PermissionSEBBackup),
			handlers.Backup.Restore,
		)

		manage.GET("/system/status",
			middleware.RequirePermission(model.PermissionSEBSettings),
			handlers.System.StatusSSE,
		)
	}

	// ─── 5. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(requireAuth, middleware.RequirePermission(model.PermissionSEBMonitor))
	{
		ws.GET("/seb/quizzes/:cmid/events", handlers.WS.AccessEventStream)
	}

	return router, nil
}
