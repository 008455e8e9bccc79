package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-seb/internal/cache"
	"github.com/stemsi/exstem-seb/internal/config"
	"github.com/stemsi/exstem-seb/internal/database"
	"github.com/stemsi/exstem-seb/internal/handler"
	"github.com/stemsi/exstem-seb/internal/logger"
	"github.com/stemsi/exstem-seb/internal/metrics"
	"github.com/stemsi/exstem-seb/internal/middleware"
	"github.com/stemsi/exstem-seb/internal/repository"
	"github.com/stemsi/exstem-seb/internal/router"
	"github.com/stemsi/exstem-seb/internal/seb"
	"github.com/stemsi/exstem-seb/internal/service"
	"github.com/stemsi/exstem-seb/internal/validator"
	"github.com/stemsi/exstem-seb/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("www_root", cfg.WWWRoot).
		Msg("Starting ExStem SEB")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}
	store := cache.NewRedisStore(rdb)
	links := seb.NewLinks(cfg.WWWRoot, cfg.QuizURLTemplate)
	secureCookie := strings.HasPrefix(cfg.WWWRoot, "https://")

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	quizRepo := repository.NewQuizRepository(pool)
	settingsRepo := repository.NewSEBSettingsRepository(pool)
	overrideRepo := repository.NewSEBOverrideRepository(pool)
	templateRepo := repository.NewSEBTemplateRepository(pool)
	configFileRepo := repository.NewSEBConfigFileRepository(pool)
	pluginRepo := repository.NewPluginSettingRepository(pool)
	eventRepo := repository.NewAccessEventRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, store, userRepo, log)
	pluginService := service.NewPluginSettingService(pluginRepo, log)
	fileService := service.NewConfigFileService(configFileRepo, cfg.UploadDir, cfg.MaxUploadBytes, log)
	resolver := service.NewSettingsResolver(settingsRepo, overrideRepo, templateRepo, configFileRepo, quizRepo, pluginService, log)
	configService := service.NewConfigService(store, fileService, links, m, log)
	settingsService := service.NewSettingsService(settingsRepo, overrideRepo, templateRepo, quizRepo, fileService, configService, pluginService, log)
	templateService := service.NewTemplateService(templateRepo, log)
	continueService := service.NewContinueSessionService(store, userRepo, authService, cfg.SessionKeyTTL, m, log)
	publisher := service.NewAccessEventPublisher(rdb, m, log)
	accessManager := service.NewAccessManager(resolver, configService, store, quizRepo, pluginService, continueService, links, publisher, m, log)
	downloadService := service.NewConfigDownloadService(quizRepo, resolver, configService, log)
	eventService := service.NewAccessEventService(eventRepo, quizRepo)
	backupService := service.NewBackupService(cfg.SiteID, settingsRepo, overrideRepo, templateRepo, quizRepo, fileService, configService, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService, cfg.JWTExpiry, secureCookie),
		Settings:      handler.NewSEBSettingsHandler(settingsService),
		Templates:     handler.NewTemplateHandler(templateService),
		Access:        handler.NewAccessHandler(accessManager, links),
		Config:        handler.NewSEBConfigHandler(downloadService, continueService, links, cfg.JWTExpiry, secureCookie, log),
		PluginSetting: handler.NewPluginSettingHandler(pluginService),
		Events:        handler.NewAccessEventHandler(rdb, eventService, log),
		WS:            handler.NewWSHandler(rdb, eventService, log, cfg.AllowedOrigins),
		Backup:        handler.NewBackupHandler(backupService),
		System:        handler.NewSystemHandler(rdb, pool, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workersDone := make(chan struct{})

	eventWorker := worker.NewAccessEventWorker(eventRepo, rdb, log)
	go func() {
		eventWorker.Start(workerCtx)
		close(workersDone)
	}()

	redirectLimit := middleware.NewRateLimiter(cfg.RedirectRatePerMinute, time.Minute)
	stopLimiter := make(chan struct{})
	go redirectLimit.Run(stopLimiter)

	// ─── Setup Router ──────────────────────────────────────────────────
	r, err := router.SetupRouter(router.Deps{
		Auth:          authService,
		Access:        accessManager,
		Metrics:       m,
		RedirectLimit: redirectLimit,
	}, handlers, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up router")
	}

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	close(stopLimiter)

	// 2. Stop the event worker and wait for it to drain its queue.
	workerCancel()
	select {
	case <-workersDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Access event worker did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
