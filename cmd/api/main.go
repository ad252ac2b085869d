package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/dotbassa/highway-inventory-backend/internal/api"
	"github.com/dotbassa/highway-inventory-backend/internal/auth"
	"github.com/dotbassa/highway-inventory-backend/internal/config"
	"github.com/dotbassa/highway-inventory-backend/internal/db"
	"github.com/dotbassa/highway-inventory-backend/internal/ingest"
	"github.com/dotbassa/highway-inventory-backend/internal/logger"
	"github.com/dotbassa/highway-inventory-backend/internal/photo"
	"github.com/dotbassa/highway-inventory-backend/internal/report"
	"github.com/dotbassa/highway-inventory-backend/internal/storage"
	"github.com/dotbassa/highway-inventory-backend/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting API server")

	// Initialize database pool
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	repo := db.NewRepository(pool)

	// Initialize photo storage
	assetPhotos, conflictivePhotos, err := buildPhotoStorage(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("mode", cfg.Storage.Mode).Msg("Failed to initialize photo storage")
	}

	// Initialize report task store
	store, err := report.NewStore(cfg.Reports.Dir, cfg.Reports.MaxConcurrent, cfg.Reports.Expiration)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Reports.Dir).Msg("Failed to initialize report store")
	}

	// Initialize worker pool for background report generation
	workerPool := worker.NewPool(cfg.Reports.WorkerPoolSize)
	workerPool.Start(ctx)
	defer workerPool.Stop()

	orchestrator := report.NewOrchestrator(store, repo, workerPool, assetPhotos)

	// Initialize engines
	ingestEngine := ingest.NewEngine(repo)
	photoEngine := photo.NewEngine(repo, assetPhotos, conflictivePhotos, photo.Limits{
		MaxPerRequest:     cfg.Photos.MaxPerRequest,
		AllowedExtensions: cfg.Photos.AllowedExtensions,
		MaxFileSize:       cfg.Photos.MaxFileSize,
	})

	authSvc := auth.NewService(cfg.Auth)

	// Initialize API handler
	handler := api.NewHandler(repo, store, orchestrator, ingestEngine, photoEngine, cfg)

	// Setup Gin router
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(api.CORSMiddleware())
	router.Use(api.LoggingMiddleware())
	router.Use(api.RecoveryMiddleware())

	// Setup routes
	api.SetupRoutes(router, handler, authSvc)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Create context for graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown server
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func buildPhotoStorage(cfg *config.Config) (storage.Storage, storage.Storage, error) {
	switch cfg.Storage.Mode {
	case "s3":
		assets, err := storage.NewS3Storage(cfg.Storage.S3, cfg.Storage.S3.AssetPrefix)
		if err != nil {
			return nil, nil, err
		}
		conflictive, err := storage.NewS3Storage(cfg.Storage.S3, cfg.Storage.S3.ConflictivePrefix)
		if err != nil {
			return nil, nil, err
		}
		return assets, conflictive, nil
	default:
		assets, err := storage.NewLocalStorage(cfg.Storage.Local.AssetPhotosDir)
		if err != nil {
			return nil, nil, err
		}
		conflictive, err := storage.NewLocalStorage(cfg.Storage.Local.ConflictivePhotosDir)
		if err != nil {
			return nil, nil, err
		}
		return assets, conflictive, nil
	}
}
