package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/matricare/sync-client/internal/config"
	"github.com/matricare/sync-client/internal/feed"
	"github.com/matricare/sync-client/internal/handler"
	"github.com/matricare/sync-client/internal/middleware"
	"github.com/matricare/sync-client/internal/netmon"
	"github.com/matricare/sync-client/internal/persist"
	"github.com/matricare/sync-client/internal/remote"
	"github.com/matricare/sync-client/internal/service"
	"github.com/matricare/sync-client/internal/store"
	"github.com/matricare/sync-client/internal/syncer"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize Zap logger
	var logger *zap.Logger
	if cfg.Server.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded successfully",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("backend", cfg.Backend.BaseURL),
	)

	// Open local durable storage. A storage failure degrades to a
	// memory-only session instead of refusing to start: buffering
	// readings matters more than persisting them.
	var healthPartition *persist.HealthPartition
	var appPartition *persist.AppPartition
	kv, err := persist.Open(cfg.Storage.Path, logger)
	if err != nil {
		logger.Warn("Local storage unavailable, running in memory only", zap.Error(err))
	} else {
		defer kv.Close()
		healthPartition = persist.NewHealthPartition(kv, logger)
		appPartition = persist.NewAppPartition(kv, logger)
	}

	// Initialize stores and restore persisted state
	readingStore := store.NewReadingStore(healthPartition, logger)
	patientCache := store.NewPatientCache(healthPartition, logger)
	statusStore := store.NewStatusStore(appPartition, logger)

	if healthPartition != nil {
		if snap, ok := healthPartition.Load(); ok {
			readingStore.Restore(snap.Readings)
			patientCache.Restore(snap.Patients)
			logger.Info("Restored health data partition",
				zap.Int("readings", len(snap.Readings)),
				zap.Int("patients", len(snap.Patients)),
			)
		}
	}
	if appPartition != nil {
		if snap, ok := appPartition.Load(); ok {
			statusStore.Restore(snap)
		}
	}

	// Initialize backend client
	backend, err := remote.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger)
	if err != nil {
		logger.Fatal("Failed to initialize backend client", zap.Error(err))
	}

	// Initialize sync manager
	syncManager := syncer.NewManager(readingStore, statusStore, backend, cfg.Sync.BatchSize, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the network monitor: probe-driven connectivity signals, sync on
	// every offline-to-online transition
	monitor := netmon.NewMonitor(statusStore, syncManager, logger)
	prober := netmon.NewProber(backend, cfg.Network.ProbeInterval, cfg.Network.ProbeTimeout, logger)
	signals := make(chan netmon.Signal, 1)
	go prober.Run(ctx, signals)
	go monitor.Watch(ctx, signals)

	// Start the live risk feed
	alertRouter := service.NewAlertRouter(statusStore, patientCache)
	feedClient := feed.NewClient(cfg.Feed.URL, cfg.Feed.ReconnectDelay, alertRouter, logger)
	if cfg.Feed.Enabled {
		feedClient.Enable()
	}

	// App-start sync trigger: drain anything buffered from a previous run
	go func() {
		if err := syncManager.Sync(ctx); err != nil && !errors.Is(err, syncer.ErrSyncInFlight) {
			logger.Warn("Startup sync failed, readings stay buffered", zap.Error(err))
		}
	}()

	// Initialize services and handlers
	patientService := service.NewPatientService(backend, patientCache, readingStore, statusStore, syncManager, logger)

	patientHandler := handler.NewPatientHandler(patientService, readingStore, statusStore, logger)
	readingHandler := handler.NewReadingHandler(patientService, logger)
	statusHandler := handler.NewStatusHandler(statusStore, readingStore, patientCache, syncManager, logger)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Gin router
	r := gin.New()

	// Add recovery middleware (must be first)
	r.Use(middleware.RecoveryMiddleware(logger))

	// Add CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Add request ID and logging middleware
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RequestLoggingMiddleware(logger))

	// Register routes
	r.GET("/health", statusHandler.GetHealth)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/status", statusHandler.GetStatus)
		v1.POST("/sync", statusHandler.PostSync)
		v1.GET("/patients", patientHandler.GetPatients)
		v1.GET("/patients/:id", patientHandler.GetPatient)
		v1.GET("/patients/:id/readings", patientHandler.GetPatientReadings)
		v1.PUT("/patients/:id/select", patientHandler.SelectPatient)
		v1.POST("/readings", readingHandler.PostReading)
	}

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Starting local API server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop background work: feed first (cancels its reconnect timer), then
	// the monitor and prober via context
	feedClient.Disable()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Sync client exited")
}
