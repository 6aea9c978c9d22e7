package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"advisor-marketplace/backend/internal/models"
	"advisor-marketplace/backend/internal/repository"
	"advisor-marketplace/backend/pkg/config"
	"advisor-marketplace/backend/pkg/di"
	"advisor-marketplace/backend/pkg/logger"
	"advisor-marketplace/backend/pkg/router"
	"advisor-marketplace/backend/pkg/secrets"
	"advisor-marketplace/backend/shared/observability"
)

func main() {
	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting consultation engine", "env", cfg.Server.Env)

	if err := secrets.Init(log); err != nil {
		log.Warn("Secrets manager unavailable, using environment variables", "error", err.Error())
	} else {
		cfg.JWT.Secret = secrets.GetSecretWithDefault(context.Background(), "jwt-secret", cfg.JWT.Secret)
		cfg.Database.Password = secrets.GetSecretWithDefault(context.Background(), "db-password", cfg.Database.Password)
	}

	db, err := config.NewDB()
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.AdvisorProfile{},
		&models.Session{},
		&models.Message{},
		&models.Review{},
	); err != nil {
		log.LogError(err, "Failed to migrate database")
		os.Exit(1)
	}

	if err := repository.EnsureSessionIndexes(db); err != nil {
		log.LogError(err, "Failed to create session uniqueness indexes")
		os.Exit(1)
	}

	shutdownTracing := observability.SetupTracing("advisor-marketplace", log)
	metricsHandler, shutdownMetrics := observability.SetupMetrics(log)

	container, err := di.New(db, cfg, log)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}

	r := router.New(container, metricsHandler)
	r.SetupRoutes()

	// Background workers: periodic expiry sweep and health checks.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go container.Sweeper.Run(sweepCtx)
	container.Health.Start()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r.Engine,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down server...")

	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}

	container.Close()
	shutdownMetrics(ctx)
	shutdownTracing(ctx)

	log.Info("Server exited gracefully")
}
