package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/NEXESMISSION/KESTI-sub002/internal/api"
	"github.com/NEXESMISSION/KESTI-sub002/internal/pos"
	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := utils.NewLogger(config.Logging.Level, config.Logging.Format, config.Logging.Output)

	logger.Info("Starting Kesti POS backend",
		"version", version,
		"build_time", buildTime,
		"mode", config.Server.Mode)

	databaseURL := config.Database.URL
	if databaseURL == "" {
		databaseURL = config.Database.Path
	}

	db, err := storage.NewDatabase(databaseURL)
	if err != nil {
		logger.Fatal("Failed to initialize database", "error", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	logger.Info("Database connected successfully")

	if err := storage.RunMigrations(db.DB); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	logger.Info("Database migrations completed")

	sweeper := pos.NewHistorySweeper(db.DB, logger, config.History.DefaultRetention)
	sweeperCtx, sweeperCancel := context.WithCancel(context.Background())
	defer sweeperCancel()

	sweeper.Start(sweeperCtx, config.History.SweepInterval)
	logger.Info("History sweeper started", "interval", config.History.SweepInterval.String())

	server := api.NewServer(db, logger, config)

	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	go func() {
		if err := server.Start(serverCtx); err != nil {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	logger.Info("Server started successfully",
		"host", config.Server.Host,
		"port", config.Server.Port)

	<-quit

	logger.Info("Received shutdown signal, shutting down gracefully...")

	sweeper.Stop()
	logger.Info("History sweeper stopped")

	serverCancel()

	if err := server.Shutdown(); err != nil {
		logger.Error("Error during server shutdown", "error", err)
	} else {
		logger.Info("Server shutdown completed")
	}

	logger.Info("Application exited cleanly")
}
