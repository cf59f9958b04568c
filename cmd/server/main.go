// Package main implements the entry point for the record scrape
// server, which runs property record searches as background browser
// automation tasks behind an HTTP API.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/gregoryb/recordscrape/internal/config"
	"github.com/gregoryb/recordscrape/internal/platform/logger"
)

func main() {
	app, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.run(ctx); err != nil {
		app.logger.Error("Server exited with error", "error", err)
		app.cleanup()
		log.Fatalf("Server failed: %v", err)
	}
	app.cleanup()
}

// initializeApp loads configuration, sets up logging and wires the
// application components.
func initializeApp() (*application, error) {
	// A missing .env file is fine; real deployments set env vars
	// directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	slog.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"workers", cfg.Engine.WorkerCount,
		"pool_max_size", cfg.Pool.MaxSize)

	return newApplication(cfg, appLogger)
}
