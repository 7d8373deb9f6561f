// Package main implements the entry point for the Task Board API server,
// which exposes task CRUD endpoints over HTTP and broadcasts task
// lifecycle events to connected WebSocket clients via Redis pub/sub.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mpetrov/taskboard-api/internal/config"
	"github.com/mpetrov/taskboard-api/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := initializeApp(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.cleanup()

	if err := app.serve(ctx); err != nil {
		app.logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

// initializeApp loads configuration, sets up logging, and wires the
// application components together.
func initializeApp(ctx context.Context) (*application, error) {
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
		"redis_addr", cfg.Redis.Addr)

	return newApplication(ctx, cfg, appLogger)
}
