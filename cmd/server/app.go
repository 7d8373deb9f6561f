package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	// Register the pgx driver with database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mpetrov/taskboard-api/internal/api"
	apimiddleware "github.com/mpetrov/taskboard-api/internal/api/middleware"
	"github.com/mpetrov/taskboard-api/internal/config"
	"github.com/mpetrov/taskboard-api/internal/platform/postgres"
	"github.com/mpetrov/taskboard-api/internal/platform/redisbus"
	"github.com/mpetrov/taskboard-api/internal/service"
	"github.com/mpetrov/taskboard-api/internal/ws"
)

// shutdownTimeout bounds how long the server waits for in-flight
// requests during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// application holds the wired components and their shared dependencies.
// The database handle and the event bus are created once here and passed
// by reference to everything that needs them.
type application struct {
	config      *config.Config
	logger      *slog.Logger
	db          *sql.DB
	bus         *redisbus.Bus
	gateway     *ws.Gateway
	taskService service.TaskService
}

// newApplication connects the infrastructure (Postgres, Redis) and wires
// the store, gateway, and service layers. A connection failure here is
// fatal: dependent components must not start without a live bus.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
) (*application, error) {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	bus := redisbus.New(redisbus.Config{
		Addr:          cfg.Redis.Addr,
		RetryAttempts: cfg.Redis.RetryAttempts,
		RetryDelay:    cfg.Redis.RetryDelay,
	}, logger)
	if err := bus.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to event bus: %w", err)
	}

	gateway := ws.NewGateway(bus, logger)
	if err := gateway.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start broadcast gateway: %w", err)
	}

	taskStore := postgres.NewPostgresTaskStore(db, logger)

	taskService, err := service.NewTaskService(taskStore, gateway, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	return &application{
		config:      cfg,
		logger:      logger,
		db:          db,
		bus:         bus,
		gateway:     gateway,
		taskService: taskService,
	}, nil
}

// routes creates and configures the application router with all routes
// and middleware.
func (app *application) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	taskHandler := api.NewTaskHandler(app.taskService, app.logger)

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", taskHandler.CreateTask)
		r.Get("/", taskHandler.ListTasks)
		r.Get("/{id}", taskHandler.GetTask)
		r.Patch("/{id}", taskHandler.UpdateTask)
		r.Delete("/{id}", taskHandler.DeleteTask)
	})

	// Realtime task event feed
	r.Get("/ws", app.gateway.HandleWS)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}

// serve starts the HTTP server and blocks until the context is canceled
// or the server fails, then shuts down gracefully.
func (app *application) serve(ctx context.Context) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.routes(),
	}

	serverCtx, cancelServer := context.WithCancel(ctx)
	defer cancelServer()

	go func() {
		app.logger.Info("Starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Error("Server failed", "error", err)
			cancelServer()
		}
	}()

	<-serverCtx.Done()
	app.logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("Server shutdown failed", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.logger.Info("Server shutdown completed")
	return nil
}

// cleanup tears down the gateway, the event bus, and the database
// connection, best-effort.
func (app *application) cleanup() {
	if app.gateway != nil {
		app.gateway.Stop()
	}
	if app.bus != nil {
		app.bus.Close()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Warn("error closing database", "error", err)
		}
	}
}
