// Opsdeck - conversational operations dashboard server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/avesely/opsdeck/internal/api"
	"github.com/avesely/opsdeck/internal/chat"
	"github.com/avesely/opsdeck/internal/config"
	"github.com/avesely/opsdeck/internal/guard"
	"github.com/avesely/opsdeck/internal/identity"
	"github.com/avesely/opsdeck/internal/infra"
	"github.com/avesely/opsdeck/internal/llm"
	"github.com/avesely/opsdeck/internal/middleware"
	"github.com/avesely/opsdeck/internal/sanitize"
	"github.com/avesely/opsdeck/internal/store"
	"github.com/avesely/opsdeck/internal/toolcall"
	"github.com/avesely/opsdeck/internal/trace"
	"github.com/avesely/opsdeck/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "backend", cfg.LLM.Backend)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	policy, err := config.LoadToolPolicy(cfg.ToolPolicyPath)
	if err != nil {
		slog.Error("Failed to load tool policy", "error", err)
		os.Exit(1)
	}

	observer, err := infra.NewObserver(policy)
	if err != nil {
		slog.Error("Failed to initialize Docker observer", "error", err)
		os.Exit(1)
	}
	if err := observer.Ping(context.Background()); err != nil {
		slog.Warn("Docker daemon unreachable at startup, infrastructure tools will fail until it recovers", "error", err)
	}

	registry := toolcall.NewRegistry()
	infra.RegisterTools(registry, observer, policy)
	slog.Info("Tool registry initialized")

	var client llm.Client
	switch cfg.LLM.Backend {
	case config.BackendCustom:
		client = llm.NewCustomClient(cfg.LLM.Endpoint, cfg.LLM.APIKey)
	default:
		client = llm.NewLocalClient(cfg.LLM.Endpoint)
	}
	if err := client.Ping(context.Background()); err != nil {
		slog.Warn("Generation backend unreachable at startup", "error", err, "endpoint", cfg.LLM.Endpoint)
	}

	recorder := trace.NewRecorder(repo, cfg.Trace.QueueSize)
	defer recorder.Close()

	orch := chat.NewOrchestrator(
		guard.NewScreen(),
		observer,
		registry,
		client,
		sanitize.NewCleaner(),
		recorder,
		cfg.LLM,
	)

	sessions := chat.NewRegistry()
	limiter := chat.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	gateway := chat.NewGateway(sessions, orch, limiter, repo, cfg.FrontendURL, cfg.IsDevelopment())

	baseHandler := api.NewHandler(repo, observer)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	baseHandler.RegisterHealth(r)
	baseHandler.RegisterRoutes(r)
	baseHandler.RegisterTraceRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", gateway.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Streaming responses must not be cut off by a write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trace.StartRetentionSweeper(ctx, repo, cfg.Trace.Retention)

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
