// Audience Builder - conversational audience building server
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
	"github.com/whizzbang/audience-builder/internal/api"
	"github.com/whizzbang/audience-builder/internal/catalog"
	"github.com/whizzbang/audience-builder/internal/chat"
	"github.com/whizzbang/audience-builder/internal/config"
	"github.com/whizzbang/audience-builder/internal/dialogue"
	"github.com/whizzbang/audience-builder/internal/llm"
	"github.com/whizzbang/audience-builder/internal/middleware"
	"github.com/whizzbang/audience-builder/internal/session"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	store, err := catalog.NewSQLite(cfg.CatalogDBPath)
	if err != nil {
		slog.Error("Failed to initialize catalog database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close catalog store", "error", closeErr)
		}
	}()

	if err := store.Ping(context.Background()); err != nil {
		slog.Error("Catalog database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Catalog database connected")

	if cfg.CatalogSeedPath != "" {
		loaded, err := store.SeedFromJSON(context.Background(), cfg.CatalogSeedPath)
		if err != nil {
			slog.Error("Failed to seed catalog", "path", cfg.CatalogSeedPath, "error", err)
			os.Exit(1)
		}
		slog.Info("Catalog seeded", "records", loaded, "path", cfg.CatalogSeedPath)
	}

	llmClient, err := llm.NewHTTPClient(llm.HTTPClientConfig{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		RequestTimeout: cfg.LLM.RequestTimeout,
		MaxRetries:     cfg.LLM.MaxRetries,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize text collaborator client", "error", err)
		os.Exit(1)
	}
	defer llmClient.Close()

	machine, err := dialogue.NewMachine(llmClient, store, cfg.GreetingResume, logger)
	if err != nil {
		slog.Error("Failed to build dialogue machine", "error", err)
		os.Exit(1)
	}

	registry := session.NewRegistry()

	conversationLogger, err := chat.NewConversationLogger(chat.ConversationLogConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Initialize handlers.
	wsHandler := chat.NewHandler(registry, machine, conversationLogger, cfg.FrontendURL, cfg.IsDevelopment())
	healthHandler := api.NewHealthHandler(store, registry)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	corsOrigins := []string{"*"}
	if !cfg.IsDevelopment() && cfg.FrontendURL != "" {
		corsOrigins = []string{cfg.FrontendURL}
	}
	r.Use(middleware.CORS(corsOrigins))

	healthHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Create server.
	// Note: WebSocket connections are long-lived, so no write timeout.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Start TTL worker.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session.StartTTLWorker(ctx, registry, cfg.SessionTTL)
	slog.Info("TTL worker started", "session_ttl", cfg.SessionTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
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
