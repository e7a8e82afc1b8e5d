// Package main is the entry point for the orchestrator service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/objspace/orchestrator/internal/api"
	"github.com/objspace/orchestrator/internal/config"
	"github.com/objspace/orchestrator/internal/gateway"
	"github.com/objspace/orchestrator/internal/notify"
	"github.com/objspace/orchestrator/internal/oracle"
	"github.com/objspace/orchestrator/internal/pipeline"
	"github.com/objspace/orchestrator/internal/sequential"
	"github.com/objspace/orchestrator/internal/statestore"
	"github.com/objspace/orchestrator/internal/steps"
	"github.com/objspace/orchestrator/internal/validator"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("starting orchestrator",
		slog.String("port", cfg.Port),
		slog.String("log_level", cfg.LogLevel),
	)

	// Initialize the state store based on configuration
	var store statestore.Store
	switch cfg.StateStoreType {
	case "redis":
		redisCfg := statestore.DefaultRedisConfig()
		redisCfg.URL = cfg.RedisURL
		redisCfg.Prefix = cfg.StateStorePrefix
		redisStore, err := statestore.NewRedisStore(redisCfg)
		if err != nil {
			logger.Error("failed to connect to Redis, falling back to memory store", "error", err)
			store = statestore.NewMemoryStore()
		} else {
			store = redisStore
			logger.Info("using Redis state store", slog.String("url", cfg.RedisURL))
		}
	default:
		store = statestore.NewMemoryStore()
		logger.Info("using in-memory state store")
	}
	defer store.Close()

	// Oracle providers
	oracleClient, err := oracle.New(oracle.Config{
		AnthropicAPIKey:  cfg.AnthropicAPIKey,
		AnthropicBaseURL: cfg.AnthropicBaseURL,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		DefaultProvider:  cfg.DefaultProvider,
		DefaultModel:     cfg.DefaultModel,
		MaxTokens:        cfg.MaxTokens,
	})
	if err != nil {
		logger.Error("failed to create oracle client", "error", err)
		os.Exit(1)
	}

	// Outbound call gateway and notification sink
	gw := gateway.New(logger)
	var notifier notify.Notifier = notify.Nop{}
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.WebhookURL, logger)
	}

	// Engines
	dispatcher := steps.NewDispatcher(oracleClient, gw, cfg.MockBaseURL, logger)
	sched := sequential.New(dispatcher, notifier, sequential.Config{
		StepTimeout:      cfg.StepTimeout,
		ConditionTimeout: cfg.ConditionTimeout,
		MaxRetries:       cfg.MaxRetries,
		RetryDelay:       cfg.RetryDelay,
	}, logger)
	exec := pipeline.NewExecutor(gw, store, notifier, logger)

	logger.Info("engines initialized",
		slog.String("default_provider", cfg.DefaultProvider),
		slog.Duration("step_timeout", cfg.StepTimeout),
	)

	// Initialize validator
	v, err := validator.New()
	if err != nil {
		logger.Error("failed to create validator", "error", err)
		// Continue without validator - validation will be basic
		v = nil
	}

	// Initialize API handlers
	handlers := api.NewHandlers(store, sched, exec, v, cfg, logger)
	server := api.NewServer(handlers)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
