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

	"github.com/polo52/polochat/internal/api"
	"github.com/polo52/polochat/internal/auth"
	"github.com/polo52/polochat/internal/chat"
	"github.com/polo52/polochat/internal/config"
	"github.com/polo52/polochat/internal/llm"
	"github.com/polo52/polochat/internal/nl2sql"
	"github.com/polo52/polochat/internal/observability"
	"github.com/polo52/polochat/internal/schema"
	"github.com/polo52/polochat/internal/sqlguard"
)

func main() {
	cfg, err := config.LoadFromEnv("polochat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wh, err := openWarehouse(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open warehouse", slog.String("kind", cfg.Warehouse.Kind), slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = wh.close() }()
	if wh.run != nil {
		go wh.run(ctx)
	}

	generator, model, err := llm.New(ctx, cfg.AI, logger)
	if err != nil {
		logger.Error("failed to initialize language model", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("language model ready", slog.String("provider", cfg.AI.Provider), slog.String("model", model))

	introspector := schema.NewIntrospector(wh.catalog, cfg.Chat.ExcludedTablePrefixes...)
	orchestrator := chat.NewOrchestrator(
		introspector,
		nl2sql.NewPlanner(generator),
		sqlguard.New(wh.executor, cfg.Chat.MaxRows),
		nl2sql.NewComposer(generator, cfg.Chat.SummaryThreshold),
		chat.Options{
			Logger:          logger,
			Redactor:        chat.NewRedactor(cfg.Chat.RedactColumns...),
			MaxHistoryTurns: cfg.Chat.MaxHistoryTurns,
		},
	)

	var objectStoreCheck, bucketCheck api.ReadinessCheck
	if cfg.Warehouse.Kind == config.WarehouseDuckDB {
		objectStoreCheck = api.CheckObjectStoreConfig(cfg)
	}
	if wh.storeCheck != nil {
		bucketCheck = api.ReadinessCheck(wh.storeCheck)
	}
	deps := api.Dependencies{
		Logger: logger,
		Chat:   orchestrator,
		Schema: introspector,
		Readiness: api.CombineReadinessChecks(
			api.CheckWarehouse(wh.healthCheck),
			api.CheckAIConfig(cfg),
			objectStoreCheck,
			bucketCheck,
		),
		DependencyTimout: 2 * time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address), slog.String("warehouse", cfg.Warehouse.Kind))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
