package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/polo52/polochat/internal/demo/seed"
	warehousepg "github.com/polo52/polochat/internal/warehouse/postgres"
)

func main() {
	cfg, err := seed.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load demo seed config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := warehousepg.Open(ctx, warehousepg.DBConfig{DSN: cfg.DSN, MaxOpenConns: 2})
	if err != nil {
		logger.Error("failed to open park database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	service, err := seed.NewService(cfg, db, logger)
	if err != nil {
		logger.Error("failed to initialize demo seeder", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info(
		"demo seed started",
		slog.Int64("seed", cfg.Seed),
		slog.Int("companies", cfg.Companies),
		slog.Int("lots", cfg.Lots),
		slog.Bool("truncate", cfg.Truncate),
	)
	if _, err := service.Run(ctx); err != nil {
		logger.Error("demo seed failed", slog.Any("error", err))
		os.Exit(1)
	}
}
