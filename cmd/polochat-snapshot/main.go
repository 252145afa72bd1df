package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/polo52/polochat/internal/config"
	"github.com/polo52/polochat/internal/maintenance"
	"github.com/polo52/polochat/internal/observability"
	"github.com/polo52/polochat/internal/schema"
	"github.com/polo52/polochat/internal/snapshot"
	s3store "github.com/polo52/polochat/internal/storage/s3"
	warehousepg "github.com/polo52/polochat/internal/warehouse/postgres"
)

func main() {
	mode := flag.String("mode", "export", "export|retention|integrity")
	interval := flag.Duration("interval", 0, "export repeatedly at this interval, running retention after each export; 0 runs once")
	flag.Parse()

	cfg, err := config.LoadFromEnv("polochat-snapshot")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := s3store.New(ctx, s3store.ConfigFrom(cfg.ObjectStore))
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}
	maintainer := &maintenance.Service{
		ObjectStore: store,
		Config: maintenance.Config{
			Prefix:        cfg.Snapshot.Prefix,
			KeepSnapshots: cfg.Snapshot.KeepSnapshots,
			GCSafetyAge:   cfg.Snapshot.GCSafetyAge,
			DeepIntegrity: cfg.Snapshot.DeepIntegrity,
		},
		Logger: logger,
	}

	switch *mode {
	case "retention":
		summary, err := maintainer.RunRetentionOnce(ctx)
		if err != nil {
			logger.Error("snapshot retention failed", slog.Any("error", err), slog.Any("summary", summary))
			os.Exit(1)
		}
		logger.Info("snapshot retention completed", slog.Any("summary", summary))
		return
	case "integrity":
		summary, err := maintainer.RunIntegrityCheckOnce(ctx)
		if err != nil {
			logger.Error("snapshot integrity check failed", slog.Any("error", err), slog.Any("summary", summary))
			os.Exit(1)
		}
		logger.Info("snapshot integrity check completed", slog.Any("summary", summary))
		return
	case "export":
	default:
		fmt.Fprintf(os.Stderr, "invalid mode: %s\n", *mode)
		os.Exit(2)
	}

	// The reader role cannot see password columns, so they never reach a snapshot.
	db, err := warehousepg.Open(ctx, warehousepg.DBConfig{
		DSN:             cfg.Warehouse.ReaderDSN,
		MaxOpenConns:    cfg.Snapshot.Concurrency,
		MaxIdleConns:    cfg.Snapshot.Concurrency,
		ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open warehouse db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	exporter := &snapshot.Exporter{
		Describer:   schema.NewIntrospector(warehousepg.NewCatalog(db, "public"), cfg.Chat.ExcludedTablePrefixes...),
		Reader:      warehousepg.NewExecutor(db, 0),
		ObjectStore: store,
		Config:      snapshot.Config{Prefix: cfg.Snapshot.Prefix, Concurrency: cfg.Snapshot.Concurrency},
		Logger:      logger,
	}

	if *interval <= 0 {
		if _, err := exporter.Export(ctx); err != nil {
			logger.Error("snapshot export failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		if _, err := exporter.Export(ctx); err != nil {
			if ctx.Err() == nil {
				logger.Error("snapshot export failed", slog.Any("error", err))
			}
		} else if summary, err := maintainer.RunRetentionOnce(ctx); err != nil {
			logger.Warn("snapshot retention failed", slog.Any("error", err), slog.Any("summary", summary))
		}
		select {
		case <-ctx.Done():
			logger.Info("snapshot exporter stopped")
			return
		case <-ticker.C:
		}
	}
}
