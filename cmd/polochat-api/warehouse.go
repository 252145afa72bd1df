package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/polo52/polochat/internal/config"
	"github.com/polo52/polochat/internal/schema"
	"github.com/polo52/polochat/internal/sqlguard"
	s3store "github.com/polo52/polochat/internal/storage/s3"
	"github.com/polo52/polochat/internal/warehouse/duckdb"
	warehousepg "github.com/polo52/polochat/internal/warehouse/postgres"
)

type warehouse struct {
	catalog     schema.Catalog
	executor    sqlguard.Executor
	healthCheck func(ctx context.Context) error
	storeCheck  func(ctx context.Context) error
	run         func(ctx context.Context)
	close       func() error
}

func openWarehouse(ctx context.Context, cfg config.Config, logger *slog.Logger) (warehouse, error) {
	switch cfg.Warehouse.Kind {
	case config.WarehousePostgres:
		db, err := warehousepg.Open(ctx, warehousepg.DBConfig{
			DSN:             cfg.Warehouse.ReaderDSN,
			MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
			MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
			ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
		})
		if err != nil {
			return warehouse{}, err
		}
		catalog := warehousepg.NewCatalog(db, "public")
		return warehouse{
			catalog:     catalog,
			executor:    warehousepg.NewExecutor(db, cfg.Warehouse.StatementTimeout),
			healthCheck: catalog.HealthCheck,
			close:       db.Close,
		}, nil
	case config.WarehouseDuckDB:
		store, err := s3store.New(ctx, s3store.ConfigFrom(cfg.ObjectStore))
		if err != nil {
			return warehouse{}, fmt.Errorf("initialize object store: %w", err)
		}
		engine, err := duckdb.NewEngine(store, duckdb.Config{Prefix: cfg.Snapshot.Prefix, WorkDir: cfg.Snapshot.WorkDir}, logger)
		if err != nil {
			return warehouse{}, err
		}
		if _, _, err := engine.Refresh(ctx); err != nil {
			logger.Warn("no snapshot loaded at startup", slog.Any("error", err))
		}
		return warehouse{
			catalog:     engine.Catalog(),
			executor:    engine,
			healthCheck: engine.HealthCheck,
			storeCheck:  store.Ping,
			run: func(ctx context.Context) {
				_ = engine.Run(ctx, cfg.Snapshot.RefreshInterval)
			},
			close: engine.Close,
		}, nil
	default:
		return warehouse{}, fmt.Errorf("unsupported warehouse %q", cfg.Warehouse.Kind)
	}
}
