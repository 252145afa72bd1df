package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/polo52/polochat/internal/rowset"
	"github.com/polo52/polochat/internal/snapshot"
	"github.com/polo52/polochat/internal/sqlguard"
	"github.com/polo52/polochat/internal/storage"
)

const databaseFileName = "warehouse.duckdb"

var ErrNoSnapshot = errors.New("no snapshot loaded")

type Config struct {
	Prefix  string
	WorkDir string
}

// Engine serves chat queries from the latest published snapshot. Each snapshot is
// materialized into its own DuckDB file and reopened with access_mode=READ_ONLY.
type Engine struct {
	store   storage.ObjectStore
	prefix  string
	workDir string
	ownsDir bool
	logger  *slog.Logger

	refreshMu sync.Mutex
	mu        sync.RWMutex
	current   *workspace
}

type workspace struct {
	manifest snapshot.Manifest
	dir      string
	db       *sql.DB
}

func NewEngine(store storage.ObjectStore, cfg Config, logger *slog.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	workDir := strings.TrimSpace(cfg.WorkDir)
	ownsDir := false
	if workDir == "" {
		dir, err := os.MkdirTemp("", "polochat-duckdb-")
		if err != nil {
			return nil, fmt.Errorf("create workspace dir: %w", err)
		}
		workDir = dir
		ownsDir = true
	} else if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	return &Engine{store: store, prefix: cfg.Prefix, workDir: workDir, ownsDir: ownsDir, logger: logger}, nil
}

// Refresh loads the snapshot LATEST points at. It reports whether a new snapshot was
// swapped in; queries already running keep the previous one until they finish.
func (e *Engine) Refresh(ctx context.Context) (snapshot.Manifest, bool, error) {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	snapshotID, err := snapshot.LatestSnapshotID(ctx, e.store, e.prefix)
	if err != nil {
		return snapshot.Manifest{}, false, err
	}
	if manifest, ok := e.Manifest(); ok && manifest.SnapshotID == snapshotID {
		return manifest, false, nil
	}

	manifest, err := snapshot.LoadManifest(ctx, e.store, e.prefix, snapshotID)
	if err != nil {
		return snapshot.Manifest{}, false, err
	}
	next, err := e.materialize(ctx, manifest)
	if err != nil {
		return snapshot.Manifest{}, false, err
	}

	e.mu.Lock()
	previous := e.current
	e.current = next
	e.mu.Unlock()

	if previous != nil {
		previous.close()
	}
	e.logger.InfoContext(ctx, "duckdb snapshot loaded",
		slog.String("snapshot_id", manifest.SnapshotID),
		slog.Int("tables", len(manifest.Tables)),
		slog.Int64("rows", manifest.RowCount()),
	)
	return manifest, true, nil
}

func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, _, err := e.Refresh(ctx); err != nil && ctx.Err() == nil {
			e.logger.ErrorContext(ctx, "duckdb snapshot refresh failed", slog.Any("error", err))
		}
	}
}

func (e *Engine) Manifest() (snapshot.Manifest, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return snapshot.Manifest{}, false
	}
	return e.current.manifest, true
}

func (e *Engine) QueryReadOnly(ctx context.Context, statement string, maxRows int) (rowset.ResultSet, error) {
	ws, release, err := e.acquire(ctx)
	if err != nil {
		return rowset.ResultSet{}, err
	}
	defer release()

	rows, err := ws.db.QueryContext(ctx, sqlguard.LimitStatement(statement, rowset.FetchLimit(maxRows)))
	if err != nil {
		return rowset.ResultSet{}, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()
	return rowset.Scan(rows, maxRows)
}

func (e *Engine) HealthCheck(ctx context.Context) error {
	ws, release, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	if err := ws.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping duckdb: %w", err)
	}
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	previous := e.current
	e.current = nil
	e.mu.Unlock()
	if previous != nil {
		previous.close()
	}
	if e.ownsDir {
		return os.RemoveAll(e.workDir)
	}
	return nil
}

// acquire returns the current workspace under a read lock, loading the latest snapshot
// first when none is loaded yet.
func (e *Engine) acquire(ctx context.Context) (*workspace, func(), error) {
	e.mu.RLock()
	if e.current != nil {
		return e.current, e.mu.RUnlock, nil
	}
	e.mu.RUnlock()

	if _, _, err := e.Refresh(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrNoSnapshot, err)
	}

	e.mu.RLock()
	if e.current == nil {
		e.mu.RUnlock()
		return nil, nil, ErrNoSnapshot
	}
	return e.current, e.mu.RUnlock, nil
}

func (e *Engine) materialize(ctx context.Context, manifest snapshot.Manifest) (ws *workspace, err error) {
	dir := filepath.Join(e.workDir, manifest.SnapshotID)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("reset workspace %q: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %q: %w", dir, err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	localPaths := make(map[string]string, len(manifest.Tables))
	for _, table := range manifest.Tables {
		localPath := filepath.Join(dir, sanitizeFileComponent(table.Name)+".parquet")
		if err := e.download(ctx, table.ObjectKey, localPath); err != nil {
			return nil, err
		}
		localPaths[table.Name] = localPath
	}

	databasePath := filepath.Join(dir, databaseFileName)
	writable, err := sql.Open("duckdb", databasePath)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	for _, table := range manifest.Tables {
		// Parquet stores leaves by name; select in manifest order to keep the source layout.
		columns := make([]string, 0, len(table.Columns))
		for _, column := range table.Columns {
			columns = append(columns, snapshot.QuoteIdent(column.Name))
		}
		createSQL := fmt.Sprintf(`CREATE TABLE %s AS SELECT %s FROM read_parquet(%s)`,
			snapshot.QuoteIdent(table.Name), strings.Join(columns, ", "), quoteString(localPaths[table.Name]))
		if _, err := writable.ExecContext(ctx, createSQL); err != nil {
			_ = writable.Close()
			return nil, fmt.Errorf("load table %q: %w", table.Name, err)
		}
	}
	if err := writable.Close(); err != nil {
		return nil, fmt.Errorf("close duckdb writer: %w", err)
	}
	for _, localPath := range localPaths {
		_ = os.Remove(localPath)
	}

	db, err := sql.Open("duckdb", databasePath+"?access_mode=READ_ONLY")
	if err != nil {
		return nil, fmt.Errorf("open duckdb read-only: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return &workspace{manifest: manifest, dir: dir, db: db}, nil
}

func (e *Engine) download(ctx context.Context, key, localPath string) error {
	reader, err := e.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get object %q: %w", key, err)
	}
	if err := writeFile(localPath, reader); err != nil {
		_ = reader.Close()
		return fmt.Errorf("write local parquet file %q: %w", localPath, err)
	}
	if err := reader.Close(); err != nil {
		return fmt.Errorf("close object %q: %w", key, err)
	}
	return nil
}

func (w *workspace) close() {
	_ = w.db.Close()
	_ = os.RemoveAll(w.dir)
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}
