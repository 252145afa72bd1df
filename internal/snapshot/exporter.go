package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/polo52/polochat/internal/observability"
	"github.com/polo52/polochat/internal/rowset"
	"github.com/polo52/polochat/internal/schema"
	"github.com/polo52/polochat/internal/storage"
)

const (
	parquetContentType  = "application/vnd.apache.parquet"
	manifestContentType = "application/json"
	MaxManifestBytes    = 4 << 20
)

type SchemaDescriber interface {
	Describe(ctx context.Context) (schema.Description, error)
}

// TableReader runs an unbounded read-only statement. The Postgres warehouse executor
// satisfies it when called with maxRows 0.
type TableReader interface {
	QueryReadOnly(ctx context.Context, statement string, maxRows int) (rowset.ResultSet, error)
}

type Config struct {
	Prefix      string
	Concurrency int
}

type Exporter struct {
	Describer   SchemaDescriber
	Reader      TableReader
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Export copies every visible table into a new snapshot. The manifest and the LATEST
// pointer are written only after all table files are uploaded; a failed export removes
// whatever it already uploaded and leaves LATEST untouched.
func (e *Exporter) Export(ctx context.Context) (manifest Manifest, err error) {
	e.ensureDefaults()
	defer func() {
		observability.ObserveSnapshotExport(manifest.RowCount(), err)
	}()

	description, err := e.Describer.Describe(ctx)
	if err != nil {
		return Manifest{}, fmt.Errorf("describe source: %w", err)
	}

	now := e.Clock().UTC()
	snapshotID := newSnapshotID(now)
	logger := e.Logger.With(slog.String("snapshot_id", snapshotID))

	tables := make([]Table, len(description.Tables))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.Config.Concurrency)
	for index, table := range description.Tables {
		group.Go(func() error {
			exported, err := e.exportTable(groupCtx, snapshotID, table)
			if err != nil {
				return err
			}
			tables[index] = exported
			logger.InfoContext(groupCtx, "snapshot table exported",
				slog.String("table", exported.Name),
				slog.Int64("rows", exported.RowCount),
				slog.Int64("bytes", exported.SizeBytes),
			)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		e.cleanup(ctx, logger, tables)
		return Manifest{}, err
	}

	manifest = Manifest{SnapshotID: snapshotID, CreatedAt: now, Tables: tables}
	if err := manifest.Validate(); err != nil {
		e.cleanup(ctx, logger, tables)
		return Manifest{}, fmt.Errorf("validate manifest: %w", err)
	}
	if err := e.publish(ctx, manifest); err != nil {
		e.cleanup(ctx, logger, tables)
		return Manifest{}, err
	}

	// LATEST already moved; an index miss only delays retention of this snapshot.
	if err := e.recordInIndex(ctx, manifest); err != nil {
		logger.WarnContext(ctx, "snapshot index update failed", slog.Any("error", err))
	}

	logger.InfoContext(ctx, "snapshot published",
		slog.Int("tables", len(manifest.Tables)),
		slog.Int64("rows", manifest.RowCount()),
	)
	return manifest, nil
}

func (e *Exporter) exportTable(ctx context.Context, snapshotID string, table schema.Table) (Table, error) {
	columns := columnsFromSchema(table)
	names := make([]string, 0, len(columns))
	for _, column := range columns {
		names = append(names, QuoteIdent(column.Name))
	}
	statement := fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), QuoteIdent(table.Name))

	result, err := e.Reader.QueryReadOnly(ctx, statement, 0)
	if err != nil {
		return Table{}, fmt.Errorf("read table %q: %w", table.Name, err)
	}
	encoded, err := EncodeTable(table.Name, columns, result.Rows)
	if err != nil {
		return Table{}, fmt.Errorf("encode table %q: %w", table.Name, err)
	}

	key, err := storage.BuildSnapshotTablePath(e.Config.Prefix, snapshotID, table.Name)
	if err != nil {
		return Table{}, err
	}
	if _, err := storage.PutBytes(ctx, e.ObjectStore, key, encoded.Data, parquetContentType); err != nil {
		return Table{}, fmt.Errorf("upload table %q: %w", table.Name, err)
	}

	return Table{
		Name:        table.Name,
		ObjectKey:   key,
		RowCount:    encoded.RecordCount,
		SizeBytes:   int64(len(encoded.Data)),
		Columns:     columns,
		ForeignKeys: table.ForeignKeys,
	}, nil
}

func (e *Exporter) publish(ctx context.Context, manifest Manifest) error {
	payload, err := MarshalManifest(manifest)
	if err != nil {
		return err
	}
	manifestKey, err := storage.BuildManifestPath(e.Config.Prefix, manifest.SnapshotID)
	if err != nil {
		return err
	}
	if _, err := storage.PutBytes(ctx, e.ObjectStore, manifestKey, payload, manifestContentType); err != nil {
		return fmt.Errorf("upload manifest: %w", err)
	}
	latestKey := storage.BuildLatestPath(e.Config.Prefix)
	if _, err := storage.PutBytes(ctx, e.ObjectStore, latestKey, []byte(manifest.SnapshotID+"\n"), "text/plain"); err != nil {
		_ = e.ObjectStore.Delete(ctx, manifestKey)
		return fmt.Errorf("move latest pointer: %w", err)
	}
	return nil
}

func (e *Exporter) recordInIndex(ctx context.Context, manifest Manifest) error {
	index, err := ReadIndex(ctx, e.ObjectStore, e.Config.Prefix)
	if err != nil {
		return err
	}
	return WriteIndex(ctx, e.ObjectStore, e.Config.Prefix, index.With(IndexEntry{SnapshotID: manifest.SnapshotID, CreatedAt: manifest.CreatedAt}))
}

func (e *Exporter) cleanup(ctx context.Context, logger *slog.Logger, tables []Table) {
	for _, table := range tables {
		if table.ObjectKey == "" {
			continue
		}
		if err := e.ObjectStore.Delete(context.WithoutCancel(ctx), table.ObjectKey); err != nil {
			logger.WarnContext(ctx, "snapshot cleanup failed", slog.String("key", table.ObjectKey), slog.Any("error", err))
		}
	}
}

func (e *Exporter) ensureDefaults() {
	if e.Config.Concurrency <= 0 {
		e.Config.Concurrency = 4
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	if e.Clock == nil {
		e.Clock = time.Now
	}
}

func newSnapshotID(now time.Time) string {
	return now.Format("20060102T150405Z") + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// LatestSnapshotID reads the LATEST pointer under prefix.
func LatestSnapshotID(ctx context.Context, store storage.ObjectStore, prefix string) (string, error) {
	payload, err := storage.ReadObject(ctx, store, storage.BuildLatestPath(prefix), 256)
	if err != nil {
		return "", fmt.Errorf("read latest pointer: %w", err)
	}
	snapshotID := strings.TrimSpace(string(payload))
	if err := storage.ValidateSnapshotID(snapshotID); err != nil {
		return "", fmt.Errorf("latest pointer: %w", err)
	}
	return snapshotID, nil
}

func LoadManifest(ctx context.Context, store storage.ObjectStore, prefix, snapshotID string) (Manifest, error) {
	key, err := storage.BuildManifestPath(prefix, snapshotID)
	if err != nil {
		return Manifest{}, err
	}
	payload, err := storage.ReadObject(ctx, store, key, MaxManifestBytes)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	manifest, err := UnmarshalManifest(payload)
	if err != nil {
		return Manifest{}, err
	}
	if manifest.SnapshotID != snapshotID {
		return Manifest{}, fmt.Errorf("manifest %s claims snapshot id %s", key, manifest.SnapshotID)
	}
	return manifest, nil
}
