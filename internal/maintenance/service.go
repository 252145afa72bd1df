// Package maintenance keeps the snapshot area of the object store tidy: retention drops
// snapshots nobody can load anymore and the integrity check verifies the ones that remain.
package maintenance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/polo52/polochat/internal/snapshot"
	"github.com/polo52/polochat/internal/storage"
)

type Config struct {
	Prefix            string
	KeepSnapshots     int
	GCSafetyAge       time.Duration
	RetentionInterval time.Duration
	IntegrityInterval time.Duration
	// DeepIntegrity downloads each table file and compares its Parquet row count with the
	// manifest instead of only checking object sizes.
	DeepIntegrity bool
}

type Service struct {
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time
}

type RetentionSummary struct {
	SnapshotsScanned int `json:"snapshots_scanned"`
	SnapshotsDeleted int `json:"snapshots_deleted"`
	ObjectsDeleted   int `json:"objects_deleted"`
	Failures         int `json:"failures"`
}

type IntegritySummary struct {
	SnapshotsScanned    int `json:"snapshots_scanned"`
	TablesChecked       int `json:"tables_checked"`
	MissingFiles        int `json:"missing_files"`
	SizeMismatchFiles   int `json:"size_mismatch_files"`
	RowMismatchFiles    int `json:"row_mismatch_files"`
	OperationalFailures int `json:"operational_failures"`
}

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	retentionTicker := time.NewTicker(s.Config.RetentionInterval)
	defer retentionTicker.Stop()
	integrityTicker := time.NewTicker(s.Config.IntegrityInterval)
	defer integrityTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-retentionTicker.C:
			summary, err := s.RunRetentionOnce(ctx)
			if err != nil {
				s.Logger.ErrorContext(ctx, "retention cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				continue
			}
			s.Logger.InfoContext(ctx, "retention cycle completed", slog.Any("summary", summary))
		case <-integrityTicker.C:
			summary, err := s.RunIntegrityCheckOnce(ctx)
			if err != nil {
				s.Logger.ErrorContext(ctx, "integrity check failed", slog.Any("error", err), slog.Any("summary", summary))
				continue
			}
			s.Logger.InfoContext(ctx, "integrity check completed", slog.Any("summary", summary))
		}
	}
}

// RunRetentionOnce deletes indexed snapshots beyond the newest KeepSnapshots. The snapshot
// LATEST points at and anything younger than GCSafetyAge are always kept, since an engine
// may still be downloading them.
func (s *Service) RunRetentionOnce(ctx context.Context) (RetentionSummary, error) {
	s.ensureDefaults()
	if s.ObjectStore == nil {
		return RetentionSummary{}, fmt.Errorf("object store is required")
	}

	index, err := snapshot.ReadIndex(ctx, s.ObjectStore, s.Config.Prefix)
	if err != nil {
		return RetentionSummary{}, err
	}
	latest, err := snapshot.LatestSnapshotID(ctx, s.ObjectStore, s.Config.Prefix)
	if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return RetentionSummary{}, err
	}

	summary := RetentionSummary{SnapshotsScanned: len(index.Snapshots)}
	failures := make([]string, 0)
	cutoff := s.Clock().Add(-s.Config.GCSafetyAge)
	keepFrom := len(index.Snapshots) - s.Config.KeepSnapshots

	remaining := snapshot.Index{Snapshots: make([]snapshot.IndexEntry, 0, len(index.Snapshots))}
	for position, entry := range index.Snapshots {
		if position >= keepFrom || entry.SnapshotID == latest || entry.CreatedAt.After(cutoff) {
			remaining.Snapshots = append(remaining.Snapshots, entry)
			continue
		}
		deleted, err := s.deleteSnapshot(ctx, entry.SnapshotID)
		summary.ObjectsDeleted += deleted
		if err != nil {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("snapshot %s: %v", entry.SnapshotID, err))
			remaining.Snapshots = append(remaining.Snapshots, entry)
			continue
		}
		summary.SnapshotsDeleted++
		s.Logger.InfoContext(ctx, "snapshot deleted", slog.String("snapshot_id", entry.SnapshotID), slog.Int("objects", deleted))
	}

	if summary.SnapshotsDeleted > 0 {
		if err := snapshot.WriteIndex(ctx, s.ObjectStore, s.Config.Prefix, remaining); err != nil {
			summary.Failures++
			failures = append(failures, err.Error())
		}
	}
	if summary.ObjectsDeleted > 0 {
		gcObjectsDeletedTotal.Add(float64(summary.ObjectsDeleted))
	}
	if len(failures) > 0 {
		retentionRunsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("retention encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	retentionRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

// deleteSnapshot removes table files before the manifest so a half-deleted snapshot is
// still described by its manifest and the next run can finish the job.
func (s *Service) deleteSnapshot(ctx context.Context, snapshotID string) (int, error) {
	manifestKey, err := storage.BuildManifestPath(s.Config.Prefix, snapshotID)
	if err != nil {
		return 0, err
	}
	manifest, err := snapshot.LoadManifest(ctx, s.ObjectStore, s.Config.Prefix, snapshotID)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return 0, nil
		}
		return 0, err
	}

	deleted := 0
	for _, table := range manifest.Tables {
		if err := s.ObjectStore.Delete(ctx, table.ObjectKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			return deleted, fmt.Errorf("delete object %s: %w", table.ObjectKey, err)
		}
		deleted++
	}
	if err := s.ObjectStore.Delete(ctx, manifestKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return deleted, fmt.Errorf("delete manifest %s: %w", manifestKey, err)
	}
	return deleted + 1, nil
}

// RunIntegrityCheckOnce verifies that every indexed snapshot, and the one LATEST points at,
// still has all of its table files at the sizes its manifest recorded.
func (s *Service) RunIntegrityCheckOnce(ctx context.Context) (IntegritySummary, error) {
	s.ensureDefaults()
	if s.ObjectStore == nil {
		return IntegritySummary{}, fmt.Errorf("object store is required")
	}

	const maxIssueSamples = 20
	issueSamples := make([]string, 0, maxIssueSamples)
	issueCount := 0
	addIssue := func(message string) {
		issueCount++
		if len(issueSamples) < maxIssueSamples {
			issueSamples = append(issueSamples, message)
		}
	}

	snapshotIDs, err := s.integrityTargets(ctx)
	if err != nil {
		return IntegritySummary{}, err
	}

	summary := IntegritySummary{SnapshotsScanned: len(snapshotIDs)}
	for _, snapshotID := range snapshotIDs {
		manifest, err := snapshot.LoadManifest(ctx, s.ObjectStore, s.Config.Prefix, snapshotID)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				summary.MissingFiles++
				addIssue(fmt.Sprintf("snapshot %s missing manifest", snapshotID))
				continue
			}
			summary.OperationalFailures++
			addIssue(fmt.Sprintf("snapshot %s manifest: %v", snapshotID, err))
			continue
		}

		for _, table := range manifest.Tables {
			summary.TablesChecked++
			info, err := s.ObjectStore.Stat(ctx, table.ObjectKey)
			if err != nil {
				if errors.Is(err, storage.ErrObjectNotFound) {
					summary.MissingFiles++
					addIssue(fmt.Sprintf("snapshot %s missing file %s", snapshotID, table.ObjectKey))
					continue
				}
				summary.OperationalFailures++
				addIssue(fmt.Sprintf("snapshot %s stat file %s: %v", snapshotID, table.ObjectKey, err))
				continue
			}
			if info.Size != table.SizeBytes {
				summary.SizeMismatchFiles++
				addIssue(fmt.Sprintf("snapshot %s size mismatch for %s (expected=%d actual=%d)", snapshotID, table.ObjectKey, table.SizeBytes, info.Size))
				continue
			}
			if !s.Config.DeepIntegrity {
				continue
			}
			rows, err := s.countParquetRows(ctx, table.ObjectKey, info.Size)
			if err != nil {
				summary.OperationalFailures++
				addIssue(fmt.Sprintf("snapshot %s read file %s: %v", snapshotID, table.ObjectKey, err))
				continue
			}
			if rows != table.RowCount {
				summary.RowMismatchFiles++
				addIssue(fmt.Sprintf("snapshot %s row count mismatch for %s (expected=%d actual=%d)", snapshotID, table.ObjectKey, table.RowCount, rows))
			}
		}
	}

	if summary.TablesChecked > 0 {
		integrityFilesCheckedTotal.Add(float64(summary.TablesChecked))
	}
	if summary.MissingFiles > 0 {
		integrityMissingFilesTotal.Add(float64(summary.MissingFiles))
	}
	if summary.SizeMismatchFiles+summary.RowMismatchFiles > 0 {
		integrityMismatchFilesTotal.Add(float64(summary.SizeMismatchFiles + summary.RowMismatchFiles))
	}
	if issueCount > 0 {
		integrityRunsTotal.WithLabelValues("failed").Inc()
		extra := issueCount - len(issueSamples)
		if extra > 0 {
			return summary, fmt.Errorf("integrity check found %d issue(s): %s; ... plus %d more", issueCount, strings.Join(issueSamples, "; "), extra)
		}
		return summary, fmt.Errorf("integrity check found %d issue(s): %s", issueCount, strings.Join(issueSamples, "; "))
	}
	integrityRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

func (s *Service) integrityTargets(ctx context.Context) ([]string, error) {
	index, err := snapshot.ReadIndex(ctx, s.ObjectStore, s.Config.Prefix)
	if err != nil {
		return nil, err
	}
	targets := make([]string, 0, len(index.Snapshots)+1)
	seen := make(map[string]struct{}, len(index.Snapshots)+1)
	for _, entry := range index.Snapshots {
		targets = append(targets, entry.SnapshotID)
		seen[entry.SnapshotID] = struct{}{}
	}

	latest, err := snapshot.LatestSnapshotID(ctx, s.ObjectStore, s.Config.Prefix)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
	case err != nil:
		return nil, err
	default:
		if _, ok := seen[latest]; !ok {
			targets = append(targets, latest)
		}
	}
	return targets, nil
}

func (s *Service) countParquetRows(ctx context.Context, key string, size int64) (int64, error) {
	payload, err := storage.ReadObject(ctx, s.ObjectStore, key, size)
	if err != nil {
		return 0, err
	}
	file, err := parquet.OpenFile(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return 0, fmt.Errorf("open parquet: %w", err)
	}
	return file.NumRows(), nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Config.RetentionInterval <= 0 {
		s.Config.RetentionInterval = 10 * time.Minute
	}
	if s.Config.IntegrityInterval <= 0 {
		s.Config.IntegrityInterval = time.Hour
	}
	if s.Config.KeepSnapshots < 1 {
		s.Config.KeepSnapshots = 3
	}
	if s.Config.GCSafetyAge <= 0 {
		s.Config.GCSafetyAge = 30 * time.Minute
	}
}
