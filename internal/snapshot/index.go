package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/polo52/polochat/internal/storage"
)

const maxIndexBytes = 1 << 20

type IndexEntry struct {
	SnapshotID string    `json:"snapshot_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Index lists published snapshots oldest first.
type Index struct {
	Snapshots []IndexEntry `json:"snapshots"`
}

func (i Index) With(entry IndexEntry) Index {
	next := Index{Snapshots: make([]IndexEntry, 0, len(i.Snapshots)+1)}
	for _, existing := range i.Snapshots {
		if existing.SnapshotID != entry.SnapshotID {
			next.Snapshots = append(next.Snapshots, existing)
		}
	}
	next.Snapshots = append(next.Snapshots, entry)
	return next
}

// ReadIndex returns an empty index when none has been written yet.
func ReadIndex(ctx context.Context, store storage.ObjectStore, prefix string) (Index, error) {
	payload, err := storage.ReadObject(ctx, store, storage.BuildIndexPath(prefix), maxIndexBytes)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return Index{}, nil
		}
		return Index{}, fmt.Errorf("read snapshot index: %w", err)
	}
	var index Index
	if err := json.Unmarshal(payload, &index); err != nil {
		return Index{}, fmt.Errorf("decode snapshot index: %w", err)
	}
	for _, entry := range index.Snapshots {
		if err := storage.ValidateSnapshotID(entry.SnapshotID); err != nil {
			return Index{}, fmt.Errorf("snapshot index: %w", err)
		}
	}
	return index, nil
}

func WriteIndex(ctx context.Context, store storage.ObjectStore, prefix string, index Index) error {
	if index.Snapshots == nil {
		index.Snapshots = []IndexEntry{}
	}
	payload, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("encode snapshot index: %w", err)
	}
	if _, err := storage.PutBytes(ctx, store, storage.BuildIndexPath(prefix), payload, manifestContentType); err != nil {
		return fmt.Errorf("write snapshot index: %w", err)
	}
	return nil
}
