package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

// ObjectStore holds snapshot artifacts: one Parquet file per table, a manifest per
// snapshot and the LATEST pointer.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

func PutBytes(ctx context.Context, store ObjectStore, key string, payload []byte, contentType string) (ObjectInfo, error) {
	return store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), PutOptions{ContentType: contentType})
}

// ReadObject reads a small object fully. Objects larger than limit bytes are an error.
func ReadObject(ctx context.Context, store ObjectStore, key string, limit int64) ([]byte, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	payload, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	if int64(len(payload)) > limit {
		return nil, fmt.Errorf("object %q exceeds %d bytes", key, limit)
	}
	return payload, nil
}
