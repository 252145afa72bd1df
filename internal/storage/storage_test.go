package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ PutOptions) (ObjectInfo, error) {
	payload, err := io.ReadAll(body)
	if err != nil {
		return ObjectInfo{}, err
	}
	m.objects[key] = payload
	return ObjectInfo{Key: key, Size: int64(len(payload))}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	payload, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (m *memoryStore) Stat(_ context.Context, key string) (ObjectInfo, error) {
	payload, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, ErrObjectNotFound
	}
	return ObjectInfo{Key: key, Size: int64(len(payload))}, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func TestPutBytesAndReadObject(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{}}
	info, err := PutBytes(context.Background(), store, "snapshots/LATEST", []byte("s1\n"), "text/plain")
	if err != nil {
		t.Fatalf("PutBytes() error = %v", err)
	}
	if info.Size != 3 {
		t.Fatalf("Size = %d", info.Size)
	}

	payload, err := ReadObject(context.Background(), store, "snapshots/LATEST", 16)
	if err != nil {
		t.Fatalf("ReadObject() error = %v", err)
	}
	if string(payload) != "s1\n" {
		t.Fatalf("payload = %q", payload)
	}
}

func TestReadObjectEnforcesLimit(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{"big": bytes.Repeat([]byte("x"), 32)}}
	if _, err := ReadObject(context.Background(), store, "big", 16); err == nil {
		t.Fatal("expected size limit error")
	}
	if _, err := ReadObject(context.Background(), store, "missing", 16); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("error = %v, want ErrObjectNotFound", err)
	}
}
