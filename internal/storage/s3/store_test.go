package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/polo52/polochat/internal/config"
	"github.com/polo52/polochat/internal/storage"
)

func TestPutUsesPrefixAndNormalizedKey(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "polochat/prod", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	_, err = store.Put(context.Background(), "/snapshots/s1/empresa.parquet", bytes.NewBufferString("abc"), 3, storage.PutOptions{ContentType: "application/octet-stream"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastPutBucket != "bucket-a" {
		t.Fatalf("bucket = %q", fake.lastPutBucket)
	}
	if fake.lastPutKey != "polochat/prod/snapshots/s1/empresa.parquet" {
		t.Fatalf("key = %q", fake.lastPutKey)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	_, err = store.Put(context.Background(), "../secrets.txt", bytes.NewBufferString("x"), 1, storage.PutOptions{})
	if err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeClient{bucketExists: false}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if !fake.createBucketCalled {
		t.Fatal("expected CreateBucket to be called")
	}
}

func TestDeleteIgnoresMissingObject(t *testing.T) {
	fake := &fakeClient{deleteErr: storage.ErrObjectNotFound}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.Delete(context.Background(), "missing/file.parquet"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestPingReportsMissingBucket(t *testing.T) {
	store, err := NewWithClient("bucket-a", "", &fakeClient{bucketExists: false})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.Ping(context.Background()); err == nil {
		t.Fatal("expected missing bucket error")
	}

	store, _ = NewWithClient("bucket-a", "", &fakeClient{bucketExists: true})
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestMissingBucketIsNotAMissingObject(t *testing.T) {
	store, err := NewWithClient("bucket-a", "snapshots", &fakeClient{statErr: ErrBucketMissing})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	_, err = store.Stat(context.Background(), "LATEST")
	if !errors.Is(err, ErrBucketMissing) {
		t.Fatalf("Stat() error = %v, want ErrBucketMissing", err)
	}
	if errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("missing bucket reported as missing object: %v", err)
	}

	store, _ = NewWithClient("bucket-a", "snapshots", &fakeClient{statErr: storage.ErrObjectNotFound})
	if _, err := store.Stat(context.Background(), "LATEST"); err != storage.ErrObjectNotFound {
		t.Fatalf("Stat() error = %v, want bare ErrObjectNotFound", err)
	}
}

func TestObjectKeyStaysUnderPrefix(t *testing.T) {
	store, err := NewWithClient("bucket-a", "/polochat/prod/", &fakeClient{})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	got, err := store.objectKey("snap-1/./empresa.parquet")
	if err != nil || got != "polochat/prod/snap-1/empresa.parquet" {
		t.Fatalf("objectKey() = %q, %v", got, err)
	}
	for _, key := range []string{"", "..", "a/../../b", "/"} {
		if _, err := store.objectKey(key); err == nil {
			t.Fatalf("objectKey(%q) expected error", key)
		}
	}
}

func TestTranslateMinioErr(t *testing.T) {
	if err := translateMinioErr(minio.ErrorResponse{Code: "NoSuchKey"}); err != storage.ErrObjectNotFound {
		t.Fatalf("NoSuchKey -> %v", err)
	}
	if err := translateMinioErr(minio.ErrorResponse{Code: "NoSuchBucket"}); err != ErrBucketMissing {
		t.Fatalf("NoSuchBucket -> %v", err)
	}
	denied := minio.ErrorResponse{Code: "AccessDenied"}
	if err := translateMinioErr(denied); !errors.As(err, new(minio.ErrorResponse)) {
		t.Fatalf("AccessDenied -> %v", err)
	}
	if translateMinioErr(nil) != nil {
		t.Fatal("nil error translated to non-nil")
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.ObjectStoreConfig{Endpoint: "minio:9000", Bucket: "polochat", Prefix: "prod", UseSSL: true})
	if cfg.Endpoint != "minio:9000" || cfg.Bucket != "polochat" || cfg.Prefix != "prod" || !cfg.UseSSL {
		t.Fatalf("ConfigFrom() = %+v", cfg)
	}
}

func TestParseEndpoint(t *testing.T) {
	endpoint, secure, err := parseEndpoint("https://minio.example.com", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "minio.example.com" || !secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}

	endpoint, secure, err = parseEndpoint("minio:9000", false)
	if err != nil || endpoint != "minio:9000" || secure {
		t.Fatalf("parseEndpoint(host:port) = %q/%v/%v", endpoint, secure, err)
	}
	if _, _, err := parseEndpoint("ftp://minio:9000", false); err == nil {
		t.Fatal("expected unsupported scheme error")
	}
}

type fakeClient struct {
	lastPutBucket      string
	lastPutKey         string
	bucketExists       bool
	createBucketCalled bool
	deleteErr          error
	statErr            error
}

func (f *fakeClient) Put(_ context.Context, bucket, key string, reader io.Reader, size int64, _ string) (storage.ObjectInfo, error) {
	f.lastPutBucket = bucket
	f.lastPutKey = key
	_, _ = io.Copy(io.Discard, reader)
	return storage.ObjectInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeClient) Get(_ context.Context, _, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeClient) Stat(_ context.Context, _, key string) (storage.ObjectInfo, error) {
	if f.statErr != nil {
		return storage.ObjectInfo{}, f.statErr
	}
	return storage.ObjectInfo{Key: key, Size: 10, LastModified: time.Now().UTC()}, nil
}

func (f *fakeClient) Delete(_ context.Context, _, _ string) error {
	return f.deleteErr
}

func (f *fakeClient) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeClient) CreateBucket(_ context.Context, _, _ string) error {
	f.createBucketCalled = true
	return nil
}
