package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/motebus/Ultra-MCP-Servers/internal/config"
	"github.com/motebus/Ultra-MCP-Servers/mcpservice"
)

// ObjectStore is the subset of the S3 API the server uses.
type ObjectStore interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string) error
	RemoveBucket(ctx context.Context, bucket string) error

	// ListObjects collects the listing; the first listing error aborts it.
	ListObjects(ctx context.Context, bucket, prefix string, recursive bool) ([]minio.ObjectInfo, error)
	StatObject(ctx context.Context, bucket, object string) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, object string) error
	FPutObject(ctx context.Context, bucket, object, path string) error
	FGetObject(ctx context.Context, bucket, object, path string) error

	// ReadObject returns ErrNoSuchObject when the bucket or key is missing.
	ReadObject(ctx context.Context, bucket, object string) ([]byte, error)
}

// ErrNoSuchObject reports a missing bucket or key.
var ErrNoSuchObject = errors.New("no such object")

// Connector returns the ObjectStore for the current configuration.
type Connector func(ctx context.Context) (ObjectStore, error)

// MinIOConfig loads MinIO credentials. *config.Desktop satisfies it.
type MinIOConfig interface {
	MinIO() (config.MinIO, error)
}

// Dial returns a Connector that reads src on every call and reuses the
// client until the configuration changes.
func Dial(src MinIOConfig) Connector {
	var (
		mu    sync.Mutex
		last  config.MinIO
		store ObjectStore
	)
	return func(ctx context.Context) (ObjectStore, error) {
		cfg, err := src.MinIO()
		if err != nil {
			return nil, &mcpservice.ConfigError{Err: err}
		}
		mu.Lock()
		defer mu.Unlock()
		if store != nil && cfg == last {
			return store, nil
		}
		endpoint, secure := splitEndpoint(cfg.ServerURL, cfg.Secure)
		client, err := minio.New(endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: secure,
		})
		if err != nil {
			return nil, mcpservice.NewConfigError("Failed to create MinIO client: %v", err)
		}
		store, last = &minioStore{c: client}, cfg
		return store, nil
	}
}

// splitEndpoint accepts both host:port and URL forms of the server address.
func splitEndpoint(serverURL string, secure bool) (string, bool) {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(serverURL, "https://"), "/"), true
	case strings.HasPrefix(serverURL, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(serverURL, "http://"), "/"), secure
	}
	return serverURL, secure
}

type minioStore struct {
	c *minio.Client
}

func (m *minioStore) ListBuckets(ctx context.Context) ([]minio.BucketInfo, error) {
	return m.c.ListBuckets(ctx)
}

func (m *minioStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return m.c.BucketExists(ctx, bucket)
}

func (m *minioStore) MakeBucket(ctx context.Context, bucket string) error {
	return m.c.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

func (m *minioStore) RemoveBucket(ctx context.Context, bucket string) error {
	return m.c.RemoveBucket(ctx, bucket)
}

func (m *minioStore) ListObjects(ctx context.Context, bucket, prefix string, recursive bool) ([]minio.ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var out []minio.ObjectInfo
	for obj := range m.c.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: recursive}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		out = append(out, obj)
	}
	return out, nil
}

func (m *minioStore) StatObject(ctx context.Context, bucket, object string) (minio.ObjectInfo, error) {
	return m.c.StatObject(ctx, bucket, object, minio.StatObjectOptions{})
}

func (m *minioStore) RemoveObject(ctx context.Context, bucket, object string) error {
	return m.c.RemoveObject(ctx, bucket, object, minio.RemoveObjectOptions{})
}

func (m *minioStore) FPutObject(ctx context.Context, bucket, object, path string) error {
	_, err := m.c.FPutObject(ctx, bucket, object, path, minio.PutObjectOptions{})
	return err
}

func (m *minioStore) FGetObject(ctx context.Context, bucket, object, path string) error {
	return m.c.FGetObject(ctx, bucket, object, path, minio.GetObjectOptions{})
}

func (m *minioStore) ReadObject(ctx context.Context, bucket, object string) ([]byte, error) {
	obj, err := m.c.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(err)
	}
	defer obj.Close()
	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify(err)
	}
	return b, nil
}

func classify(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %v", ErrNoSuchObject, err)
	}
	return err
}
