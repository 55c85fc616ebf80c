package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kjstillabower/wrf-grid-viewer/internal/models"
	"github.com/kjstillabower/wrf-grid-viewer/internal/observability"
)

// MinIOConfig holds object storage connection settings.
type MinIOConfig struct {
	Endpoint  string // e.g., "localhost:9000"
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string // optional key prefix in front of every resolved path
	UseSSL    bool
}

// MinIOSource reads grid documents from an S3-compatible bucket. Object keys
// are the resolved grid paths under Prefix.
type MinIOSource struct {
	client *minio.Client
	bucket string
	prefix string
	paths  *PathResolver
}

// NewMinIOSource connects and checks that the bucket exists. The bucket is
// never created: grids are published by the forecast pipeline.
func NewMinIOSource(ctx context.Context, cfg MinIOConfig, paths *PathResolver) (*MinIOSource, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}
	if paths == nil {
		paths = DefaultPathResolver()
	}

	return &MinIOSource{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		paths:  paths,
	}, nil
}

// FetchGrid reads the first object that exists among the resolved paths.
func (m *MinIOSource) FetchGrid(ctx context.Context, key models.GridKey) ([]byte, error) {
	for _, p := range m.paths.GridPaths(key) {
		body, err := m.get(ctx, m.objectKey(p))
		if err == nil {
			return body, nil
		}
		if !isNoSuchKey(err) {
			return nil, fmt.Errorf("fetch %s: %w", p, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Exists stats each resolved object key in order.
func (m *MinIOSource) Exists(ctx context.Context, key models.GridKey) (bool, error) {
	var lastErr error
	for _, p := range m.paths.GridPaths(key) {
		start := time.Now()
		_, err := m.client.StatObject(ctx, m.bucket, m.objectKey(p), minio.StatObjectOptions{})
		recordObjectCall(http.MethodHead, err, start)
		if err == nil {
			return true, nil
		}
		if !isNoSuchKey(err) {
			lastErr = err
		}
	}
	return false, lastErr
}

func (m *MinIOSource) get(ctx context.Context, objectKey string) ([]byte, error) {
	start := time.Now()
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		recordObjectCall(http.MethodGet, err, start)
		return nil, err
	}
	defer obj.Close()
	body, err := io.ReadAll(io.LimitReader(obj, maxDocumentBytes))
	recordObjectCall(http.MethodGet, err, start)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (m *MinIOSource) objectKey(p string) string {
	if m.prefix == "" {
		return p
	}
	return path.Join(m.prefix, p)
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func recordObjectCall(method string, err error, start time.Time) {
	status := "success"
	switch {
	case err == nil:
	case isNoSuchKey(err):
		status = "not_found"
	default:
		status = "error"
	}
	observability.GridSourceCallsTotal.WithLabelValues(method, status).Inc()
	observability.GridSourceDuration.WithLabelValues(method, status).Observe(time.Since(start).Seconds())
}
