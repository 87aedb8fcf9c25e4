package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"modeltrain/internal/apperrors"
)

// GCSConfig configures a Google Cloud Storage store.
type GCSConfig struct {
	ProjectID       string
	CredentialsFile string
	Endpoint        string
}

// GCSStore stores objects in Google Cloud Storage.
type GCSStore struct {
	client    *storage.Client
	projectID string
	endpoint  string
}

// NewGCSStore creates a GCS store. Without a credentials file the
// application default credentials are used.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "storage.googleapis.com"
	}
	return &GCSStore{client: client, projectID: cfg.ProjectID, endpoint: endpoint}, nil
}

// HeadBucket checks that bucket exists.
func (s *GCSStore) HeadBucket(ctx context.Context, bucket string) error {
	_, err := s.client.Bucket(bucket).Attrs(ctx)
	if errors.Is(err, storage.ErrBucketNotExist) {
		return apperrors.NotFound("bucket", bucket)
	}
	return err
}

// CreateBucket creates bucket in the configured project.
func (s *GCSStore) CreateBucket(ctx context.Context, bucket string) error {
	return s.client.Bucket(bucket).Create(ctx, s.projectID, nil)
}

// DownloadFile downloads src into a new file at path.
func (s *GCSStore) DownloadFile(ctx context.Context, src Location, path string) error {
	r, err := s.client.Bucket(src.Bucket).Object(src.Key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return apperrors.NotFound("object", src.String())
	}
	if err != nil {
		return err
	}
	defer r.Close()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	return file.Close()
}

// UploadFile uploads the file at path to dst.
func (s *GCSStore) UploadFile(ctx context.Context, path string, dst Location) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := s.client.Bucket(dst.Bucket).Object(dst.Key).NewWriter(ctx)
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

// Endpoint returns the API endpoint in use.
func (s *GCSStore) Endpoint() string {
	return s.endpoint
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
