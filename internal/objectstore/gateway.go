package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"modeltrain/internal/apperrors"
)

// Gateway performs the job-level object store operations: making sure the
// models bucket exists, fetching and unpacking the dataset, and uploading
// artifacts. It never retries.
type Gateway struct {
	store  Store
	fs     afero.Fs
	logger *slog.Logger

	mu    sync.Mutex
	known map[string]struct{}
}

// NewGateway creates a gateway over store. Downloaded archives are unpacked
// on the local OS filesystem.
func NewGateway(store Store) *Gateway {
	return &Gateway{
		store:  store,
		fs:     afero.NewOsFs(),
		logger: slog.With("component", "objectstore"),
		known:  make(map[string]struct{}),
	}
}

// EnsureBucket makes sure bucket exists, creating it only when the store
// reports it missing. Once a bucket has been observed it is never checked or
// created again by this gateway.
func (g *Gateway) EnsureBucket(ctx context.Context, bucket string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.known[bucket]; ok {
		return nil
	}

	err := g.store.HeadBucket(ctx, bucket)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrNotFound):
		if err := g.store.CreateBucket(ctx, bucket); err != nil {
			return g.classify("create bucket", err)
		}
		g.logger.Info("Created bucket", "bucket", bucket)
	default:
		return g.classify("head bucket", err)
	}

	g.known[bucket] = struct{}{}
	return nil
}

// DownloadAndUnpack downloads src to archivePath and extracts it into
// destDir. An unreachable endpoint yields an error matching
// apperrors.ErrConnectivity.
func (g *Gateway) DownloadAndUnpack(ctx context.Context, src Location, archivePath, destDir string) error {
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	if err := g.store.DownloadFile(ctx, src, archivePath); err != nil {
		return g.classify("download "+src.String(), err)
	}
	g.logger.Debug("Downloaded archive", "src", src.String(), "path", archivePath)

	if err := Unpack(ctx, g.fs, archivePath, destDir); err != nil {
		return fmt.Errorf("unpack %s: %w", src.String(), err)
	}
	return nil
}

// UploadArtifact uploads the file at localPath to dst. Failures match
// apperrors.ErrUpload, and additionally apperrors.ErrConnectivity when the
// endpoint could not be reached.
func (g *Gateway) UploadArtifact(ctx context.Context, localPath string, dst Location) error {
	if err := g.store.UploadFile(ctx, localPath, dst); err != nil {
		return apperrors.Upload(dst.Bucket, dst.Key, g.classify("put object", err))
	}
	g.logger.Debug("Uploaded artifact", "path", localPath, "dst", dst.String())
	return nil
}

// Ready reports whether the store answers. A missing bucket still counts as
// reachable.
func (g *Gateway) Ready(ctx context.Context, bucket string) error {
	err := g.store.HeadBucket(ctx, bucket)
	if err == nil || errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return g.classify("head bucket", err)
}

func (g *Gateway) classify(op string, err error) error {
	if isUnreachable(err) {
		return apperrors.Connectivity(op, g.store.Endpoint(), err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
