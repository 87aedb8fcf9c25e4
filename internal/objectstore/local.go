package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"modeltrain/internal/apperrors"
)

// LocalStore keeps buckets as directories under a root on an afero
// filesystem. It serves development setups and tests.
type LocalStore struct {
	fs   afero.Fs
	root string
}

// NewLocalStore creates a store rooted at root on fs.
func NewLocalStore(fs afero.Fs, root string) *LocalStore {
	return &LocalStore{fs: fs, root: root}
}

func (s *LocalStore) bucketPath(bucket string) string {
	return filepath.Join(s.root, bucket)
}

func (s *LocalStore) objectPath(loc Location) (string, error) {
	key := filepath.Clean(filepath.FromSlash(loc.Key))
	if !filepath.IsLocal(key) {
		return "", apperrors.Validation("key", fmt.Sprintf("invalid object key %q", loc.Key))
	}
	return filepath.Join(s.bucketPath(loc.Bucket), key), nil
}

// HeadBucket checks that the bucket directory exists.
func (s *LocalStore) HeadBucket(ctx context.Context, bucket string) error {
	info, err := s.fs.Stat(s.bucketPath(bucket))
	if errors.Is(err, fs.ErrNotExist) {
		return apperrors.NotFound("bucket", bucket)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("bucket path %s is not a directory", s.bucketPath(bucket))
	}
	return nil
}

// CreateBucket creates the bucket directory.
func (s *LocalStore) CreateBucket(ctx context.Context, bucket string) error {
	return s.fs.MkdirAll(s.bucketPath(bucket), 0o755)
}

// DownloadFile copies an object to a path on the local OS filesystem.
func (s *LocalStore) DownloadFile(ctx context.Context, src Location, path string) error {
	objPath, err := s.objectPath(src)
	if err != nil {
		return err
	}

	in, err := s.fs.Open(objPath)
	if errors.Is(err, fs.ErrNotExist) {
		return apperrors.NotFound("object", src.String())
	}
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	return out.Close()
}

// UploadFile copies a local OS file into the store. The bucket must exist.
func (s *LocalStore) UploadFile(ctx context.Context, path string, dst Location) error {
	if err := s.HeadBucket(ctx, dst.Bucket); err != nil {
		return err
	}
	objPath, err := s.objectPath(dst)
	if err != nil {
		return err
	}

	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := s.fs.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return err
	}
	return afero.WriteReader(s.fs, objPath, in)
}

// Endpoint returns a file URL for the root.
func (s *LocalStore) Endpoint() string {
	return "file://" + s.root
}

// Close is a no-op.
func (s *LocalStore) Close() error {
	return nil
}
