package objectstore

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/pgzip"
	"github.com/spf13/afero"
)

// Unpack extracts the tar.gz archive at archivePath into destDir on fs.
// Entries that would land outside destDir are rejected. A failed extraction
// leaves whatever was already written in place.
func Unpack(ctx context.Context, fs afero.Fs, archivePath, destDir string) error {
	file, err := fs.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	gzReader, err := pgzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	if err := fs.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	tarReader := tar.NewReader(gzReader)
	files := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar header: %w", err)
		}

		name := filepath.Clean(header.Name)
		if name == "." {
			continue
		}
		if !filepath.IsLocal(name) {
			return fmt.Errorf("invalid path in archive: %s", header.Name)
		}
		targetPath := filepath.Join(destDir, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := fs.MkdirAll(targetPath, dirMode(header.Mode)); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}

		case tar.TypeReg:
			if err := fs.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
				return fmt.Errorf("failed to create parent directory: %w", err)
			}
			if err := writeEntry(fs, targetPath, tarReader, header.Mode); err != nil {
				return err
			}
			files++

		default:
			slog.Debug("Skipping archive entry", "name", header.Name, "type", header.Typeflag)
		}
	}

	slog.Debug("Extracted archive", "src", archivePath, "dest", destDir, "files", files)
	return nil
}

func writeEntry(fs afero.Fs, path string, r io.Reader, mode int64) error {
	out, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode(mode))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract file: %w", err)
	}
	return out.Close()
}

func fileMode(mode int64) os.FileMode {
	if m := os.FileMode(mode).Perm(); m != 0 {
		return m
	}
	return 0o644
}

func dirMode(mode int64) os.FileMode {
	if m := os.FileMode(mode).Perm(); m != 0 {
		return m | 0o700
	}
	return 0o755
}
