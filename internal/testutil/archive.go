package testutil

import (
	"archive/tar"
	"bytes"
	"testing"

	"github.com/klauspost/pgzip"
)

// ArchiveEntry is one member of a test dataset archive. Dir and Symlink are
// exclusive; for a symlink Body is the link target.
type ArchiveEntry struct {
	Name    string
	Body    string
	Dir     bool
	Symlink bool
}

// TarGz builds a gzip-compressed tar archive in memory.
func TarGz(tb testing.TB, entries ...ArchiveEntry) []byte {
	tb.Helper()

	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: 0o644, Typeflag: tar.TypeReg, Size: int64(len(e.Body))}
		if e.Dir {
			hdr.Typeflag, hdr.Mode, hdr.Size = tar.TypeDir, 0o755, 0
		}
		if e.Symlink {
			hdr.Typeflag, hdr.Linkname, hdr.Size = tar.TypeSymlink, e.Body, 0
		}
		if err := tw.WriteHeader(hdr); err != nil {
			tb.Fatalf("Write header %s: %v", e.Name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.Body)); err != nil {
				tb.Fatalf("Write body %s: %v", e.Name, err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		tb.Fatalf("Close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		tb.Fatalf("Close gzip: %v", err)
	}
	return buf.Bytes()
}

// Dataset returns an archive holding dir/ with one log file per name.
func Dataset(tb testing.TB, dir string, logs map[string]string) []byte {
	tb.Helper()
	entries := []ArchiveEntry{{Name: dir + "/", Dir: true}}
	for name, body := range logs {
		entries = append(entries, ArchiveEntry{Name: dir + "/" + name, Body: body})
	}
	return TarGz(tb, entries...)
}
