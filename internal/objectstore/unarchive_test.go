package objectstore

import (
	"context"
	"testing"

	"github.com/spf13/afero"

	"modeltrain/internal/testutil"
)

func TestUnpack(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	data := testutil.TarGz(t, []testutil.ArchiveEntry{
		{Name: "windows/", Dir: true},
		{Name: "windows/a.log", Body: "line a"},
		{Name: "windows/nested/b.log", Body: "line b"},
		{Name: "windows/link", Body: "a.log", Symlink: true},
	}...)
	if err := afero.WriteFile(fs, "/stage/windows.tar.gz", data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if err := Unpack(context.Background(), fs, "/stage/windows.tar.gz", "/stage"); err != nil {
		t.Fatalf("Unpack() error = %v", err)
	}

	tests := map[string]string{
		"/stage/windows/a.log":        "line a",
		"/stage/windows/nested/b.log": "line b",
	}
	for path, want := range tests {
		got, err := afero.ReadFile(fs, path)
		if err != nil {
			t.Errorf("ReadFile(%s) error = %v", path, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}

	if exists, _ := afero.Exists(fs, "/stage/windows/link"); exists {
		t.Error("Symlinks should be skipped")
	}
}

func TestUnpack_RejectsTraversal(t *testing.T) {
	t.Parallel()

	tests := []string{"../escape.txt", "windows/../../escape.txt", "/etc/passwd"}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fs := afero.NewMemMapFs()
			data := testutil.TarGz(t, []testutil.ArchiveEntry{{Name: name, Body: "x"}}...)
			if err := afero.WriteFile(fs, "/stage/a.tar.gz", data, 0o644); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}

			if err := Unpack(context.Background(), fs, "/stage/a.tar.gz", "/stage/out"); err == nil {
				t.Errorf("Expected traversal entry %q to be rejected", name)
			}
		})
	}
}

func TestUnpack_NotGzip(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/stage/a.tar.gz", []byte("plain text"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if err := Unpack(context.Background(), fs, "/stage/a.tar.gz", "/stage/out"); err == nil {
		t.Error("Expected error for non-gzip input")
	}
}

func TestUnpack_MissingArchive(t *testing.T) {
	t.Parallel()

	if err := Unpack(context.Background(), afero.NewMemMapFs(), "/nope.tar.gz", "/out"); err == nil {
		t.Error("Expected error for missing archive")
	}
}
