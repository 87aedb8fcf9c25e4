//go:build integration

package trainer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDocker_Train(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	d, err := NewDocker(ctx, DockerConfig{
		Image:   "alpine:latest",
		Command: `sh -c 'ls "$INPUT_DIR" > "$OUTPUT_DIR/listing"; echo "$NR_EPOCHS" > "$OUTPUT_DIR/epochs"'`,
	})
	if err != nil {
		t.Fatalf("NewDocker() error = %v", err)
	}
	defer d.Close()

	if err := d.Ready(ctx); err != nil {
		t.Skipf("Docker daemon not available: %v", err)
	}

	req := stage(t)
	req.JobID = fmt.Sprintf("it-%d", time.Now().UnixNano())
	if err := os.WriteFile(filepath.Join(req.InputDir, "a.log"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	// The container may run as another user.
	if err := os.Chmod(req.OutputDir, 0o777); err != nil {
		t.Fatalf("Chmod() error = %v", err)
	}

	if err := d.Train(ctx, req); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	listing, err := os.ReadFile(filepath.Join(req.OutputDir, "listing"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if strings.TrimSpace(string(listing)) != "a.log" {
		t.Errorf("Expected dataset to be mounted, got %q", listing)
	}

	epochs, _ := os.ReadFile(filepath.Join(req.OutputDir, "epochs"))
	if strings.TrimSpace(string(epochs)) != "3" {
		t.Errorf("Expected 3 epochs, got %q", epochs)
	}
}

func TestDocker_NonZeroExit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	d, err := NewDocker(ctx, DockerConfig{Image: "alpine:latest", Command: "sh -c 'exit 2'"})
	if err != nil {
		t.Fatalf("NewDocker() error = %v", err)
	}
	defer d.Close()

	if err := d.Ready(ctx); err != nil {
		t.Skipf("Docker daemon not available: %v", err)
	}

	req := stage(t)
	req.JobID = fmt.Sprintf("it-exit-%d", time.Now().UnixNano())
	if err := d.Train(ctx, req); err == nil || !strings.Contains(err.Error(), "code 2") {
		t.Errorf("Expected exit code error, got %v", err)
	}
}
