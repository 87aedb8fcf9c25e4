package trainer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewExec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		command string
		want    []string
		wantErr bool
	}{
		{"python3 train.py", []string{"python3", "train.py"}, false},
		{`python3 "my trainer.py" --epochs 2`, []string{"python3", "my trainer.py", "--epochs", "2"}, false},
		{"", nil, true},
		{"   ", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			t.Parallel()
			e, err := NewExec(tt.command, 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewExec(%q) error = %v, wantErr %v", tt.command, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if strings.Join(e.argv, "|") != strings.Join(tt.want, "|") {
				t.Errorf("argv = %q, want %q", e.argv, tt.want)
			}
		})
	}
}

func stage(t *testing.T) Request {
	t.Helper()
	dir := t.TempDir()
	req := Request{
		JobID:     "job-1",
		InputDir:  filepath.Join(dir, "windows"),
		OutputDir: filepath.Join(dir, "output"),
		WorkDir:   dir,
		Epochs:    3,
		Samples:   10,
	}
	for _, d := range []string{req.InputDir, req.OutputDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
	}
	return req
}

func TestExec_Train(t *testing.T) {
	t.Parallel()

	req := stage(t)
	e, err := NewExec(`/bin/sh -c 'echo "$NR_EPOCHS $NUM_SAMPLES" > "$OUTPUT_DIR/params"; echo training'`, 0)
	if err != nil {
		t.Fatalf("NewExec() error = %v", err)
	}

	if err := e.Train(context.Background(), req); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(req.OutputDir, "params"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if strings.TrimSpace(string(got)) != "3 10" {
		t.Errorf("Expected '3 10', got %q", got)
	}
}

func TestExec_NonZeroExit(t *testing.T) {
	t.Parallel()

	e, err := NewExec(`/bin/sh -c 'echo boom >&2; exit 3'`, 0)
	if err != nil {
		t.Fatalf("NewExec() error = %v", err)
	}

	if err := e.Train(context.Background(), stage(t)); err == nil {
		t.Error("Expected error for non-zero exit")
	}
}

func TestExec_Timeout(t *testing.T) {
	t.Parallel()

	e, err := NewExec("sleep 30", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewExec() error = %v", err)
	}

	start := time.Now()
	err = e.Train(context.Background(), stage(t))
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if !strings.Contains(err.Error(), "stopped") {
		t.Errorf("Expected stopped error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("Trainer was not stopped promptly")
	}
}

func TestExec_Ready(t *testing.T) {
	t.Parallel()

	e, _ := NewExec("sh -c true", 0)
	if err := e.Ready(context.Background()); err != nil {
		t.Errorf("Expected sh to be found, got %v", err)
	}

	missing, _ := NewExec("definitely-not-a-trainer-binary", 0)
	if err := missing.Ready(context.Background()); err == nil {
		t.Error("Expected error for missing executable")
	}
}
