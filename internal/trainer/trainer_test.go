package trainer

import (
	"bytes"
	"context"
	"encoding/binary"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"modeltrain/internal/config"
)

func TestRequestEnv(t *testing.T) {
	t.Parallel()

	req := Request{JobID: "j1", Epochs: 2, Samples: 0}
	env := req.env("/in", "/out")

	for _, want := range []string{"NR_EPOCHS=2", "NUM_SAMPLES=0", "INPUT_DIR=/in", "OUTPUT_DIR=/out", "TRAINING_JOB_ID=j1"} {
		if !slices.Contains(env, want) {
			t.Errorf("Expected %q in %v", want, env)
		}
	}
}

func TestLogWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	w := newLogWriter(logger, "stdout")

	_, _ = w.Write([]byte("epoch 1 loss=0.5\nepoch 2"))
	_, _ = w.Write([]byte(" loss=0.3\r\n\npartial"))
	w.Flush()

	out := buf.String()
	for _, want := range []string{`msg="epoch 1 loss=0.5"`, `msg="epoch 2 loss=0.3"`, "msg=partial"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %s in output:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "stream=stdout"); n != 3 {
		t.Errorf("Expected 3 records, got %d:\n%s", n, out)
	}
}

func frame(stream byte, payload string) []byte {
	header := make([]byte, 8)
	header[0] = stream
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))
	return append(header, payload...)
}

func TestDemuxLogs(t *testing.T) {
	t.Parallel()

	var stream bytes.Buffer
	stream.Write(frame(1, "out one\n"))
	stream.Write(frame(2, "err one\n"))
	stream.Write(frame(1, ""))
	stream.Write(frame(1, "out two\n"))

	var stdout, stderr bytes.Buffer
	if err := demuxLogs(&stream, &stdout, &stderr); err != nil {
		t.Fatalf("demuxLogs() error = %v", err)
	}

	if stdout.String() != "out one\nout two\n" {
		t.Errorf("Unexpected stdout %q", stdout.String())
	}
	if stderr.String() != "err one\n" {
		t.Errorf("Unexpected stderr %q", stderr.String())
	}
}

func TestDemuxLogs_Truncated(t *testing.T) {
	t.Parallel()

	data := frame(1, "complete payload")
	var stdout, stderr bytes.Buffer
	if err := demuxLogs(bytes.NewReader(data[:12]), &stdout, &stderr); err == nil {
		t.Error("Expected error for truncated frame")
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	tr, err := New(context.Background(), config.TrainerConfig{Backend: "exec", Command: "python3 train.py"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := tr.(*Exec); !ok {
		t.Errorf("Expected *Exec, got %T", tr)
	}

	if _, err := New(context.Background(), config.TrainerConfig{Backend: "ssh"}); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestDockerCommand(t *testing.T) {
	t.Parallel()

	if got := dockerCommand(config.TrainerConfig{Command: config.DefaultTrainerCommand}); got != "" {
		t.Errorf("Default command should not override the image, got %q", got)
	}
	if got := dockerCommand(config.TrainerConfig{Command: "python -m nulog.train"}); got != "python -m nulog.train" {
		t.Errorf("Unexpected command %q", got)
	}
}
