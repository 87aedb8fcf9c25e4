// Package trainer runs the external model-training routine, either as a
// local process or as a Docker container.
package trainer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"modeltrain/internal/config"
)

// Environment variables passed to the training routine.
const (
	EnvEpochs    = "NR_EPOCHS"
	EnvSamples   = "NUM_SAMPLES"
	EnvInputDir  = "INPUT_DIR"
	EnvOutputDir = "OUTPUT_DIR"
	EnvJobID     = "TRAINING_JOB_ID"
)

// Request describes one training run. InputDir holds the unpacked dataset;
// the trainer writes its artifacts into OutputDir.
type Request struct {
	JobID     string
	InputDir  string
	OutputDir string
	WorkDir   string
	Epochs    int
	Samples   int
}

// env renders the request as environment variables, with the directories
// as seen by the training process.
func (r Request) env(inputDir, outputDir string) []string {
	return []string{
		EnvEpochs + "=" + strconv.Itoa(r.Epochs),
		EnvSamples + "=" + strconv.Itoa(r.Samples),
		EnvInputDir + "=" + inputDir,
		EnvOutputDir + "=" + outputDir,
		EnvJobID + "=" + r.JobID,
	}
}

// Trainer runs a training routine to completion. The returned error reports
// how the routine ended; whether it produced usable output is decided by the
// caller.
type Trainer interface {
	Train(ctx context.Context, req Request) error
	Ready(ctx context.Context) error
	Close() error
}

// New creates the Trainer selected by cfg.Backend.
func New(ctx context.Context, cfg config.TrainerConfig) (Trainer, error) {
	switch cfg.Backend {
	case "exec":
		return NewExec(cfg.Command, cfg.Timeout)
	case "docker":
		return NewDocker(ctx, DockerConfig{
			Image:   cfg.Image,
			Command: dockerCommand(cfg),
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown trainer backend %q", cfg.Backend)
	}
}

// dockerCommand returns the container command override. The exec default
// is not meaningful inside an arbitrary image, so it is only used when set
// explicitly alongside an image.
func dockerCommand(cfg config.TrainerConfig) string {
	if cfg.Command == config.DefaultTrainerCommand {
		return ""
	}
	return cfg.Command
}

// logWriter turns process output into one log record per line.
type logWriter struct {
	logger *slog.Logger
	stream string
	buf    []byte
}

func newLogWriter(logger *slog.Logger, stream string) *logWriter {
	return &logWriter{logger: logger, stream: stream}
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (w *logWriter) Flush() {
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
}

func (w *logWriter) emit(line string) {
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return
	}
	w.logger.Info(line, "stream", w.stream)
}
