package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/shlex"
)

// stopGrace is how long a cancelled trainer gets between SIGTERM and kill.
const stopGrace = 10 * time.Second

// Exec runs the trainer as a local child process.
type Exec struct {
	argv    []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewExec parses command with shell quoting rules. timeout of zero means no
// limit.
func NewExec(command string, timeout time.Duration) (*Exec, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid trainer command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("trainer command is empty")
	}
	return &Exec{
		argv:    argv,
		timeout: timeout,
		logger:  slog.With("component", "trainer", "backend", "exec"),
	}, nil
}

// Train runs the command and waits for it to exit.
func (e *Exec) Train(ctx context.Context, req Request) error {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	logger := e.logger.With("jobId", req.JobID)
	stdout := newLogWriter(logger, "stdout")
	stderr := newLogWriter(logger, "stderr")

	cmd := exec.CommandContext(ctx, e.argv[0], e.argv[1:]...)
	cmd.Dir = req.WorkDir
	cmd.Env = append(os.Environ(), req.env(req.InputDir, req.OutputDir)...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = stopGrace

	logger.Info("Starting trainer", "command", e.argv[0], "epochs", req.Epochs, "samples", req.Samples)
	start := time.Now()
	err := cmd.Run()
	stdout.Flush()
	stderr.Flush()

	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("trainer stopped: %w", ctx.Err())
		}
		return fmt.Errorf("trainer failed: %w", err)
	}
	logger.Info("Trainer finished", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// Ready checks that the trainer executable can be found.
func (e *Exec) Ready(context.Context) error {
	_, err := exec.LookPath(e.argv[0])
	return err
}

// Close is a no-op.
func (e *Exec) Close() error {
	return nil
}
