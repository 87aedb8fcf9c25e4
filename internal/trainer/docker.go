package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/google/shlex"
)

// Paths of the staged directories inside the trainer container.
const (
	containerInputDir  = "/data/input"
	containerOutputDir = "/data/output"
)

// DockerConfig configures the container backend.
type DockerConfig struct {
	Image   string
	Command string // optional override of the image command
	Timeout time.Duration
}

// Docker runs the trainer as a container on the host Docker daemon, with the
// job's input and output directories bind-mounted.
type Docker struct {
	client  *client.Client
	image   string
	cmd     []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewDocker creates a Docker trainer using the daemon configured by the
// environment.
func NewDocker(ctx context.Context, cfg DockerConfig) (*Docker, error) {
	if cfg.Image == "" {
		return nil, errors.New("trainer image is required")
	}

	var cmd []string
	if cfg.Command != "" {
		var err error
		if cmd, err = shlex.Split(cfg.Command); err != nil {
			return nil, fmt.Errorf("invalid trainer command: %w", err)
		}
	}

	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Docker{
		client:  dockerClient,
		image:   cfg.Image,
		cmd:     cmd,
		timeout: cfg.Timeout,
		logger:  slog.With("component", "trainer", "backend", "docker", "image", cfg.Image),
	}, nil
}

// Train runs one container to completion and removes it. A non-zero exit
// code is returned as an error.
func (d *Docker) Train(ctx context.Context, req Request) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	logger := d.logger.With("jobId", req.JobID)

	if err := d.pullImageIfNeeded(ctx); err != nil {
		return fmt.Errorf("pull %s: %w", d.image, err)
	}

	containerID, err := d.createContainer(ctx, req)
	if err != nil {
		return fmt.Errorf("create trainer container: %w", err)
	}
	defer d.removeContainer(context.WithoutCancel(ctx), containerID)

	if err := d.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start trainer container: %w", err)
	}
	logger.Info("Started trainer container", "containerId", shortID(containerID), "epochs", req.Epochs)

	logsDone := make(chan struct{})
	go func() {
		defer close(logsDone)
		d.streamLogs(ctx, logger, containerID)
	}()

	start := time.Now()
	exitCode, err := d.waitForExit(ctx, containerID)
	<-logsDone

	if err != nil {
		return fmt.Errorf("wait for trainer container: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("trainer container exited with code %d", exitCode)
	}
	logger.Info("Trainer finished", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func (d *Docker) createContainer(ctx context.Context, req Request) (string, error) {
	containerConfig := &container.Config{
		Image:      d.image,
		Cmd:        d.cmd,
		Env:        req.env(containerInputDir, containerOutputDir),
		WorkingDir: "/data",
		Labels: map[string]string{
			"job.id":     req.JobID,
			"job.type":   "trainer",
			"managed-by": "modeltrain",
		},
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:     mount.TypeBind,
				Source:   req.InputDir,
				Target:   containerInputDir,
				ReadOnly: true,
			},
			{
				Type:   mount.TypeBind,
				Source: req.OutputDir,
				Target: containerOutputDir,
			},
		},
	}

	containerName := fmt.Sprintf("trainer-%s", req.JobID)
	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (d *Docker) streamLogs(ctx context.Context, logger *slog.Logger, containerID string) {
	logs, err := d.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		logger.Error("Failed to get container logs", "error", err)
		return
	}
	defer logs.Close()

	stdout := newLogWriter(logger, "stdout")
	stderr := newLogWriter(logger, "stderr")
	if err := demuxLogs(logs, stdout, stderr); err != nil && ctx.Err() == nil {
		logger.Debug("Log stream ended", "error", err)
	}
	stdout.Flush()
	stderr.Flush()
}

// demuxLogs splits Docker's multiplexed log stream: each frame has an 8-byte
// header holding the stream id and a big-endian payload size.
func demuxLogs(r io.Reader, stdout, stderr io.Writer) error {
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		size := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
		if size == 0 {
			continue
		}

		dst := stdout
		if header[0] == 2 {
			dst = stderr
		}
		if _, err := io.CopyN(dst, r, int64(size)); err != nil {
			return err
		}
	}
}

func (d *Docker) waitForExit(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := d.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("%s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	}
}

func (d *Docker) pullImageIfNeeded(ctx context.Context) error {
	_, err := d.client.ImageInspect(ctx, d.image)
	if err == nil {
		return nil
	}

	d.logger.Info("Pulling trainer image")
	reader, err := d.client.ImagePull(ctx, d.image, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func (d *Docker) removeContainer(ctx context.Context, containerID string) {
	stopTimeout := int(stopGrace / time.Second)
	_ = d.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &stopTimeout})
	if err := d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		d.logger.Warn("Failed to remove trainer container", "containerId", shortID(containerID), "error", err)
	}
}

// Ready checks if the Docker daemon is reachable and responsive.
func (d *Docker) Ready(ctx context.Context) error {
	_, err := d.client.Ping(ctx)
	return err
}

// Close releases the Docker client.
func (d *Docker) Close() error {
	return d.client.Close()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
