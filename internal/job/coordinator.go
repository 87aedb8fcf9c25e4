package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"modeltrain/internal/apperrors"
	"modeltrain/internal/config"
	"modeltrain/internal/objectstore"
	"modeltrain/internal/observability"
	"modeltrain/internal/queue"
	"modeltrain/internal/trainer"
)

// Stager moves data between the object store and the local filesystem.
type Stager interface {
	EnsureBucket(ctx context.Context, bucket string) error
	DownloadAndUnpack(ctx context.Context, src objectstore.Location, archivePath, destDir string) error
	UploadArtifact(ctx context.Context, localPath string, dst objectstore.Location) error
}

// Publisher sends the completion event.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// Source yields triggers in arrival order.
type Source interface {
	Dequeue(ctx context.Context) (queue.Trigger, error)
	Len() int
}

// Notifier is told about every terminal result.
type Notifier interface {
	Notify(ctx context.Context, res Result) error
}

// Config holds the per-job parameters.
type Config struct {
	Epochs            int
	Samples           int
	TrainingBucket    string
	ArchiveKey        string
	ModelsBucket      string
	CompletionSubject string
	WorkDir           string
	CleanupOutputs    bool
}

// ConfigFrom extracts the coordinator settings from the process config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Epochs:            cfg.Training.Epochs,
		Samples:           cfg.Training.Samples,
		TrainingBucket:    cfg.Training.TrainingBucket,
		ArchiveKey:        cfg.Training.ArchiveKey,
		ModelsBucket:      cfg.Training.ModelsBucket,
		CompletionSubject: cfg.Bus.CompletionSubject,
		WorkDir:           cfg.Training.WorkDir,
		CleanupOutputs:    cfg.Training.CleanupOutputs,
	}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNotifier sets the outcome notifier.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithTracker sets the state tracker shared with the status endpoint.
func WithTracker(t *Tracker) Option {
	return func(c *Coordinator) { c.tracker = t }
}

// Coordinator runs training jobs one at a time.
type Coordinator struct {
	cfg       Config
	stager    Stager
	trainer   trainer.Trainer
	publisher Publisher
	notifier  Notifier
	metrics   *observability.Metrics
	tracker   *Tracker
	logger    *slog.Logger

	prevStaging string
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg Config, stager Stager, tr trainer.Trainer, publisher Publisher, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		stager:    stager,
		trainer:   tr,
		publisher: publisher,
		logger:    slog.With("component", "coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracker == nil {
		c.tracker = NewTracker()
	}
	return c
}

// Tracker returns the coordinator's state tracker.
func (c *Coordinator) Tracker() *Tracker {
	return c.tracker
}

// Run takes triggers from src until ctx is done. A job that has started runs
// to a terminal state even if ctx is cancelled meanwhile. Job failures never
// end the loop.
func (c *Coordinator) Run(ctx context.Context, src Source) error {
	c.logger.Info("Coordinator started")
	for {
		if ctx.Err() != nil {
			c.logger.Info("Coordinator stopped")
			return nil
		}

		trigger, err := src.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Coordinator stopped")
				return nil
			}
			return fmt.Errorf("dequeue: %w", err)
		}
		if c.metrics != nil {
			c.metrics.RecordQueueDepth(ctx, int64(src.Len()))
		}

		c.Execute(context.WithoutCancel(ctx), trigger)
	}
}

// RunBatch runs a single job from a synthetic trigger and returns its error.
// Like jobs in Run, it is not interrupted by ctx.
func (c *Coordinator) RunBatch(ctx context.Context) error {
	res := c.Execute(context.WithoutCancel(ctx), queue.Trigger{
		Seq:        1,
		ReceivedAt: time.Now(),
		Source:     queue.SourceBatch,
	})
	return res.Err
}

// Execute runs one job through the whole pipeline. It never panics; a panic
// in any stage becomes a failed result.
func (c *Coordinator) Execute(ctx context.Context, trigger queue.Trigger) (res Result) {
	info := Info{
		ID:        uuid.NewString(),
		Seq:       trigger.Seq,
		Source:    trigger.Source,
		StartedAt: time.Now(),
	}
	logger := c.logger.With("jobId", info.ID, "seq", info.Seq)
	res = Result{Info: info}

	c.tracker.Begin(info)
	if c.metrics != nil {
		c.metrics.RecordJobStarted(ctx, info.Source)
	}
	logger.Info("Job started", "source", info.Source, "queuedFor", time.Since(trigger.ReceivedAt).Round(time.Millisecond))

	stage := StateIdle
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "stage", stage, "panic", r)
			res.Err = apperrors.Internal("job "+string(stage), fmt.Errorf("panic: %v", r))
			res.FailedStage = stage
		}
		c.finish(ctx, logger, &res)
	}()

	staging, err := c.prepareStaging(info.ID)
	if err != nil {
		res.Err, res.FailedStage = err, StateDownloading
		return res
	}
	archivePath := filepath.Join(staging, filepath.Base(c.cfg.ArchiveKey))
	inputDir := filepath.Join(staging, datasetDir(c.cfg.ArchiveKey))
	outputDir := filepath.Join(staging, "output")

	var bundle ArtifactBundle
	steps := []struct {
		state State
		run   func() error
	}{
		{StateDownloading, func() error {
			if err := c.stager.EnsureBucket(ctx, c.cfg.ModelsBucket); err != nil {
				return err
			}
			src := objectstore.Location{Bucket: c.cfg.TrainingBucket, Key: c.cfg.ArchiveKey}
			return c.stager.DownloadAndUnpack(ctx, src, archivePath, staging)
		}},
		{StateTraining, func() error {
			err := c.trainer.Train(ctx, trainer.Request{
				JobID:     info.ID,
				InputDir:  inputDir,
				OutputDir: outputDir,
				WorkDir:   staging,
				Epochs:    c.cfg.Epochs,
				Samples:   c.cfg.Samples,
			})
			if err != nil {
				// Validation decides whether the run produced a model.
				logger.Warn("Trainer reported an error", "error", err)
			}
			return nil
		}},
		{StateValidating, func() error {
			var err error
			bundle, err = validateOutputs(outputDir)
			return err
		}},
		{StateUploading, func() error {
			if err := c.uploadBundle(ctx, logger, bundle); err != nil {
				return err
			}
			if c.cfg.CleanupOutputs {
				removeOutputs(logger, bundle)
			}
			return nil
		}},
		{StatePublishing, func() error {
			payload, err := NewCompletionEvent(c.cfg.ModelsBucket).Marshal()
			if err != nil {
				return apperrors.Internal("encode completion event", err)
			}
			return c.publisher.Publish(ctx, c.cfg.CompletionSubject, payload)
		}},
	}

	for _, step := range steps {
		stage = step.state
		c.tracker.Enter(stage)
		logger.Debug("Entering stage", "stage", stage)

		start := time.Now()
		err := step.run()
		if c.metrics != nil {
			c.metrics.RecordStage(ctx, string(stage), time.Since(start).Seconds())
		}
		if err != nil {
			res.Err, res.FailedStage = err, stage
			return res
		}
	}
	return res
}

func (c *Coordinator) finish(ctx context.Context, logger *slog.Logger, res *Result) {
	res.FinishedAt = time.Now()
	if res.Err == nil {
		res.Outcome = OutcomeSucceeded
		logger.Info("Job completed", "bucket", c.cfg.ModelsBucket, "duration", res.Duration().Round(time.Millisecond))
	} else {
		res.Outcome = OutcomeFailed
		res.Error = res.Err.Error()
		logger.Error("Job failed", "stage", res.FailedStage, "error", res.Err, "duration", res.Duration().Round(time.Millisecond))
	}

	c.tracker.Finish(*res)
	if c.metrics != nil {
		c.metrics.RecordJobCompleted(ctx, res.Succeeded(), string(res.FailedStage), res.Duration().Seconds())
	}

	if c.notifier != nil {
		if err := c.notifier.Notify(ctx, *res); err != nil {
			logger.Warn("Outcome notification failed", "error", err)
		}
	}
}

// prepareStaging creates a fresh staging directory for jobID and removes the
// previous job's directory.
func (c *Coordinator) prepareStaging(jobID string) (string, error) {
	if c.prevStaging != "" {
		if err := os.RemoveAll(c.prevStaging); err != nil {
			c.logger.Warn("Failed to remove previous staging directory", "path", c.prevStaging, "error", err)
		}
	}

	staging := filepath.Join(c.cfg.WorkDir, jobID)
	if err := os.MkdirAll(filepath.Join(staging, "output"), 0o755); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	c.prevStaging = staging
	return staging, nil
}

func (c *Coordinator) uploadBundle(ctx context.Context, logger *slog.Logger, bundle ArtifactBundle) error {
	uploads := []struct {
		path string
		key  string
	}{
		{bundle.ModelPath, ModelFile},
		{bundle.VocabPath, VocabFile},
	}
	for _, u := range uploads {
		dst := objectstore.Location{Bucket: c.cfg.ModelsBucket, Key: u.key}
		if err := c.stager.UploadArtifact(ctx, u.path, dst); err != nil {
			return err
		}
		logger.Info("Uploaded artifact", "dst", dst.String())
	}
	return nil
}

// validateOutputs checks that both artifacts exist in dir by exact name.
func validateOutputs(dir string) (ArtifactBundle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return ArtifactBundle{}, fmt.Errorf("list output directory: %w", err)
	}

	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			present[e.Name()] = true
		}
	}

	var missing []string
	for _, name := range []string{ModelFile, VocabFile} {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return ArtifactBundle{}, apperrors.Validation("output", "missing training output: "+strings.Join(missing, ", "))
	}

	return ArtifactBundle{
		ModelPath: filepath.Join(dir, ModelFile),
		VocabPath: filepath.Join(dir, VocabFile),
	}, nil
}

func removeOutputs(logger *slog.Logger, bundle ArtifactBundle) {
	for _, path := range []string{bundle.ModelPath, bundle.VocabPath} {
		if err := os.Remove(path); err != nil {
			logger.Debug("Failed to remove local output", "path", path, "error", err)
		}
	}
}

// datasetDir is the directory an archive unpacks into, e.g. windows.tar.gz
// becomes windows.
func datasetDir(archiveKey string) string {
	name := filepath.Base(archiveKey)
	for _, ext := range []string{".tar.gz", ".tgz"} {
		if trimmed, ok := strings.CutSuffix(name, ext); ok {
			return trimmed
		}
	}
	return name
}
