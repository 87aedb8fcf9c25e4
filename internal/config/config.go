// Package config provides configuration loading from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"modeltrain/internal/apperrors"
)

// Run modes.
const (
	ModeService = "service"
	ModeBatch   = "batch"
)

// Default epoch counts for the two run modes.
const (
	DefaultBatchEpochs   = 2
	DefaultServiceEpochs = 3
)

// DefaultTrainerCommand is the exec backend command when none is configured.
// The trainer runs inside the per-job staging directory, so script paths
// must be absolute.
const DefaultTrainerCommand = "python3 /opt/nulog/train.py"

// Config is the full process configuration, read once at startup.
type Config struct {
	Mode     string
	LogLevel slog.Level

	Training TrainingConfig
	Store    StoreConfig
	Bus      BusConfig
	Trainer  TrainerConfig
	Callback CallbackConfig
	Server   ServerConfig

	QueueCapacity int
}

// TrainingConfig holds the per-job parameters of the coordinator.
type TrainingConfig struct {
	Epochs         int
	Samples        int
	TrainingBucket string
	ArchiveKey     string
	ModelsBucket   string
	WorkDir        string
	CleanupOutputs bool
}

// StoreConfig selects and configures the object store backend.
type StoreConfig struct {
	Backend   string // s3, gcs, local
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string

	GCSProjectID       string
	GCSCredentialsFile string

	LocalRoot string
}

// BusConfig configures the NATS connection and subjects.
type BusConfig struct {
	URL               string
	Name              string
	Username          string
	Password          string
	NKeySeedFile      string
	ConnectAttempts   int
	PublishTimeout    time.Duration
	PendingLimit      int // messages held client-side; 0 means unbounded
	TriggerSubject    string
	CompletionSubject string
}

// TrainerConfig selects how the external trainer is run.
type TrainerConfig struct {
	Backend string // exec, docker
	Command string
	Image   string
	Timeout time.Duration
}

// CallbackConfig configures the optional outcome webhook.
type CallbackConfig struct {
	URL     string
	Key     string
	Timeout time.Duration
}

// ServerConfig holds the service-mode HTTP settings.
type ServerConfig struct {
	Port            string
	MetricsPort     string
	APIKey          string
	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment. modeOverride, when not
// empty, takes precedence over MODE and the training profile.
func Load(modeOverride string) (*Config, error) {
	profile, err := LoadProfile(GetEnv("TRAINING_PROFILE_FILE", ""))
	if err != nil {
		return nil, err
	}

	mode := ModeService
	if profile.Mode != "" {
		mode = profile.Mode
	}
	mode = strings.ToLower(GetEnv("MODE", mode))
	if modeOverride != "" {
		mode = strings.ToLower(modeOverride)
	}

	epochs := DefaultServiceEpochs
	if mode == ModeBatch {
		epochs = DefaultBatchEpochs
	}
	if profile.Epochs > 0 {
		epochs = profile.Epochs
	}
	samples := 0
	if profile.Samples != nil {
		samples = *profile.Samples
	}

	cfg := &Config{
		Mode:     mode,
		LogLevel: parseLevel(GetEnv("LOG_LEVEL", "info")),
		Training: TrainingConfig{
			Epochs:         GetIntEnv("TRAINING_EPOCHS", epochs),
			Samples:        GetIntEnv("TRAINING_SAMPLES", samples),
			TrainingBucket: GetEnv("TRAINING_BUCKET", orDefault(profile.Buckets.Training, "training-logs")),
			ArchiveKey:     GetEnv("TRAINING_ARCHIVE_KEY", orDefault(profile.ArchiveKey, "windows.tar.gz")),
			ModelsBucket:   GetEnv("MODELS_BUCKET", orDefault(profile.Buckets.Models, "nulog-models")),
			WorkDir:        GetEnv("WORK_DIR", "/tmp/modeltrain"),
			CleanupOutputs: GetBoolEnv("CLEANUP_OUTPUTS", true),
		},
		Store: StoreConfig{
			Backend:            strings.ToLower(GetEnv("STORE_BACKEND", "s3")),
			Endpoint:           GetFirstEnv("", "S3_ENDPOINT", "MINIO_SERVER_URL", "GCS_ENDPOINT"),
			AccessKey:          GetFirstEnv("", "S3_ACCESS_KEY", "MINIO_ACCESS_KEY"),
			SecretKey:          GetFirstEnv("", "S3_SECRET_KEY", "MINIO_SECRET_KEY"),
			Region:             GetEnv("S3_REGION", "us-east-1"),
			GCSProjectID:       GetEnv("GCS_PROJECT_ID", ""),
			GCSCredentialsFile: GetEnv("GCS_CREDENTIALS_FILE", ""),
			LocalRoot:          GetEnv("LOCAL_STORE_ROOT", "/var/lib/modeltrain/store"),
		},
		Bus: BusConfig{
			URL:               GetEnv("NATS_SERVER_URL", "nats://localhost:4222"),
			Name:              GetEnv("NATS_CLIENT_NAME", "modeltrain"),
			Username:          GetEnv("NATS_USERNAME", ""),
			Password:          GetSecret("NATS_PASSWORD"),
			NKeySeedFile:      GetEnv("NKEY_SEED_FILE", ""),
			ConnectAttempts:   GetIntEnv("NATS_CONNECT_ATTEMPTS", 5),
			PublishTimeout:    GetDurationEnv("NATS_PUBLISH_TIMEOUT", 5*time.Second),
			PendingLimit:      GetIntEnv("NATS_PENDING_LIMIT", 0),
			TriggerSubject:    GetEnv("TRIGGER_SUBJECT", "train"),
			CompletionSubject: GetEnv("COMPLETION_SUBJECT", "model_ready"),
		},
		Trainer: TrainerConfig{
			Backend: strings.ToLower(GetEnv("TRAINER_BACKEND", "exec")),
			Command: GetEnv("TRAINER_COMMAND", DefaultTrainerCommand),
			Image:   GetEnv("TRAINER_IMAGE", ""),
			Timeout: GetDurationEnv("TRAINER_TIMEOUT", 0),
		},
		Callback: CallbackConfig{
			URL:     GetEnv("CALLBACK_URL", ""),
			Key:     GetSecretFile(GetEnv("CALLBACK_KEY_FILE", "")),
			Timeout: GetDurationEnv("CALLBACK_TIMEOUT", 10*time.Second),
		},
		Server: ServerConfig{
			Port:            GetEnv("PORT", "8080"),
			MetricsPort:     GetEnv("METRICS_PORT", "9090"),
			APIKey:          GetSecretFile(GetEnv("API_KEY_FILE", "")),
			ShutdownTimeout: GetDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		QueueCapacity: GetIntEnv("QUEUE_CAPACITY", 16),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the process cannot run with.
func (c *Config) Validate() error {
	if c.Mode != ModeService && c.Mode != ModeBatch {
		return apperrors.Validation("mode", fmt.Sprintf("mode must be %q or %q, got %q", ModeService, ModeBatch, c.Mode))
	}
	if c.Training.Epochs <= 0 {
		return apperrors.Validation("epochs", "epoch count must be positive")
	}
	if c.Training.Samples < 0 {
		return apperrors.Validation("samples", "sample count cannot be negative")
	}
	if c.Training.TrainingBucket == "" || c.Training.ModelsBucket == "" {
		return apperrors.Validation("buckets", "training and models bucket names are required")
	}
	if c.Training.ArchiveKey == "" {
		return apperrors.Validation("archiveKey", "training archive key is required")
	}
	if c.Training.WorkDir == "" {
		return apperrors.Validation("workDir", "work directory is required")
	}

	switch c.Store.Backend {
	case "s3":
		if c.Store.Endpoint == "" {
			return apperrors.Validation("store.endpoint", "S3_ENDPOINT or MINIO_SERVER_URL is required for the s3 backend")
		}
	case "gcs":
		if c.Store.GCSProjectID == "" {
			return apperrors.Validation("store.project", "GCS_PROJECT_ID is required for the gcs backend")
		}
	case "local":
		if c.Store.LocalRoot == "" {
			return apperrors.Validation("store.root", "LOCAL_STORE_ROOT is required for the local backend")
		}
	default:
		return apperrors.Validation("store.backend", fmt.Sprintf("unknown store backend %q", c.Store.Backend))
	}

	switch c.Trainer.Backend {
	case "exec":
		if strings.TrimSpace(c.Trainer.Command) == "" {
			return apperrors.Validation("trainer.command", "TRAINER_COMMAND is required for the exec backend")
		}
	case "docker":
		if c.Trainer.Image == "" {
			return apperrors.Validation("trainer.image", "TRAINER_IMAGE is required for the docker backend")
		}
	default:
		return apperrors.Validation("trainer.backend", fmt.Sprintf("unknown trainer backend %q", c.Trainer.Backend))
	}

	if c.Bus.TriggerSubject == "" || c.Bus.CompletionSubject == "" {
		return apperrors.Validation("bus.subjects", "trigger and completion subjects are required")
	}
	if c.QueueCapacity <= 0 {
		return apperrors.Validation("queueCapacity", "queue capacity must be positive")
	}
	return nil
}

func orDefault(value, def string) string {
	if value != "" {
		return value
	}
	return def
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
