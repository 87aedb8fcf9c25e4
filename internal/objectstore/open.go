package objectstore

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"modeltrain/internal/config"
)

// Open creates the Store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Store(ctx, S3Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
		})
	case "gcs":
		return NewGCSStore(ctx, GCSConfig{
			ProjectID:       cfg.GCSProjectID,
			CredentialsFile: cfg.GCSCredentialsFile,
			Endpoint:        cfg.Endpoint,
		})
	case "local":
		return NewLocalStore(afero.NewOsFs(), cfg.LocalRoot), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
