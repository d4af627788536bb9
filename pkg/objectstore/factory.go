package objectstore

import (
	"context"
	"fmt"
)

// FactoryConfig selects and configures a Store backend.
type FactoryConfig struct {
	Backend  string // "s3", "gcs", or "memory"
	S3       S3StoreConfig
	GCSBucket string
}

// NewStore constructs the configured backend. The GCS backend is only
// available when built with the gcp tag.
func NewStore(ctx context.Context, cfg FactoryConfig) (Store, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	case "gcs":
		return newGCSFromFactory(ctx, cfg)
	case "memory", "":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown object store backend: %s", cfg.Backend)
	}
}
