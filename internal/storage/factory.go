package storage

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/vectorstored/internal/config"
)

// New opens the object storage backend named by cfg.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg.Root)
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
