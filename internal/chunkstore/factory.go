package chunkstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorstored/internal/config"
)

// New builds the configured backend, instrumented with metrics.
func New(ctx context.Context, cfg config.ChunkStoreConfig, dimension int, logger *zap.Logger) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case "memory":
		store = NewMemoryStore()
	case "", "chromem":
		store, err = NewChromemStore(cfg.Chromem.Path, cfg.Chromem.Compress, dimension, logger)
	case "qdrant":
		store, err = NewQdrantStore(ctx, cfg.Qdrant, dimension, logger)
	case "sqlite", "postgres":
		store, err = NewSQLStore(ctx, cfg.Backend, cfg.DSN, dimension)
	default:
		return nil, fmt.Errorf("unknown chunk store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	backend := cfg.Backend
	if backend == "" {
		backend = "chromem"
	}
	return Instrument(store, backend), nil
}
