// Package app wires configuration into a running engine. Both the daemon
// and the CLI build their components here.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorstored/internal/chunking"
	"github.com/fyrsmithlabs/vectorstored/internal/chunkstore"
	"github.com/fyrsmithlabs/vectorstored/internal/config"
	"github.com/fyrsmithlabs/vectorstored/internal/embeddings"
	"github.com/fyrsmithlabs/vectorstored/internal/ingest"
	"github.com/fyrsmithlabs/vectorstored/internal/logging"
	"github.com/fyrsmithlabs/vectorstored/internal/metadata"
	"github.com/fyrsmithlabs/vectorstored/internal/search"
	"github.com/fyrsmithlabs/vectorstored/internal/service"
	"github.com/fyrsmithlabs/vectorstored/internal/storage"
	"github.com/fyrsmithlabs/vectorstored/internal/telemetry"
)

// App holds the composed engine.
type App struct {
	Config    *config.Config
	Logger    *logging.Logger
	Telemetry *telemetry.Telemetry
	Provider  *embeddings.Provider
	Service   *service.Service

	closers []func(context.Context) error
}

type options struct {
	model  embeddings.Model
	logger *logging.Logger
}

// Option customises New.
type Option func(*options)

// WithModel replaces the configured embedding model.
func WithModel(m embeddings.Model) Option {
	return func(o *options) { o.model = m }
}

// WithLogger replaces the logger built from configuration.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds every component from cfg. On error, components already
// built are closed.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.Telemetry, err = telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Telemetry.Shutdown)

	a.Logger = o.logger
	if a.Logger == nil {
		logCfg, err := logging.FromAppConfig(cfg.Logging)
		if err != nil {
			return nil, err
		}
		a.Logger, err = logging.NewLogger(logCfg, a.Telemetry.LoggerProvider())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error {
			_ = a.Logger.Sync()
			return nil
		})
	}
	if degraded, reasons := a.Telemetry.Degraded(); degraded {
		a.Logger.Warn(ctx, "telemetry degraded", zap.Strings("reasons", reasons))
	}

	model := o.model
	if model == nil {
		model, err = embeddings.NewModel(cfg.Embeddings, embeddings.NewMetrics(a.Logger.Underlying()))
		if err != nil {
			return nil, err
		}
	}
	a.Provider = embeddings.NewProvider(model,
		embeddings.WithLogger(a.Logger.Named("embeddings")),
		embeddings.WithBatchSize(cfg.Embeddings.BatchSize))
	a.closers = append(a.closers, func(context.Context) error { return a.Provider.Close() })

	chunks, err := chunkstore.New(ctx, cfg.ChunkStore, model.Dimension(), a.Logger.Named("chunkstore").Underlying())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return chunks.Close() })

	meta, err := metadata.New(ctx, cfg.Metadata)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return meta.Close() })

	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	orch := ingest.New(a.Provider, chunking.New(), chunks, meta, ingest.Options{
		PersistWorkers:    cfg.Ingest.PersistWorkers,
		KeepPartialChunks: cfg.Ingest.KeepPartialChunks,
		DeleteRetries:     uint(cfg.ChunkStore.DeleteRetries),
		DefaultStrategy:   cfg.Ingest.DefaultStrategy,
	}, a.Logger)
	progressLog := a.Logger.Named("ingest")
	orch.OnProgress(func(p ingest.Progress) {
		progressLog.Trace(context.Background(), "ingestion progress",
			zap.String("vector_store_id", p.VectorStoreID),
			zap.String("file_id", p.FileID),
			zap.Int("embedded", p.Embedded),
			zap.Int("total", p.Total))
	})

	a.Service = service.New(service.Deps{
		Metadata:   meta,
		Chunks:     chunks,
		Blobs:      blobs,
		Embeddings: a.Provider,
		Search: search.NewEngine(a.Provider, chunks, search.Options{
			DefaultTopK: cfg.Search.DefaultTopK,
			MaxTopK:     cfg.Search.MaxTopK,
		}, a.Logger.Named("search")),
		Orchestrator: orch,
		Logger:       a.Logger,
	}, service.Options{
		AsyncIngest:   !cfg.Ingest.Synchronous,
		DeleteRetries: uint(cfg.ChunkStore.DeleteRetries),
	})
	// Background ingestions finish recording before stores close.
	a.closers = append(a.closers, func(context.Context) error {
		a.Service.Close()
		return nil
	})
	return a, nil
}

// Close releases components in reverse order of construction.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
