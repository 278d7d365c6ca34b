// Package service exposes the engine's entry points: vector store and
// file lifecycle, ingestion, search, uploads and embeddings. It owns the
// cascades between chunk, metadata and object storage and keeps vector
// store aggregates in step with their files.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorstored/internal/chunkstore"
	"github.com/fyrsmithlabs/vectorstored/internal/embeddings"
	"github.com/fyrsmithlabs/vectorstored/internal/ingest"
	"github.com/fyrsmithlabs/vectorstored/internal/logging"
	"github.com/fyrsmithlabs/vectorstored/internal/metadata"
	"github.com/fyrsmithlabs/vectorstored/internal/search"
	"github.com/fyrsmithlabs/vectorstored/internal/storage"
)

// Options tunes a Service.
type Options struct {
	// AsyncIngest runs file attachments in the background; the caller
	// gets the in_progress record immediately.
	AsyncIngest bool
	// DeleteRetries bounds attempts of chunk cascades.
	DeleteRetries uint
	Now           func() time.Time
}

// Deps are the components a Service composes.
type Deps struct {
	Metadata     metadata.Store
	Chunks       chunkstore.Store
	Blobs        storage.Store
	Embeddings   *embeddings.Provider
	Search       *search.Engine
	Orchestrator *ingest.Orchestrator
	Logger       *logging.Logger
}

// Service implements the engine's entry points. It is safe for concurrent
// use.
type Service struct {
	meta     metadata.Store
	chunks   chunkstore.Store
	blobs    storage.Store
	provider *embeddings.Provider
	search   *search.Engine
	orch     *ingest.Orchestrator
	logger   *logging.Logger
	opts     Options

	// storeMu serialises read-modify-write cycles on vector store records.
	storeMu sync.Mutex

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// New builds a Service.
func New(deps Deps, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DeleteRetries == 0 {
		opts.DeleteRetries = 3
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		meta:     deps.Metadata,
		chunks:   deps.Chunks,
		blobs:    deps.Blobs,
		provider: deps.Embeddings,
		search:   deps.Search,
		orch:     deps.Orchestrator,
		logger:   logger.Named("service"),
		opts:     opts,
		bgCtx:    ctx,
		bgCancel: cancel,
	}
}

func (s *Service) now() time.Time { return s.opts.Now().UTC() }

func newID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Close cancels background ingestions and waits for them to record their
// outcome.
func (s *Service) Close() {
	s.bgCancel()
	s.bg.Wait()
}

// Wait blocks until background ingestions finish.
func (s *Service) Wait() {
	s.bg.Wait()
}

// Health describes whether the engine can serve requests.
type Health struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Ready  bool   `json:"ready"`
	Error  string `json:"error,omitempty"`
}

// Health reports model readiness. A model that failed to load makes the
// engine unhealthy for the life of the process.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Model: s.provider.ModelName(), Ready: s.provider.Ready()}
	if err := s.provider.LoadError(); err != nil {
		h.Status = "unhealthy"
		h.Error = err.Error()
		s.logger.Debug(ctx, "health check failing", zap.Error(err))
		return h
	}
	if !h.Ready {
		h.Status = "starting"
	}
	return h
}
