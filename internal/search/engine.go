// Package search answers similarity queries against a vector store's
// chunks with an exact, per-query flat index.
package search

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorstored/internal/chunkstore"
	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
	"github.com/fyrsmithlabs/vectorstored/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/vectorstored/internal/search"

// Embedder turns query text into vectors.
type Embedder interface {
	EmbedText(ctx context.Context, texts []string) ([][]float32, int, error)
}

// Result is one ranked hit.
type Result struct {
	ChunkID  string          `json:"id"`
	FileID   string          `json:"file_id"`
	Score    float64         `json:"score"`
	Content  string          `json:"content"`
	Sequence int             `json:"sequence"`
	Kind     chunkstore.Kind `json:"kind"`
}

// Options bounds top_k.
type Options struct {
	DefaultTopK int
	MaxTopK     int
}

// Engine runs similarity searches.
type Engine struct {
	embedder Embedder
	store    chunkstore.Store
	opts     Options
	logger   *logging.Logger
	duration metric.Float64Histogram
}

// NewEngine creates an Engine.
func NewEngine(embedder Embedder, store chunkstore.Store, opts Options, logger *logging.Logger) *Engine {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 10
	}
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = 100
	}
	if logger == nil {
		logger = logging.Nop()
	}
	e := &Engine{embedder: embedder, store: store, opts: opts, logger: logger}

	var err error
	e.duration, err = otel.Meter(instrumentationName).Float64Histogram(
		"vectorstored.search.duration_seconds",
		metric.WithDescription("Duration of similarity searches"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn(context.Background(), "failed to create search histogram", zap.Error(err))
	}
	return e
}

// ResolveTopK applies the default to 0 and rejects out-of-range values.
func (e *Engine) ResolveTopK(topK int) (int, error) {
	switch {
	case topK == 0:
		return e.opts.DefaultTopK, nil
	case topK < 0 || topK > e.opts.MaxTopK:
		return 0, errdefs.Configuration("top_k must be between 1 and %d, got %d", e.opts.MaxTopK, topK)
	default:
		return topK, nil
	}
}

// Search returns at most topK chunks of the vector store nearest to
// query, best first, scored 1/(1+d) where d is the squared Euclidean
// distance. A store without chunks yields no results.
func (e *Engine) Search(ctx context.Context, vectorStoreID, query string, topK int) (results []Result, err error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "search.Search")
	defer span.End()
	span.SetAttributes(attribute.String("vector_store.id", vectorStoreID))

	start := time.Now()
	defer func() {
		if e.duration != nil {
			e.duration.Record(ctx, time.Since(start).Seconds())
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if query == "" {
		return nil, errdefs.Configuration("query must not be empty")
	}
	k, err := e.ResolveTopK(topK)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.top_k", k))

	chunks, err := e.store.Scan(ctx, vectorStoreID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return []Result{}, nil
	}

	vectors, _, err := e.embedder.EmbedText(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	q := vectors[0]

	index := NewFlatIndex(len(q))
	for _, c := range chunks {
		if err := index.Add(c.Embedding); err != nil {
			return nil, errdefs.Wrap(errdefs.CodeInternal, err, "chunk %s", c.ID)
		}
	}
	hits, err := index.Query(q, k)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	results = make([]Result, len(hits))
	for i, h := range hits {
		c := chunks[h.Index]
		results[i] = Result{
			ChunkID:  c.ID,
			FileID:   c.FileID,
			Score:    1 / (1 + float64(h.Distance)),
			Content:  c.Content,
			Sequence: c.Sequence,
			Kind:     c.Kind,
		}
	}

	span.SetAttributes(
		attribute.Int("search.candidates", len(chunks)),
		attribute.Int("search.results", len(results)),
	)
	e.logger.Debug(ctx, "search complete",
		zap.String("vector_store_id", vectorStoreID),
		zap.Int("candidates", len(chunks)),
		zap.Int("results", len(results)))
	return results, nil
}
