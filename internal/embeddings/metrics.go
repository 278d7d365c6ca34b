package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/vectorstored/internal/embeddings"

// Metrics holds embedding instruments. Instruments that fail to register
// are left nil and skipped.
type Metrics struct {
	meter     metric.Meter
	logger    *zap.Logger
	duration  metric.Float64Histogram
	batchSize metric.Int64Histogram
	tokens    metric.Int64Counter
	errors    metric.Int64Counter
	cache     metric.Int64Counter
}

// NewMetrics creates instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	m := &Metrics{meter: meter, logger: logger}
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"vectorstored.embedding.duration_seconds",
		metric.WithDescription("Duration of embedding calls by model and operation"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.batchSize, err = m.meter.Int64Histogram(
		"vectorstored.embedding.batch_size",
		metric.WithDescription("Inputs per embedding call"),
		metric.WithUnit("{input}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100, 250),
	)
	if err != nil {
		m.logger.Warn("failed to create batch size histogram", zap.Error(err))
	}

	m.tokens, err = m.meter.Int64Counter(
		"vectorstored.embedding.tokens_total",
		metric.WithDescription("Tokens (or image units) consumed by embedding calls"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		m.logger.Warn("failed to create tokens counter", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"vectorstored.embedding.errors_total",
		metric.WithDescription("Failed embedding calls by model and operation"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}

	m.cache, err = m.meter.Int64Counter(
		"vectorstored.embedding.cache_lookups_total",
		metric.WithDescription("Embedding cache lookups by result (hit, miss)"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		m.logger.Warn("failed to create cache counter", zap.Error(err))
	}
	return m
}

// RecordGeneration records one embedding call.
func (m *Metrics) RecordGeneration(ctx context.Context, model, operation string, d time.Duration, inputs, tokens int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", operation),
	)
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if inputs > 0 && m.batchSize != nil {
		m.batchSize.Record(ctx, int64(inputs), attrs)
	}
	if tokens > 0 && m.tokens != nil {
		m.tokens.Add(ctx, int64(tokens), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// RecordCacheLookups records hits and misses of the embedding cache.
func (m *Metrics) RecordCacheLookups(ctx context.Context, model string, hits, misses int) {
	if m == nil || m.cache == nil {
		return
	}
	if hits > 0 {
		m.cache.Add(ctx, int64(hits), metric.WithAttributes(
			attribute.String("model", model), attribute.String("result", "hit")))
	}
	if misses > 0 {
		m.cache.Add(ctx, int64(misses), metric.WithAttributes(
			attribute.String("model", model), attribute.String("result", "miss")))
	}
}
