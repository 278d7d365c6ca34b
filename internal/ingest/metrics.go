package ingest

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorstored/internal/metadata"
)

const instrumentationName = "github.com/fyrsmithlabs/vectorstored/internal/ingest"

type metrics struct {
	files    metric.Int64Counter
	chunks   metric.Int64Counter
	duration metric.Float64Histogram
}

func newMetrics(logger *zap.Logger) *metrics {
	meter := otel.Meter(instrumentationName)
	m := &metrics{}
	var err error

	m.files, err = meter.Int64Counter("vectorstored.ingest.files_total",
		metric.WithDescription("Ingested files by final status"),
		metric.WithUnit("{file}"))
	if err != nil {
		logger.Warn("failed to create files counter", zap.Error(err))
	}
	m.chunks, err = meter.Int64Counter("vectorstored.ingest.chunks_total",
		metric.WithDescription("Chunks embedded and persisted by kind"),
		metric.WithUnit("{chunk}"))
	if err != nil {
		logger.Warn("failed to create chunks counter", zap.Error(err))
	}
	m.duration, err = meter.Float64Histogram("vectorstored.ingest.duration_seconds",
		metric.WithDescription("Wall time of file ingestion by final status"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600))
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}
	return m
}

func (m *metrics) recordFile(ctx context.Context, status metadata.FileStatus, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	if m.files != nil {
		m.files.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
}

func (m *metrics) recordChunk(ctx context.Context, kind string) {
	if m.chunks != nil {
		m.chunks.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}
