package chunkstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationDuration tracks chunk store latency.
	// Labels: backend, operation
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vectorstored",
			Subsystem: "chunkstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of chunk store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// OperationErrors counts failed chunk store operations.
	// Labels: backend, operation
	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vectorstored",
			Subsystem: "chunkstore",
			Name:      "operation_errors_total",
			Help:      "Total number of failed chunk store operations",
		},
		[]string{"backend", "operation"},
	)

	// ChunksWritten counts chunks persisted.
	ChunksWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vectorstored",
			Subsystem: "chunkstore",
			Name:      "chunks_written_total",
			Help:      "Total number of chunks persisted",
		},
		[]string{"backend"},
	)

	// DeleteRetriesExhausted counts file deletions that never converged.
	DeleteRetriesExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vectorstored",
			Subsystem: "chunkstore",
			Name:      "delete_retries_exhausted_total",
			Help:      "Total number of file chunk deletions that failed after all retries",
		},
	)
)

// RecordDeleteRetryExhausted records a file deletion that gave up.
func RecordDeleteRetryExhausted() {
	DeleteRetriesExhausted.Inc()
}

// Instrumented wraps a Store with Prometheus metrics.
type Instrumented struct {
	Store
	backend string
}

// Instrument wraps store, labelling its metrics with backend.
func Instrument(store Store, backend string) *Instrumented {
	return &Instrumented{Store: store, backend: backend}
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	OperationDuration.WithLabelValues(i.backend, op).Observe(time.Since(start).Seconds())
	if err != nil {
		OperationErrors.WithLabelValues(i.backend, op).Inc()
	}
}

func (i *Instrumented) Put(ctx context.Context, chunk *Chunk) (id string, err error) {
	defer func(start time.Time) { i.observe("put", start, err) }(time.Now())
	id, err = i.Store.Put(ctx, chunk)
	if err == nil {
		ChunksWritten.WithLabelValues(i.backend).Inc()
	}
	return id, err
}

func (i *Instrumented) Scan(ctx context.Context, vectorStoreID string) (chunks []Chunk, err error) {
	defer func(start time.Time) { i.observe("scan", start, err) }(time.Now())
	return i.Store.Scan(ctx, vectorStoreID)
}

func (i *Instrumented) Find(ctx context.Context, vectorStoreID, fileID string) (chunks []Chunk, err error) {
	defer func(start time.Time) { i.observe("find", start, err) }(time.Now())
	return i.Store.Find(ctx, vectorStoreID, fileID)
}

func (i *Instrumented) Delete(ctx context.Context, vectorStoreID, chunkID string) (err error) {
	defer func(start time.Time) { i.observe("delete", start, err) }(time.Now())
	return i.Store.Delete(ctx, vectorStoreID, chunkID)
}

func (i *Instrumented) DeleteFile(ctx context.Context, vectorStoreID, fileID string) (err error) {
	defer func(start time.Time) { i.observe("delete_file", start, err) }(time.Now())
	return i.Store.DeleteFile(ctx, vectorStoreID, fileID)
}

func (i *Instrumented) DeleteVectorStore(ctx context.Context, vectorStoreID string) (err error) {
	defer func(start time.Time) { i.observe("delete_vector_store", start, err) }(time.Now())
	return i.Store.DeleteVectorStore(ctx, vectorStoreID)
}

var _ Store = (*Instrumented)(nil)
