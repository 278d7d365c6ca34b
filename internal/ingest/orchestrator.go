// Package ingest turns an uploaded document into embedded chunks.
//
// An ingestion walks the file through in_progress to exactly one of
// completed, failed or cancelled. Embedding calls are issued one batch at
// a time; chunk persistence fans out to a bounded worker pool behind them.
package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/vectorstored/internal/chunking"
	"github.com/fyrsmithlabs/vectorstored/internal/chunkstore"
	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
	"github.com/fyrsmithlabs/vectorstored/internal/loader"
	"github.com/fyrsmithlabs/vectorstored/internal/logging"
	"github.com/fyrsmithlabs/vectorstored/internal/metadata"
)

var errCancelRequested = errdefs.Wrap(errdefs.CodeCancelled, errdefs.ErrCancelled, "ingestion cancelled")

// Embedder produces unit vectors for chunk content.
type Embedder interface {
	EmbedText(ctx context.Context, texts []string) ([][]float32, int, error)
	EmbedImage(ctx context.Context, images [][]byte) ([][]float32, int, error)
	SupportsImages() bool
}

// FileRecorder persists vector store file records.
type FileRecorder interface {
	PutFile(ctx context.Context, f *metadata.VectorStoreFile) error
}

// Options tunes an Orchestrator.
type Options struct {
	// PersistWorkers bounds concurrent chunk writes.
	PersistWorkers int
	// KeepPartialChunks skips the compensating delete after a failed or
	// cancelled ingestion.
	KeepPartialChunks bool
	// DeleteRetries bounds attempts of every file-level chunk delete.
	DeleteRetries uint
	// EmbedBatchSize is the number of chunks per embedding call.
	// Cancellation is observed between calls.
	EmbedBatchSize  int
	DefaultStrategy chunking.Strategy
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PersistWorkers <= 0 {
		o.PersistWorkers = 4
	}
	if o.DeleteRetries == 0 {
		o.DeleteRetries = 3
	}
	if o.EmbedBatchSize <= 0 {
		o.EmbedBatchSize = 8
	}
	if o.DefaultStrategy.Type == "" {
		o.DefaultStrategy = chunking.DefaultStrategy()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Progress reports how many chunks of a file have been embedded.
type Progress struct {
	VectorStoreID string
	FileID        string
	Embedded      int
	Total         int
}

// ProgressCallback receives progress updates during ingestion.
type ProgressCallback func(Progress)

// Orchestrator runs ingestions. It is safe for concurrent use across
// files.
type Orchestrator struct {
	embedder Embedder
	chunker  *chunking.Chunker
	chunks   chunkstore.Store
	files    FileRecorder
	opts     Options
	logger   *logging.Logger
	metrics  *metrics
	jobs     *registry
	progress ProgressCallback
}

// New builds an Orchestrator.
func New(embedder Embedder, chunker *chunking.Chunker, chunks chunkstore.Store, files FileRecorder, opts Options, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Nop()
	}
	if chunker == nil {
		chunker = chunking.New()
	}
	return &Orchestrator{
		embedder: embedder,
		chunker:  chunker,
		chunks:   chunks,
		files:    files,
		opts:     opts.withDefaults(),
		logger:   logger.Named("ingest"),
		metrics:  newMetrics(logger.Underlying()),
		jobs:     newRegistry(),
	}
}

// OnProgress sets the progress callback. Call it before any ingestion.
func (o *Orchestrator) OnProgress(cb ProgressCallback) {
	o.progress = cb
}

// Begin validates the strategy and records the file as in_progress. A nil
// strategy selects the configured default. Nothing is written when the
// strategy is invalid or when an ingestion of the same file is still
// running; the latter is a conflict error.
func (o *Orchestrator) Begin(ctx context.Context, vectorStoreID, fileID string, strategy *chunking.Strategy) (*metadata.VectorStoreFile, error) {
	s := o.opts.DefaultStrategy
	if strategy != nil {
		s = *strategy
	}
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}

	f := &metadata.VectorStoreFile{
		ID:               fileID,
		Object:           metadata.ObjectVectorStoreFile,
		VectorStoreID:    vectorStoreID,
		Status:           metadata.FileInProgress,
		ChunkingStrategy: s,
		CreatedAt:        o.opts.Now().UTC(),
	}
	key := jobKey{vectorStoreID, fileID}
	if !o.jobs.add(key) {
		return nil, errdefs.Conflict("file %s is already being ingested into vector store %s", fileID, vectorStoreID)
	}
	if err := o.files.PutFile(ctx, f); err != nil {
		o.jobs.remove(key)
		return nil, err
	}
	return f, nil
}

// Ingest is Begin followed by Run.
func (o *Orchestrator) Ingest(ctx context.Context, vectorStoreID, fileID string, doc loader.Document, strategy *chunking.Strategy) (*metadata.VectorStoreFile, error) {
	f, err := o.Begin(ctx, vectorStoreID, fileID, strategy)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, f, doc)
}

// Cancel requests cancellation of an ingestion that has begun and not
// finished. It reports whether such an ingestion exists.
func (o *Orchestrator) Cancel(vectorStoreID, fileID string) bool {
	_, ok := o.jobs.cancel(jobKey{vectorStoreID, fileID})
	return ok
}

// Stop cancels the ingestion like Cancel and waits until its outcome is
// recorded or ctx ends.
func (o *Orchestrator) Stop(ctx context.Context, vectorStoreID, fileID string) (bool, error) {
	done, ok := o.jobs.cancel(jobKey{vectorStoreID, fileID})
	if !ok {
		return false, nil
	}
	select {
	case <-done:
		return true, nil
	case <-ctx.Done():
		return true, errdefs.Wrap(errdefs.CodeCancelled, ctx.Err(), "waiting for ingestion %s to stop", fileID)
	}
}

// Running is the number of ingestions begun and not yet finished.
func (o *Orchestrator) Running() int {
	return o.jobs.running()
}

// Run ingests doc into the file begun with Begin and records the final
// state. It returns the final record together with the failure or
// cancellation error; the error is nil only when the file completed.
func (o *Orchestrator) Run(ctx context.Context, file *metadata.VectorStoreFile, doc loader.Document) (*metadata.VectorStoreFile, error) {
	key := jobKey{file.VectorStoreID, file.ID}
	defer o.jobs.remove(key)

	ctx = logging.WithVectorStoreID(ctx, file.VectorStoreID)
	ctx = logging.WithFileID(ctx, file.ID)
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "ingest.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("vector_store.id", file.VectorStoreID),
		attribute.String("file.id", file.ID),
		attribute.String("chunking.type", string(file.ChunkingStrategy.Type)),
	)

	start := time.Now()
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	o.jobs.attach(key, cancel)

	stats, err := o.process(runCtx, file, doc)

	out := *file
	out.UsageBytes = stats.usage
	out.LastError = nil
	switch {
	case err == nil:
		out.Status = metadata.FileCompleted
	case isCancellation(runCtx, err):
		out.Status = metadata.FileCancelled
		err = errCancelRequested
	default:
		out.Status = metadata.FileFailed
		out.LastError = metadata.NewLastError(err)
	}

	// The outcome is recorded even when the caller's context is gone.
	finalCtx := context.WithoutCancel(ctx)
	if out.Status != metadata.FileCompleted {
		o.compensate(finalCtx, &out)
	}
	if perr := o.files.PutFile(finalCtx, &out); perr != nil {
		o.logger.Error(ctx, "recording ingestion outcome failed",
			zap.String("status", string(out.Status)), zap.Error(perr))
		if err == nil {
			err = perr
		}
	}

	o.metrics.recordFile(ctx, out.Status, time.Since(start))
	span.SetAttributes(
		attribute.String("ingest.status", string(out.Status)),
		attribute.Int("ingest.chunks", stats.persisted),
		attribute.Int64("ingest.usage_bytes", out.UsageBytes),
	)
	fields := []zap.Field{
		zap.String("status", string(out.Status)),
		zap.Int("chunks", stats.persisted),
		zap.Int64("usage_bytes", out.UsageBytes),
		zap.Duration("duration", time.Since(start)),
	}
	switch out.Status {
	case metadata.FileFailed:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn(ctx, "ingestion failed", append(fields, zap.Error(err))...)
	case metadata.FileCancelled:
		o.logger.Info(ctx, "ingestion cancelled", fields...)
	default:
		o.logger.Info(ctx, "ingestion completed", fields...)
	}
	return &out, err
}

// Fail records a begun file as failed without running it, for documents
// that could not be opened.
func (o *Orchestrator) Fail(ctx context.Context, file *metadata.VectorStoreFile, cause error) (*metadata.VectorStoreFile, error) {
	defer o.jobs.remove(jobKey{file.VectorStoreID, file.ID})
	out := *file
	out.Status = metadata.FileFailed
	out.UsageBytes = 0
	out.LastError = metadata.NewLastError(cause)
	if err := o.files.PutFile(context.WithoutCancel(ctx), &out); err != nil {
		return &out, err
	}
	o.metrics.recordFile(ctx, out.Status, 0)
	o.logger.Warn(logging.WithFileID(ctx, file.ID), "ingestion failed before start", zap.Error(cause))
	return &out, cause
}

func isCancellation(ctx context.Context, err error) bool {
	if errors.Is(context.Cause(ctx), errCancelRequested) {
		return true
	}
	return errors.Is(err, context.Canceled) || errdefs.CodeOf(err) == errdefs.CodeCancelled
}

// compensate removes the chunks of an unfinished ingestion so that no
// partial file stays searchable.
func (o *Orchestrator) compensate(ctx context.Context, f *metadata.VectorStoreFile) {
	if o.opts.KeepPartialChunks {
		return
	}
	if err := chunkstore.DeleteFileWithRetry(ctx, o.chunks, f.VectorStoreID, f.ID, o.opts.DeleteRetries); err != nil {
		o.logger.Error(ctx, "removing partial chunks failed", zap.Error(err))
		return
	}
	f.UsageBytes = 0
}

type runStats struct {
	persisted int
	usage     int64
}

func (o *Orchestrator) process(ctx context.Context, file *metadata.VectorStoreFile, doc loader.Document) (runStats, error) {
	// Re-ingesting a file replaces its chunks.
	if err := chunkstore.DeleteFileWithRetry(ctx, o.chunks, file.VectorStoreID, file.ID, o.opts.DeleteRetries); err != nil {
		return runStats{}, err
	}

	text, err := extractText(doc)
	if err != nil {
		return runStats{}, err
	}
	pieces, err := o.chunker.Chunk(text, file.ChunkingStrategy)
	if err != nil {
		return runStats{}, err
	}
	images, err := o.extractImages(ctx, doc)
	if err != nil {
		return runStats{}, err
	}

	var (
		persisted atomic.Int64
		usage     atomic.Int64
		total     = len(pieces) + len(images)
		embedded  int
		sequence  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.PersistWorkers)

	persist := func(kind chunkstore.Kind, content string, vector []float32) {
		c := &chunkstore.Chunk{
			VectorStoreID: file.VectorStoreID,
			FileID:        file.ID,
			Content:       content,
			Embedding:     vector,
			Sequence:      sequence,
			Kind:          kind,
			CreatedAt:     o.opts.Now().UTC(),
		}
		sequence++
		g.Go(func() error {
			if _, err := o.chunks.Put(gctx, c); err != nil {
				return err
			}
			persisted.Add(1)
			usage.Add(c.UsageBytes())
			o.metrics.recordChunk(gctx, string(kind))
			return nil
		})
	}

	embedErr := func() error {
		batch := o.opts.EmbedBatchSize
		for lo := 0; lo < len(pieces); lo += batch {
			if gctx.Err() != nil {
				return context.Cause(gctx)
			}
			texts := pieces[lo:min(lo+batch, len(pieces))]
			vectors, _, err := o.embedder.EmbedText(gctx, texts)
			if err != nil {
				return err
			}
			for i, v := range vectors {
				persist(chunkstore.KindText, texts[i], v)
			}
			embedded += len(texts)
			o.report(file, embedded, total)
		}
		for lo := 0; lo < len(images); lo += batch {
			if gctx.Err() != nil {
				return context.Cause(gctx)
			}
			imgs := images[lo:min(lo+batch, len(images))]
			vectors, _, err := o.embedder.EmbedImage(gctx, imgs)
			if err != nil {
				return err
			}
			for i, v := range vectors {
				persist(chunkstore.KindImage, base64.StdEncoding.EncodeToString(imgs[i]), v)
			}
			embedded += len(imgs)
			o.report(file, embedded, total)
		}
		return nil
	}()

	// In-flight writes finish before the outcome is decided.
	persistErr := g.Wait()
	stats := runStats{persisted: int(persisted.Load()), usage: usage.Load()}
	if persistErr != nil {
		return stats, persistErr
	}
	return stats, embedErr
}

func (o *Orchestrator) report(file *metadata.VectorStoreFile, embedded, total int) {
	if o.progress != nil {
		o.progress(Progress{VectorStoreID: file.VectorStoreID, FileID: file.ID, Embedded: embedded, Total: total})
	}
}

// extractText joins the document's sections with blank lines, which the
// sentence detector treats as boundaries.
func extractText(doc loader.Document) (string, error) {
	var sections []string
	for s, err := range doc.ExtractText() {
		if err != nil {
			return "", err
		}
		sections = append(sections, s)
	}
	return strings.Join(sections, "\n\n"), nil
}

// extractImages collects the document's images. Images embedded in other
// documents are skipped when the model cannot embed them; an image upload
// is rejected instead.
func (o *Orchestrator) extractImages(ctx context.Context, doc loader.Document) ([][]byte, error) {
	var images [][]byte
	for img, err := range doc.ExtractImages() {
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	if len(images) == 0 || o.embedder.SupportsImages() {
		return images, nil
	}
	if doc.Kind() == loader.KindImage {
		return nil, errdefs.Unsupported("the embedding model does not support images")
	}
	o.logger.Debug(ctx, "skipping embedded images", zap.Int("images", len(images)))
	return nil, nil
}
