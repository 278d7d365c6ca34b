package ingest_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vectorstored/internal/chunking"
	"github.com/fyrsmithlabs/vectorstored/internal/chunkstore"
	"github.com/fyrsmithlabs/vectorstored/internal/embeddings"
	"github.com/fyrsmithlabs/vectorstored/internal/embeddings/embeddingstest"
	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
	"github.com/fyrsmithlabs/vectorstored/internal/ingest"
	"github.com/fyrsmithlabs/vectorstored/internal/loader"
	"github.com/fyrsmithlabs/vectorstored/internal/metadata"
)

const sixSentences = "The quick brown fox jumps. It lands softly on the grass. " +
	"A dog watches from the porch. The dog does not move. " +
	"Evening falls over the farm. Everyone goes inside."

type harness struct {
	model  *embeddingstest.Model
	chunks chunkstore.Store
	meta   *metadata.MemoryStore
	orch   *ingest.Orchestrator
}

func newHarness(t *testing.T, opts ingest.Options, mutate ...func(*embeddingstest.Model)) *harness {
	t.Helper()
	model := embeddingstest.New(embeddingstest.DefaultDimension)
	for _, m := range mutate {
		m(model)
	}
	h := &harness{
		model:  model,
		chunks: chunkstore.NewMemoryStore(),
		meta:   metadata.NewMemoryStore(),
	}
	require.NoError(t, h.meta.CreateVectorStore(context.Background(), &metadata.VectorStore{
		ID: "vs_1", Status: metadata.VectorStoreCompleted, CreatedAt: time.Now(),
	}))
	h.orch = ingest.New(embeddings.NewProvider(model), chunking.New(), h.chunks, h.meta, opts, nil)
	return h
}

func textDoc(t *testing.T, s string) loader.Document {
	t.Helper()
	doc, err := loader.OpenKind(loader.KindText, []byte(s))
	require.NoError(t, err)
	return doc
}

func strategy(size, overlap int) *chunking.Strategy {
	return &chunking.Strategy{Type: chunking.KindSentence, MaxChunkSize: size, ChunkOverlap: overlap, Language: "en"}
}

func TestIngest_Completes(t *testing.T) {
	h := newHarness(t, ingest.Options{})
	ctx := context.Background()

	f, err := h.orch.Ingest(ctx, "vs_1", "file_1", textDoc(t, sixSentences), strategy(2, 0))
	require.NoError(t, err)
	assert.Equal(t, metadata.FileCompleted, f.Status)
	assert.Nil(t, f.LastError)
	assert.EqualValues(t, 3*768*4, f.UsageBytes)

	chunks, err := h.chunks.Find(ctx, "vs_1", "file_1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Sequence)
		assert.Equal(t, chunkstore.KindText, c.Kind)
		assert.Len(t, c.Embedding, 768)
	}
	assert.Equal(t, "A dog watches from the porch. The dog does not move.", chunks[1].Content)

	stored, err := h.meta.GetFile(ctx, "vs_1", "file_1")
	require.NoError(t, err)
	assert.Equal(t, metadata.FileCompleted, stored.Status)
	assert.Equal(t, f.UsageBytes, stored.UsageBytes)
	assert.Zero(t, h.orch.Running())
}

func TestIngest_DefaultStrategy(t *testing.T) {
	h := newHarness(t, ingest.Options{})
	f, err := h.orch.Ingest(context.Background(), "vs_1", "file_1", textDoc(t, sixSentences), nil)
	require.NoError(t, err)
	assert.Equal(t, chunking.DefaultStrategy(), f.ChunkingStrategy)
}

func TestIngest_InvalidStrategyWritesNothing(t *testing.T) {
	h := newHarness(t, ingest.Options{})
	ctx := context.Background()

	_, err := h.orch.Ingest(ctx, "vs_1", "file_1", textDoc(t, sixSentences), strategy(2, 2))
	assert.Equal(t, errdefs.CodeConfiguration, errdefs.CodeOf(err))

	_, err = h.meta.GetFile(ctx, "vs_1", "file_1")
	assert.True(t, errdefs.IsNotFound(err))
	assert.Zero(t, h.model.Calls())
}

func TestIngest_UnknownVectorStore(t *testing.T) {
	h := newHarness(t, ingest.Options{})
	_, err := h.orch.Ingest(context.Background(), "vs_missing", "file_1", textDoc(t, sixSentences), nil)
	assert.True(t, errdefs.IsNotFound(err))
}

func TestIngest_EmbeddingFailureCompensates(t *testing.T) {
	h := newHarness(t, ingest.Options{EmbedBatchSize: 1}, func(m *embeddingstest.Model) {
		m.EmbedErr = func(call int) error {
			if call == 2 {
				return errors.New("gpu fell over")
			}
			return nil
		}
	})
	ctx := context.Background()

	f, err := h.orch.Ingest(ctx, "vs_1", "file_1", textDoc(t, sixSentences), strategy(2, 0))
	require.Error(t, err)
	assert.Equal(t, metadata.FileFailed, f.Status)
	require.NotNil(t, f.LastError)
	assert.Equal(t, errdefs.CodeEmbedding, f.LastError.Code)
	assert.Contains(t, f.LastError.Message, "gpu fell over")
	assert.Zero(t, f.UsageBytes)

	chunks, err := h.chunks.Find(ctx, "vs_1", "file_1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Equal(t, 2, h.model.Calls())
}

func TestIngest_KeepPartialChunks(t *testing.T) {
	h := newHarness(t, ingest.Options{EmbedBatchSize: 1, KeepPartialChunks: true}, func(m *embeddingstest.Model) {
		m.EmbedErr = func(call int) error {
			if call == 2 {
				return errors.New("boom")
			}
			return nil
		}
	})
	ctx := context.Background()

	f, err := h.orch.Ingest(ctx, "vs_1", "file_1", textDoc(t, sixSentences), strategy(2, 0))
	require.Error(t, err)
	assert.Equal(t, metadata.FileFailed, f.Status)
	assert.EqualValues(t, 768*4, f.UsageBytes)

	chunks, err := h.chunks.Find(ctx, "vs_1", "file_1")
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestIngest_Cancel(t *testing.T) {
	var h *harness
	h = newHarness(t, ingest.Options{EmbedBatchSize: 1}, func(m *embeddingstest.Model) {
		m.BeforeEmbed = func(_ context.Context, _ []string) {
			if m.Calls() == 2 {
				assert.True(t, h.orch.Cancel("vs_1", "file_1"))
			}
		}
	})
	ctx := context.Background()

	f, err := h.orch.Ingest(ctx, "vs_1", "file_1", textDoc(t, sixSentences), strategy(1, 0))
	assert.Equal(t, errdefs.CodeCancelled, errdefs.CodeOf(err))
	assert.Equal(t, metadata.FileCancelled, f.Status)
	assert.Nil(t, f.LastError)
	assert.Equal(t, 2, h.model.Calls(), "no embedding after cancellation is observed")

	chunks, err := h.chunks.Find(ctx, "vs_1", "file_1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.False(t, h.orch.Cancel("vs_1", "file_1"))
}

func TestIngest_CancelBeforeRun(t *testing.T) {
	h := newHarness(t, ingest.Options{})
	ctx := context.Background()

	f, err := h.orch.Begin(ctx, "vs_1", "file_1", nil)
	require.NoError(t, err)
	assert.Equal(t, metadata.FileInProgress, f.Status)
	assert.True(t, h.orch.Cancel("vs_1", "file_1"))

	f, err = h.orch.Run(ctx, f, textDoc(t, sixSentences))
	assert.Error(t, err)
	assert.Equal(t, metadata.FileCancelled, f.Status)
	assert.Zero(t, h.model.Calls())
}

func TestIngest_StopWaitsForOutcome(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	h := newHarness(t, ingest.Options{EmbedBatchSize: 1}, func(m *embeddingstest.Model) {
		m.BeforeEmbed = func(ctx context.Context, _ []string) {
			once.Do(func() {
				close(started)
				<-ctx.Done()
			})
		}
	})
	ctx := context.Background()

	f, err := h.orch.Begin(ctx, "vs_1", "file_1", strategy(1, 0))
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.orch.Run(ctx, f, textDoc(t, sixSentences))
	}()
	<-started

	stopped, err := h.orch.Stop(ctx, "vs_1", "file_1")
	require.NoError(t, err)
	assert.True(t, stopped)
	<-done

	got, err := h.meta.GetFile(ctx, "vs_1", "file_1")
	require.NoError(t, err)
	assert.Equal(t, metadata.FileCancelled, got.Status)
	assert.Zero(t, h.orch.Running())

	stopped, err = h.orch.Stop(ctx, "vs_1", "file_1")
	require.NoError(t, err)
	assert.False(t, stopped)
}

func TestIngest_ReingestReplacesChunks(t *testing.T) {
	h := newHarness(t, ingest.Options{})
	ctx := context.Background()

	_, err := h.orch.Ingest(ctx, "vs_1", "file_1", textDoc(t, sixSentences), strategy(2, 0))
	require.NoError(t, err)
	f, err := h.orch.Ingest(ctx, "vs_1", "file_1", textDoc(t, sixSentences), strategy(3, 0))
	require.NoError(t, err)
	assert.EqualValues(t, 2*768*4, f.UsageBytes)

	chunks, err := h.chunks.Find(ctx, "vs_1", "file_1")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}

type failingStore struct {
	chunkstore.Store
	mu    sync.Mutex
	puts  int
	failN int
}

func (s *failingStore) Put(ctx context.Context, c *chunkstore.Chunk) (string, error) {
	s.mu.Lock()
	s.puts++
	n := s.puts
	s.mu.Unlock()
	if n == s.failN {
		return "", errdefs.Wrap(errdefs.CodePersistence, errdefs.ErrPersistence, "disk full")
	}
	return s.Store.Put(ctx, c)
}

func TestIngest_PersistenceFailure(t *testing.T) {
	model := embeddingstest.New(embeddingstest.DefaultDimension)
	meta := metadata.NewMemoryStore()
	require.NoError(t, meta.CreateVectorStore(context.Background(), &metadata.VectorStore{ID: "vs_1", CreatedAt: time.Now()}))
	store := &failingStore{Store: chunkstore.NewMemoryStore(), failN: 2}
	orch := ingest.New(embeddings.NewProvider(model), nil, store, meta, ingest.Options{EmbedBatchSize: 1, PersistWorkers: 1}, nil)

	f, err := orch.Ingest(context.Background(), "vs_1", "file_1", textDoc(t, sixSentences), strategy(1, 0))
	require.Error(t, err)
	assert.Equal(t, metadata.FileFailed, f.Status)
	require.NotNil(t, f.LastError)
	assert.Equal(t, errdefs.CodePersistence, f.LastError.Code)

	chunks, err := store.Find(context.Background(), "vs_1", "file_1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 3))))
	return buf.Bytes()
}

func TestIngest_Image(t *testing.T) {
	h := newHarness(t, ingest.Options{}, func(m *embeddingstest.Model) { m.Images = true })
	ctx := context.Background()
	data := pngBytes(t)
	doc, err := loader.OpenKind(loader.KindImage, data)
	require.NoError(t, err)

	f, err := h.orch.Ingest(ctx, "vs_1", "img_1", doc, nil)
	require.NoError(t, err)
	assert.Equal(t, metadata.FileCompleted, f.Status)
	assert.EqualValues(t, 768*4, f.UsageBytes)

	chunks, err := h.chunks.Find(ctx, "vs_1", "img_1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, chunkstore.KindImage, chunks[0].Kind)
	assert.Equal(t, base64.StdEncoding.EncodeToString(data), chunks[0].Content)
}

func TestIngest_ImageWithoutImageModel(t *testing.T) {
	h := newHarness(t, ingest.Options{})
	doc, err := loader.OpenKind(loader.KindImage, pngBytes(t))
	require.NoError(t, err)

	f, err := h.orch.Ingest(context.Background(), "vs_1", "img_1", doc, nil)
	require.Error(t, err)
	assert.Equal(t, metadata.FileFailed, f.Status)
	assert.Equal(t, errdefs.CodeUnsupportedInput, f.LastError.Code)
}

func TestIngest_Progress(t *testing.T) {
	h := newHarness(t, ingest.Options{EmbedBatchSize: 2})
	var seen []ingest.Progress
	h.orch.OnProgress(func(p ingest.Progress) { seen = append(seen, p) })

	_, err := h.orch.Ingest(context.Background(), "vs_1", "file_1", textDoc(t, sixSentences), strategy(1, 0))
	require.NoError(t, err)
	require.Len(t, seen, 3)
	assert.Equal(t, ingest.Progress{VectorStoreID: "vs_1", FileID: "file_1", Embedded: 6, Total: 6}, seen[2])
}

func TestIngest_EmptyDocumentCompletes(t *testing.T) {
	h := newHarness(t, ingest.Options{})
	f, err := h.orch.Ingest(context.Background(), "vs_1", "file_1", textDoc(t, "   "), nil)
	require.NoError(t, err)
	assert.Equal(t, metadata.FileCompleted, f.Status)
	assert.Zero(t, f.UsageBytes)
	assert.Zero(t, h.model.Calls())
}

func TestFail_RecordsLastError(t *testing.T) {
	h := newHarness(t, ingest.Options{})
	ctx := context.Background()
	f, err := h.orch.Begin(ctx, "vs_1", "file_1", nil)
	require.NoError(t, err)

	f, err = h.orch.Fail(ctx, f, errdefs.Unsupported("legacy .doc files are not supported"))
	require.Error(t, err)
	assert.Equal(t, metadata.FileFailed, f.Status)
	assert.Equal(t, errdefs.CodeUnsupportedInput, f.LastError.Code)
	assert.Zero(t, h.orch.Running())
}

func TestBegin_RejectsRunningFile(t *testing.T) {
	h := newHarness(t, ingest.Options{})
	ctx := context.Background()

	f, err := h.orch.Begin(ctx, "vs_1", "file_1", strategy(2, 0))
	require.NoError(t, err)

	_, err = h.orch.Begin(ctx, "vs_1", "file_1", strategy(3, 0))
	require.Error(t, err)
	assert.Equal(t, errdefs.CodeConflict, errdefs.CodeOf(err))
	assert.Equal(t, 1, h.orch.Running())

	got, err := h.meta.GetFile(ctx, "vs_1", "file_1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.ChunkingStrategy.MaxChunkSize)

	_, err = h.orch.Begin(ctx, "vs_1", "file_2", nil)
	require.NoError(t, err, "other files are unaffected")

	_, err = h.orch.Run(ctx, f, textDoc(t, sixSentences))
	require.NoError(t, err)

	f, err = h.orch.Ingest(ctx, "vs_1", "file_1", textDoc(t, sixSentences), strategy(3, 0))
	require.NoError(t, err)
	assert.Equal(t, metadata.FileCompleted, f.Status)
	chunks, err := h.chunks.Find(ctx, "vs_1", "file_1")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}
