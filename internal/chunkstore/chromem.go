package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("vectorstored.chunkstore.chromem")

const (
	metaVectorStoreID = "vector_store_id"
	metaFileID        = "file_id"
	metaSequence      = "sequence"
	metaKind          = "kind"
	metaCreatedAt     = "created_at"
)

var errNoEmbeddingFunc = errors.New("chunks must carry precomputed embeddings")

// ChromemStore keeps chunks in an embedded chromem-go database, one
// collection per vector store, persisted as gob files under Path.
type ChromemStore struct {
	db        *chromem.DB
	dimension int
	logger    *zap.Logger
}

// NewChromemStore opens (or creates) the database at path. dimension is
// the embedding size and is needed to enumerate collections.
func NewChromemStore(path string, compress bool, dimension int, logger *zap.Logger) (*ChromemStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("chromem: dimension must be positive, got %d", dimension)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	expanded, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expanded, err)
	}
	db, err := chromem.NewPersistentDB(expanded, compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	logger.Info("chromem chunk store initialized",
		zap.String("path", expanded),
		zap.Bool("compress", compress),
		zap.Int("dimension", dimension),
	)
	return &ChromemStore{db: db, dimension: dimension, logger: logger}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func collectionName(vectorStoreID string) string {
	return "vs_" + vectorStoreID
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

func (s *ChromemStore) Put(ctx context.Context, chunk *Chunk) (string, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Put")
	defer span.End()

	if err := prepare(chunk); err != nil {
		return "", err
	}
	if len(chunk.Embedding) != s.dimension {
		return "", fmt.Errorf("%w: embedding has %d dimensions, store expects %d", ErrInvalidChunk, len(chunk.Embedding), s.dimension)
	}
	span.SetAttributes(
		attribute.String("vector_store.id", chunk.VectorStoreID),
		attribute.String("file.id", chunk.FileID),
	)

	col, err := s.db.GetOrCreateCollection(collectionName(chunk.VectorStoreID), nil, noEmbedding)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", persistErr(err, "opening collection for %s", chunk.VectorStoreID)
	}

	err = col.AddDocument(ctx, chromem.Document{
		ID:        chunk.ID,
		Content:   chunk.Content,
		Embedding: chunk.Embedding,
		Metadata: map[string]string{
			metaVectorStoreID: chunk.VectorStoreID,
			metaFileID:        chunk.FileID,
			metaSequence:      strconv.Itoa(chunk.Sequence),
			metaKind:          string(chunk.Kind),
			metaCreatedAt:     chunk.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", persistErr(err, "adding chunk %s", chunk.ID)
	}
	return chunk.ID, nil
}

func (s *ChromemStore) Scan(ctx context.Context, vectorStoreID string) ([]Chunk, error) {
	return s.query(ctx, vectorStoreID, nil)
}

func (s *ChromemStore) Find(ctx context.Context, vectorStoreID, fileID string) ([]Chunk, error) {
	return s.query(ctx, vectorStoreID, map[string]string{metaFileID: fileID})
}

// query enumerates a collection. chromem has no listing API, so it runs
// an exhaustive nearest-neighbour query against a fixed probe vector and
// restores document order afterwards.
func (s *ChromemStore) query(ctx context.Context, vectorStoreID string, where map[string]string) ([]Chunk, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()
	span.SetAttributes(attribute.String("vector_store.id", vectorStoreID))

	col := s.db.GetCollection(collectionName(vectorStoreID), noEmbedding)
	if col == nil {
		return nil, nil
	}
	n := col.Count()
	if n == 0 {
		return nil, nil
	}

	probe := make([]float32, s.dimension)
	probe[0] = 1
	results, err := col.QueryEmbedding(ctx, probe, n, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, persistErr(err, "scanning %s", vectorStoreID)
	}

	chunks := make([]Chunk, 0, len(results))
	for _, r := range results {
		seq, _ := strconv.Atoi(r.Metadata[metaSequence])
		created, _ := time.Parse(time.RFC3339Nano, r.Metadata[metaCreatedAt])
		chunks = append(chunks, Chunk{
			ID:            r.ID,
			VectorStoreID: r.Metadata[metaVectorStoreID],
			FileID:        r.Metadata[metaFileID],
			Content:       r.Content,
			Embedding:     r.Embedding,
			Sequence:      seq,
			Kind:          Kind(r.Metadata[metaKind]),
			CreatedAt:     created,
		})
	}
	SortBySequence(chunks)
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	return chunks, nil
}

func (s *ChromemStore) Delete(ctx context.Context, vectorStoreID, chunkID string) error {
	col := s.db.GetCollection(collectionName(vectorStoreID), noEmbedding)
	if col == nil {
		return nil
	}
	return persistErr(col.Delete(ctx, nil, nil, chunkID), "deleting chunk %s", chunkID)
}

func (s *ChromemStore) DeleteFile(ctx context.Context, vectorStoreID, fileID string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteFile")
	defer span.End()

	col := s.db.GetCollection(collectionName(vectorStoreID), noEmbedding)
	if col == nil {
		return nil
	}
	if err := col.Delete(ctx, map[string]string{metaFileID: fileID}, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return persistErr(err, "deleting chunks of file %s", fileID)
	}
	s.logger.Debug("deleted file chunks",
		zap.String("vector_store_id", vectorStoreID),
		zap.String("file_id", fileID))
	return nil
}

func (s *ChromemStore) DeleteVectorStore(_ context.Context, vectorStoreID string) error {
	if s.db.GetCollection(collectionName(vectorStoreID), noEmbedding) == nil {
		return nil
	}
	return persistErr(s.db.DeleteCollection(collectionName(vectorStoreID)), "deleting collection for %s", vectorStoreID)
}

func (s *ChromemStore) Close() error { return nil }

var _ Store = (*ChromemStore)(nil)
