// Package chunkstore persists document chunks and their embeddings.
//
// Chunks are namespaced by vector store id and grouped by file id. They
// are immutable once stored and are only ever removed by a file or
// vector store cascade. Scan and Find return chunks ordered by Sequence
// so that callers see document order regardless of backend.
package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

// Kind distinguishes text chunks from image chunks.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Chunk is one embedded unit of a file. For image chunks Content holds
// the base64 payload of the image.
type Chunk struct {
	ID            string    `json:"id" db:"id"`
	VectorStoreID string    `json:"vector_store_id" db:"vector_store_id"`
	FileID        string    `json:"file_id" db:"file_id"`
	Content       string    `json:"content" db:"content"`
	Embedding     []float32 `json:"embedding" db:"-"`
	Sequence      int       `json:"sequence" db:"sequence"`
	Kind          Kind      `json:"kind" db:"kind"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// UsageBytes is the storage the chunk's embedding accounts for.
func (c *Chunk) UsageBytes() int64 {
	return int64(len(c.Embedding)) * 4
}

// Store is the chunk persistence contract. Implementations are safe for
// concurrent use.
type Store interface {
	// Put stores chunk and returns its id, assigning one when empty.
	Put(ctx context.Context, chunk *Chunk) (string, error)
	// Scan returns every chunk of a vector store.
	Scan(ctx context.Context, vectorStoreID string) ([]Chunk, error)
	// Find returns the chunks of one file.
	Find(ctx context.Context, vectorStoreID, fileID string) ([]Chunk, error)
	// Delete removes a single chunk. Deleting a missing chunk is a no-op.
	Delete(ctx context.Context, vectorStoreID, chunkID string) error
	// DeleteFile removes every chunk of a file.
	DeleteFile(ctx context.Context, vectorStoreID, fileID string) error
	// DeleteVectorStore removes every chunk of a vector store.
	DeleteVectorStore(ctx context.Context, vectorStoreID string) error
	// Close releases backend resources.
	Close() error
}

// ErrInvalidChunk indicates a chunk missing required fields.
var ErrInvalidChunk = errors.New("invalid chunk")

// prepare validates chunk and fills its id and timestamp.
func prepare(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: nil chunk", ErrInvalidChunk)
	}
	if chunk.VectorStoreID == "" || chunk.FileID == "" {
		return fmt.Errorf("%w: vector store id and file id are required", ErrInvalidChunk)
	}
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrInvalidChunk)
	}
	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	if chunk.Kind == "" {
		chunk.Kind = KindText
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}
	return nil
}

// SortBySequence groups chunks by file, files in order of their first
// chunk's creation, and orders each file's chunks by sequence.
func SortBySequence(chunks []Chunk) {
	first := make(map[string]time.Time)
	for _, c := range chunks {
		if t, ok := first[c.FileID]; !ok || c.CreatedAt.Before(t) {
			first[c.FileID] = c.CreatedAt
		}
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		a, b := chunks[i], chunks[j]
		if a.FileID != b.FileID {
			ta, tb := first[a.FileID], first[b.FileID]
			if !ta.Equal(tb) {
				return ta.Before(tb)
			}
			return a.FileID < b.FileID
		}
		return a.Sequence < b.Sequence
	})
}

// persistErr classifies a backend failure.
func persistErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return errdefs.Wrap(errdefs.CodeCancelled, err, format, args...)
	}
	return errdefs.Wrap(errdefs.CodePersistence, err, format, args...)
}
