package chunkstore

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps chunks in process memory, in insertion order.
type MemoryStore struct {
	mu     sync.RWMutex
	stores map[string][]Chunk
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stores: make(map[string][]Chunk)}
}

func (s *MemoryStore) Put(ctx context.Context, chunk *Chunk) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", persistErr(err, "put chunk")
	}
	if err := prepare(chunk); err != nil {
		return "", err
	}
	c := *chunk
	c.Embedding = slices.Clone(chunk.Embedding)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores[c.VectorStoreID] = append(s.stores[c.VectorStoreID], c)
	return c.ID, nil
}

func (s *MemoryStore) Scan(_ context.Context, vectorStoreID string) ([]Chunk, error) {
	s.mu.RLock()
	out := slices.Clone(s.stores[vectorStoreID])
	s.mu.RUnlock()
	SortBySequence(out)
	return out, nil
}

func (s *MemoryStore) Find(_ context.Context, vectorStoreID, fileID string) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Chunk
	for _, c := range s.stores[vectorStoreID] {
		if c.FileID == fileID {
			out = append(out, c)
		}
	}
	SortBySequence(out)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, vectorStoreID, chunkID string) error {
	s.remove(vectorStoreID, func(c Chunk) bool { return c.ID == chunkID })
	return nil
}

func (s *MemoryStore) DeleteFile(_ context.Context, vectorStoreID, fileID string) error {
	s.remove(vectorStoreID, func(c Chunk) bool { return c.FileID == fileID })
	return nil
}

func (s *MemoryStore) DeleteVectorStore(_ context.Context, vectorStoreID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stores, vectorStoreID)
	return nil
}

func (s *MemoryStore) remove(vectorStoreID string, match func(Chunk) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunks := slices.DeleteFunc(s.stores[vectorStoreID], match)
	if len(chunks) == 0 {
		delete(s.stores, vectorStoreID)
		return
	}
	s.stores[vectorStoreID] = chunks
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
