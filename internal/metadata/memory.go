package metadata

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

type fileKey struct{ vs, id string }

// MemoryStore keeps records in process memory. Records are copied on the
// way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	stores  map[string]VectorStore
	files   map[fileKey]VectorStoreFile
	objects map[string]File
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stores:  make(map[string]VectorStore),
		files:   make(map[fileKey]VectorStoreFile),
		objects: make(map[string]File),
	}
}

func copyStore(vs VectorStore) VectorStore {
	vs.Metadata = maps.Clone(vs.Metadata)
	if vs.ExpiresAfter != nil {
		ea := *vs.ExpiresAfter
		vs.ExpiresAfter = &ea
	}
	if vs.ExpiresAt != nil {
		t := *vs.ExpiresAt
		vs.ExpiresAt = &t
	}
	if vs.LastActiveAt != nil {
		t := *vs.LastActiveAt
		vs.LastActiveAt = &t
	}
	return vs
}

func copyFile(f VectorStoreFile) VectorStoreFile {
	if f.LastError != nil {
		le := *f.LastError
		f.LastError = &le
	}
	return f
}

func (m *MemoryStore) CreateVectorStore(_ context.Context, vs *VectorStore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stores[vs.ID]; ok {
		return errdefs.Configuration("vector store %s already exists", vs.ID)
	}
	m.stores[vs.ID] = copyStore(*vs)
	return nil
}

func (m *MemoryStore) GetVectorStore(_ context.Context, id string) (*VectorStore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs, ok := m.stores[id]
	if !ok {
		return nil, errdefs.NotFound("vector store %s not found", id)
	}
	out := copyStore(vs)
	return &out, nil
}

func (m *MemoryStore) UpdateVectorStore(_ context.Context, vs *VectorStore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stores[vs.ID]; !ok {
		return errdefs.NotFound("vector store %s not found", vs.ID)
	}
	m.stores[vs.ID] = copyStore(*vs)
	return nil
}

func (m *MemoryStore) DeleteVectorStore(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stores[id]; !ok {
		return errdefs.NotFound("vector store %s not found", id)
	}
	delete(m.stores, id)
	for k := range m.files {
		if k.vs == id {
			delete(m.files, k)
		}
	}
	return nil
}

func (m *MemoryStore) ListVectorStores(_ context.Context, params ListParams) (Page[VectorStore], error) {
	params, err := params.Normalize()
	if err != nil {
		return Page[VectorStore]{}, err
	}
	m.mu.RLock()
	items := make([]VectorStore, 0, len(m.stores))
	for _, vs := range m.stores {
		items = append(items, copyStore(vs))
	}
	m.mu.RUnlock()
	return paginate(items, params, func(vs VectorStore) sortKey { return sortKey{vs.CreatedAt, vs.ID} })
}

func (m *MemoryStore) ListExpirable(_ context.Context, now time.Time) ([]VectorStore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []VectorStore
	for _, vs := range m.stores {
		if vs.Status != VectorStoreExpired && vs.ExpiresAt != nil && !vs.ExpiresAt.After(now) {
			out = append(out, copyStore(vs))
		}
	}
	return out, nil
}

func (m *MemoryStore) PutFile(_ context.Context, f *VectorStoreFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stores[f.VectorStoreID]; !ok {
		return errdefs.NotFound("vector store %s not found", f.VectorStoreID)
	}
	m.files[fileKey{f.VectorStoreID, f.ID}] = copyFile(*f)
	return nil
}

func (m *MemoryStore) GetFile(_ context.Context, vectorStoreID, fileID string) (*VectorStoreFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[fileKey{vectorStoreID, fileID}]
	if !ok {
		return nil, errdefs.NotFound("file %s not found in vector store %s", fileID, vectorStoreID)
	}
	out := copyFile(f)
	return &out, nil
}

func (m *MemoryStore) DeleteFile(_ context.Context, vectorStoreID, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := fileKey{vectorStoreID, fileID}
	if _, ok := m.files[k]; !ok {
		return errdefs.NotFound("file %s not found in vector store %s", fileID, vectorStoreID)
	}
	delete(m.files, k)
	return nil
}

func (m *MemoryStore) ListFiles(_ context.Context, vectorStoreID string, params ListParams, status FileStatus) (Page[VectorStoreFile], error) {
	params, err := params.Normalize()
	if err != nil {
		return Page[VectorStoreFile]{}, err
	}
	m.mu.RLock()
	var items []VectorStoreFile
	for k, f := range m.files {
		if k.vs == vectorStoreID && (status == "" || f.Status == status) {
			items = append(items, copyFile(f))
		}
	}
	m.mu.RUnlock()
	return paginate(items, params, func(f VectorStoreFile) sortKey { return sortKey{f.CreatedAt, f.ID} })
}

func (m *MemoryStore) FileStats(_ context.Context, vectorStoreID string) (FileCounts, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		counts FileCounts
		usage  int64
	)
	for k, f := range m.files {
		if k.vs == vectorStoreID {
			counts.Add(f.Status)
			usage += f.UsageBytes
		}
	}
	return counts, usage, nil
}

func (m *MemoryStore) CreateObject(_ context.Context, f *File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[f.ID]; ok {
		return errdefs.Configuration("file %s already exists", f.ID)
	}
	m.objects[f.ID] = *f
	return nil
}

func (m *MemoryStore) GetObject(_ context.Context, id string) (*File, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.objects[id]
	if !ok {
		return nil, errdefs.NotFound("file %s not found", id)
	}
	return &f, nil
}

func (m *MemoryStore) DeleteObject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id]; !ok {
		return errdefs.NotFound("file %s not found", id)
	}
	delete(m.objects, id)
	return nil
}

func (m *MemoryStore) ListObjects(_ context.Context, params ListParams, purpose string) (Page[File], error) {
	params, err := params.Normalize()
	if err != nil {
		return Page[File]{}, err
	}
	m.mu.RLock()
	var items []File
	for _, f := range m.objects {
		if purpose == "" || f.Purpose == purpose {
			items = append(items, f)
		}
	}
	m.mu.RUnlock()
	return paginate(items, params, func(f File) sortKey { return sortKey{f.CreatedAt, f.ID} })
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
