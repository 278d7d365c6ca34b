package metadata

import (
	"context"
	"time"
)

// Store persists metadata records. Get, Update and Delete of an unknown
// id return an errdefs not-found error.
type Store interface {
	CreateVectorStore(ctx context.Context, vs *VectorStore) error
	GetVectorStore(ctx context.Context, id string) (*VectorStore, error)
	UpdateVectorStore(ctx context.Context, vs *VectorStore) error
	// DeleteVectorStore removes the store and its file records.
	DeleteVectorStore(ctx context.Context, id string) error
	ListVectorStores(ctx context.Context, params ListParams) (Page[VectorStore], error)
	// ListExpirable returns stores with an expiry at or before now that
	// are not yet expired.
	ListExpirable(ctx context.Context, now time.Time) ([]VectorStore, error)

	// PutFile inserts or replaces a vector store file record.
	PutFile(ctx context.Context, f *VectorStoreFile) error
	GetFile(ctx context.Context, vectorStoreID, fileID string) (*VectorStoreFile, error)
	DeleteFile(ctx context.Context, vectorStoreID, fileID string) error
	// ListFiles pages a store's files, optionally filtered by status.
	ListFiles(ctx context.Context, vectorStoreID string, params ListParams, status FileStatus) (Page[VectorStoreFile], error)
	// FileStats aggregates a store's files.
	FileStats(ctx context.Context, vectorStoreID string) (FileCounts, int64, error)

	CreateObject(ctx context.Context, f *File) error
	GetObject(ctx context.Context, id string) (*File, error)
	DeleteObject(ctx context.Context, id string) error
	ListObjects(ctx context.Context, params ListParams, purpose string) (Page[File], error)

	Close() error
}
