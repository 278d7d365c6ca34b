// Package metadata stores vector store, vector store file and uploaded
// file records.
package metadata

import (
	"time"

	"github.com/fyrsmithlabs/vectorstored/internal/chunking"
	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

// VectorStoreStatus is the lifecycle state of a vector store.
type VectorStoreStatus string

const (
	VectorStoreInProgress VectorStoreStatus = "in_progress"
	VectorStoreCompleted  VectorStoreStatus = "completed"
	VectorStoreExpired    VectorStoreStatus = "expired"
)

// FileStatus is the ingestion state of a vector store file. Every state
// but in_progress is terminal.
type FileStatus string

const (
	FileInProgress FileStatus = "in_progress"
	FileCompleted  FileStatus = "completed"
	FileCancelled  FileStatus = "cancelled"
	FileFailed     FileStatus = "failed"
)

// Terminal reports whether s is a final state.
func (s FileStatus) Terminal() bool {
	return s == FileCompleted || s == FileCancelled || s == FileFailed
}

// Valid reports whether s is a known status.
func (s FileStatus) Valid() bool {
	return s == FileInProgress || s.Terminal()
}

// LastError records why a file failed.
type LastError struct {
	Code    errdefs.Code `json:"code"`
	Message string       `json:"message"`
}

// NewLastError classifies err for storage on a failed file.
func NewLastError(err error) *LastError {
	if err == nil {
		return nil
	}
	return &LastError{Code: errdefs.CodeOf(err), Message: err.Error()}
}

// FileCounts tallies a vector store's files by status.
type FileCounts struct {
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// Add counts one file with status s.
func (c *FileCounts) Add(s FileStatus) {
	switch s {
	case FileInProgress:
		c.InProgress++
	case FileCompleted:
		c.Completed++
	case FileFailed:
		c.Failed++
	case FileCancelled:
		c.Cancelled++
	}
	c.Total++
}

// ExpiresAfter is a vector store expiration policy.
type ExpiresAfter struct {
	Anchor string `json:"anchor"`
	Days   int    `json:"days"`
}

// AnchorLastActiveAt is the only supported expiration anchor.
const AnchorLastActiveAt = "last_active_at"

// Validate rejects unsupported anchors and non-positive day counts.
func (e *ExpiresAfter) Validate() error {
	if e == nil {
		return nil
	}
	if e.Anchor != AnchorLastActiveAt {
		return errdefs.Configuration("expires_after.anchor must be %q, got %q", AnchorLastActiveAt, e.Anchor)
	}
	if e.Days < 1 || e.Days > 365 {
		return errdefs.Configuration("expires_after.days must be between 1 and 365, got %d", e.Days)
	}
	return nil
}

// VectorStore is a named collection of ingested files.
type VectorStore struct {
	ID           string            `json:"id"`
	Object       string            `json:"object"`
	Name         string            `json:"name"`
	UsageBytes   int64             `json:"usage_bytes"`
	FileCounts   FileCounts        `json:"file_counts"`
	Status       VectorStoreStatus `json:"status"`
	ExpiresAfter *ExpiresAfter     `json:"expires_after,omitempty"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	LastActiveAt *time.Time        `json:"last_active_at,omitempty"`
	Metadata     map[string]string `json:"metadata"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Touch marks the store active at now and recomputes ExpiresAt.
func (v *VectorStore) Touch(now time.Time) {
	v.LastActiveAt = &now
	v.RefreshExpiry()
}

// RefreshExpiry recomputes ExpiresAt from the policy and LastActiveAt.
func (v *VectorStore) RefreshExpiry() {
	if v.ExpiresAfter == nil {
		v.ExpiresAt = nil
		return
	}
	anchor := v.CreatedAt
	if v.LastActiveAt != nil {
		anchor = *v.LastActiveAt
	}
	at := anchor.Add(time.Duration(v.ExpiresAfter.Days) * 24 * time.Hour)
	v.ExpiresAt = &at
}

// VectorStoreFile is a file attached to a vector store. Its ID is the
// uploaded file's id.
type VectorStoreFile struct {
	ID               string            `json:"id"`
	Object           string            `json:"object"`
	VectorStoreID    string            `json:"vector_store_id"`
	UsageBytes       int64             `json:"usage_bytes"`
	Status           FileStatus        `json:"status"`
	LastError        *LastError        `json:"last_error"`
	ChunkingStrategy chunking.Strategy `json:"chunking_strategy"`
	CreatedAt        time.Time         `json:"created_at"`
}

// File is an uploaded blob held in object storage.
type File struct {
	ID         string    `json:"id"`
	Object     string    `json:"object"`
	Bytes      int64     `json:"bytes"`
	Filename   string    `json:"filename"`
	Purpose    string    `json:"purpose"`
	StorageKey string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Object type names.
const (
	ObjectVectorStore     = "vector_store"
	ObjectVectorStoreFile = "vector_store.file"
	ObjectFile            = "file"
)
