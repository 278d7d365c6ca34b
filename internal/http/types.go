package http

import (
	"github.com/fyrsmithlabs/vectorstored/internal/chunking"
	"github.com/fyrsmithlabs/vectorstored/internal/search"
)

// ListResponse wraps a page of objects.
type ListResponse[T any] struct {
	Object  string `json:"object"`
	Data    []T    `json:"data"`
	FirstID string `json:"first_id,omitempty"`
	LastID  string `json:"last_id,omitempty"`
	HasMore bool   `json:"has_more"`
}

// DeletedResponse acknowledges a deletion.
type DeletedResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// CreateVectorStoreFileRequest is the body of POST /v1/vector_stores/:id/files.
type CreateVectorStoreFileRequest struct {
	FileID           string             `json:"file_id"`
	ChunkingStrategy *chunking.Strategy `json:"chunking_strategy,omitempty"`
}

// SearchRequest is the body of POST /v1/vector_stores/:id/search.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// SearchResponse lists ranked chunks.
type SearchResponse struct {
	Object      string          `json:"object"`
	SearchQuery string          `json:"search_query"`
	Data        []search.Result `json:"data"`
}

// EmbeddingsRequest is the body of POST /v1/embeddings. Input is a string
// or a list of strings.
type EmbeddingsRequest struct {
	Input          StringList `json:"input"`
	Model          string     `json:"model"`
	EncodingFormat string     `json:"encoding_format"`
}
