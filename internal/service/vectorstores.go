package service

import (
	"context"
	"maps"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorstored/internal/chunking"
	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
	"github.com/fyrsmithlabs/vectorstored/internal/logging"
	"github.com/fyrsmithlabs/vectorstored/internal/metadata"
	"github.com/fyrsmithlabs/vectorstored/internal/search"
)

const maxMetadataPairs = 16

// CreateVectorStoreRequest creates a vector store, optionally attaching
// uploaded files.
type CreateVectorStoreRequest struct {
	Name             string                 `json:"name"`
	Metadata         map[string]string      `json:"metadata,omitempty"`
	ExpiresAfter     *metadata.ExpiresAfter `json:"expires_after,omitempty"`
	FileIDs          []string               `json:"file_ids,omitempty"`
	ChunkingStrategy *chunking.Strategy     `json:"chunking_strategy,omitempty"`
}

// ModifyVectorStoreRequest changes a vector store. Nil fields are left
// unchanged; a non-nil empty ExpiresAfter removes the policy.
type ModifyVectorStoreRequest struct {
	Name         *string                `json:"name,omitempty"`
	Metadata     map[string]string      `json:"metadata,omitempty"`
	ExpiresAfter *metadata.ExpiresAfter `json:"expires_after,omitempty"`
}

func validateMetadata(md map[string]string) error {
	if len(md) > maxMetadataPairs {
		return errdefs.Configuration("metadata may hold at most %d pairs, got %d", maxMetadataPairs, len(md))
	}
	for k, v := range md {
		if len(k) > 64 || len(v) > 512 {
			return errdefs.Configuration("metadata key %q exceeds size limits", k)
		}
	}
	return nil
}

// CreateVectorStore validates req and stores a new, empty vector store,
// then attaches every requested file.
func (s *Service) CreateVectorStore(ctx context.Context, req CreateVectorStoreRequest) (*metadata.VectorStore, error) {
	if err := req.ExpiresAfter.Validate(); err != nil {
		return nil, err
	}
	if err := validateMetadata(req.Metadata); err != nil {
		return nil, err
	}
	if req.ChunkingStrategy != nil {
		if err := req.ChunkingStrategy.Normalize().Validate(); err != nil {
			return nil, err
		}
	}

	vs := &metadata.VectorStore{
		ID:           newID("vs_"),
		Object:       metadata.ObjectVectorStore,
		Name:         req.Name,
		Status:       metadata.VectorStoreCompleted,
		ExpiresAfter: req.ExpiresAfter,
		Metadata:     maps.Clone(req.Metadata),
		CreatedAt:    s.now(),
	}
	if vs.Metadata == nil {
		vs.Metadata = map[string]string{}
	}
	vs.Touch(vs.CreatedAt)
	if err := s.meta.CreateVectorStore(ctx, vs); err != nil {
		return nil, err
	}
	ctx = logging.WithVectorStoreID(ctx, vs.ID)
	s.logger.Info(ctx, "vector store created", zap.String("name", vs.Name), zap.Int("files", len(req.FileIDs)))

	for _, fileID := range req.FileIDs {
		if _, err := s.AttachFile(ctx, vs.ID, fileID, req.ChunkingStrategy); err != nil {
			s.logger.Warn(ctx, "attaching file failed", zap.String("file_id", fileID), zap.Error(err))
		}
	}
	return s.meta.GetVectorStore(ctx, vs.ID)
}

// GetVectorStore returns a vector store by id.
func (s *Service) GetVectorStore(ctx context.Context, id string) (*metadata.VectorStore, error) {
	return s.meta.GetVectorStore(ctx, id)
}

// ListVectorStores pages vector stores by creation time.
func (s *Service) ListVectorStores(ctx context.Context, params metadata.ListParams) (metadata.Page[metadata.VectorStore], error) {
	return s.meta.ListVectorStores(ctx, params)
}

// ModifyVectorStore applies req to the vector store.
func (s *Service) ModifyVectorStore(ctx context.Context, id string, req ModifyVectorStoreRequest) (*metadata.VectorStore, error) {
	clearExpiry := req.ExpiresAfter != nil && *req.ExpiresAfter == (metadata.ExpiresAfter{})
	if !clearExpiry {
		if err := req.ExpiresAfter.Validate(); err != nil {
			return nil, err
		}
	}
	if err := validateMetadata(req.Metadata); err != nil {
		return nil, err
	}
	return s.updateVectorStore(ctx, id, func(vs *metadata.VectorStore) error {
		if req.Name != nil {
			vs.Name = *req.Name
		}
		if req.Metadata != nil {
			vs.Metadata = maps.Clone(req.Metadata)
		}
		switch {
		case clearExpiry:
			vs.ExpiresAfter = nil
		case req.ExpiresAfter != nil:
			ea := *req.ExpiresAfter
			vs.ExpiresAfter = &ea
		}
		vs.RefreshExpiry()
		return nil
	})
}

// DeleteVectorStore removes the vector store's chunks, then its file
// records and the store itself. Running ingestions of the store are
// cancelled first.
func (s *Service) DeleteVectorStore(ctx context.Context, id string) error {
	if _, err := s.meta.GetVectorStore(ctx, id); err != nil {
		return err
	}
	ctx = logging.WithVectorStoreID(ctx, id)
	s.cancelStoreIngestions(ctx, id)

	if err := s.chunks.DeleteVectorStore(ctx, id); err != nil {
		return err
	}
	if err := s.meta.DeleteVectorStore(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "vector store deleted")
	return nil
}

func (s *Service) cancelStoreIngestions(ctx context.Context, id string) {
	var running []string
	params := metadata.ListParams{Limit: metadata.MaxLimit}
	for {
		page, err := s.meta.ListFiles(ctx, id, params, metadata.FileInProgress)
		if err != nil {
			s.logger.Warn(ctx, "listing running ingestions failed", zap.Error(err))
			break
		}
		for _, f := range page.Data {
			running = append(running, f.ID)
		}
		if !page.HasMore {
			break
		}
		params.After = page.LastID
	}
	for _, fileID := range running {
		if _, err := s.orch.Stop(ctx, id, fileID); err != nil {
			s.logger.Warn(ctx, "stopping ingestion failed", zap.String("file_id", fileID), zap.Error(err))
		}
	}
}

// Search runs a similarity query against the vector store and marks it
// active.
func (s *Service) Search(ctx context.Context, vectorStoreID, query string, topK int) ([]search.Result, error) {
	ctx = logging.WithVectorStoreID(ctx, vectorStoreID)
	if _, err := s.activeStore(ctx, vectorStoreID); err != nil {
		return nil, err
	}
	results, err := s.search.Search(ctx, vectorStoreID, query, topK)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, vectorStoreID)
	return results, nil
}

// activeStore returns the vector store unless it is unknown or expired.
func (s *Service) activeStore(ctx context.Context, id string) (*metadata.VectorStore, error) {
	vs, err := s.meta.GetVectorStore(ctx, id)
	if err != nil {
		return nil, err
	}
	if vs.Status == metadata.VectorStoreExpired {
		return nil, errdefs.Configuration("vector store %s has expired", id)
	}
	return vs, nil
}

func (s *Service) updateVectorStore(ctx context.Context, id string, mutate func(*metadata.VectorStore) error) (*metadata.VectorStore, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	vs, err := s.meta.GetVectorStore(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(vs); err != nil {
		return nil, err
	}
	if err := s.meta.UpdateVectorStore(ctx, vs); err != nil {
		return nil, err
	}
	return vs, nil
}

// touch records activity on the store; failures only cost expiry accuracy.
func (s *Service) touch(ctx context.Context, id string) {
	_, err := s.updateVectorStore(ctx, id, func(vs *metadata.VectorStore) error {
		vs.Touch(s.now())
		return nil
	})
	if err != nil {
		s.logger.Warn(ctx, "recording vector store activity failed", zap.Error(err))
	}
}

// refreshAggregates recomputes usage, file counts and status from the
// store's files, reading them under the store lock.
func (s *Service) refreshAggregates(ctx context.Context, id string) (*metadata.VectorStore, error) {
	return s.updateVectorStore(ctx, id, func(vs *metadata.VectorStore) error {
		counts, usage, err := s.meta.FileStats(ctx, id)
		if err != nil {
			return err
		}
		vs.FileCounts = counts
		vs.UsageBytes = usage
		if vs.Status != metadata.VectorStoreExpired {
			vs.Status = metadata.VectorStoreCompleted
			if counts.InProgress > 0 {
				vs.Status = metadata.VectorStoreInProgress
			}
		}
		return nil
	})
}
