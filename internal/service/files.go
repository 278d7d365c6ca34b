package service

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorstored/internal/chunking"
	"github.com/fyrsmithlabs/vectorstored/internal/chunkstore"
	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
	"github.com/fyrsmithlabs/vectorstored/internal/loader"
	"github.com/fyrsmithlabs/vectorstored/internal/logging"
	"github.com/fyrsmithlabs/vectorstored/internal/metadata"
)

// Artifact is a document handed to Ingest directly, without a prior
// upload.
type Artifact struct {
	// FileID names the vector store file; one is generated when empty.
	FileID      string
	Filename    string
	ContentType string
	Data        []byte
}

// Ingest chunks, embeds and stores artifact in the vector store and
// waits for the outcome. The returned record is non-nil once the file
// has been recorded; the error is nil only when it completed.
func (s *Service) Ingest(ctx context.Context, vectorStoreID string, artifact Artifact, strategy *chunking.Strategy) (*metadata.VectorStoreFile, error) {
	if _, err := s.activeStore(ctx, vectorStoreID); err != nil {
		return nil, err
	}
	if artifact.FileID == "" {
		artifact.FileID = newID("file_")
	}
	ctx = logging.WithVectorStoreID(ctx, vectorStoreID)
	ctx = logging.WithFileID(ctx, artifact.FileID)

	f, err := s.orch.Begin(ctx, vectorStoreID, artifact.FileID, strategy)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, vectorStoreID)
	s.refresh(ctx, vectorStoreID)

	doc, err := loader.Open(artifact.Filename, artifact.ContentType, artifact.Data)
	if err != nil {
		f, err = s.orch.Fail(ctx, f, err)
	} else {
		f, err = s.orch.Run(ctx, f, doc)
	}
	s.refresh(ctx, vectorStoreID)
	return f, err
}

// AttachFile ingests an uploaded file into the vector store. Problems
// with the file's content are recorded on the returned file rather than
// returned as an error. With AsyncIngest the record is returned while
// still in progress.
func (s *Service) AttachFile(ctx context.Context, vectorStoreID, fileID string, strategy *chunking.Strategy) (*metadata.VectorStoreFile, error) {
	if _, err := s.activeStore(ctx, vectorStoreID); err != nil {
		return nil, err
	}
	obj, err := s.meta.GetObject(ctx, fileID)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithVectorStoreID(ctx, vectorStoreID)
	ctx = logging.WithFileID(ctx, fileID)

	f, err := s.orch.Begin(ctx, vectorStoreID, fileID, strategy)
	if err != nil {
		return nil, err
	}
	s.touch(ctx, vectorStoreID)
	s.refresh(ctx, vectorStoreID)

	if !s.opts.AsyncIngest {
		return s.runAttached(ctx, f, obj), nil
	}

	bgCtx := logging.WithFileID(logging.WithVectorStoreID(s.bgCtx, vectorStoreID), fileID)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.runAttached(bgCtx, f, obj)
	}()
	return f, nil
}

func (s *Service) runAttached(ctx context.Context, f *metadata.VectorStoreFile, obj *metadata.File) *metadata.VectorStoreFile {
	var err error
	doc, openErr := s.openObject(ctx, obj)
	if openErr != nil {
		f, err = s.orch.Fail(ctx, f, openErr)
	} else {
		f, err = s.orch.Run(ctx, f, doc)
	}
	if err != nil {
		s.logger.Debug(ctx, "attached file did not complete", zap.String("status", string(f.Status)), zap.Error(err))
	}
	s.refresh(ctx, f.VectorStoreID)
	return f
}

func (s *Service) openObject(ctx context.Context, obj *metadata.File) (loader.Document, error) {
	rc, err := s.blobs.Get(ctx, obj.StorageKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.CodePersistence, err, "reading file %s", obj.ID)
	}
	return loader.Open(obj.Filename, "", data)
}

// GetFile returns a vector store file.
func (s *Service) GetFile(ctx context.Context, vectorStoreID, fileID string) (*metadata.VectorStoreFile, error) {
	if _, err := s.meta.GetVectorStore(ctx, vectorStoreID); err != nil {
		return nil, err
	}
	return s.meta.GetFile(ctx, vectorStoreID, fileID)
}

// ListFiles pages a vector store's files. An empty status lists all.
func (s *Service) ListFiles(ctx context.Context, vectorStoreID string, params metadata.ListParams, status metadata.FileStatus) (metadata.Page[metadata.VectorStoreFile], error) {
	if status != "" && !status.Valid() {
		return metadata.Page[metadata.VectorStoreFile]{}, errdefs.Configuration("unknown file status %q", status)
	}
	if _, err := s.meta.GetVectorStore(ctx, vectorStoreID); err != nil {
		return metadata.Page[metadata.VectorStoreFile]{}, err
	}
	return s.meta.ListFiles(ctx, vectorStoreID, params, status)
}

// DeleteFile stops any running ingestion of the file, removes its chunks
// and then its record. The uploaded object is kept.
func (s *Service) DeleteFile(ctx context.Context, vectorStoreID, fileID string) error {
	if _, err := s.GetFile(ctx, vectorStoreID, fileID); err != nil {
		return err
	}
	ctx = logging.WithFileID(logging.WithVectorStoreID(ctx, vectorStoreID), fileID)
	if _, err := s.orch.Stop(ctx, vectorStoreID, fileID); err != nil {
		return err
	}
	if err := chunkstore.DeleteFileWithRetry(ctx, s.chunks, vectorStoreID, fileID, s.opts.DeleteRetries); err != nil {
		return err
	}
	if err := s.meta.DeleteFile(ctx, vectorStoreID, fileID); err != nil {
		return err
	}
	s.refresh(ctx, vectorStoreID)
	s.logger.Info(ctx, "vector store file deleted")
	return nil
}

// CancelFile cancels an in-progress ingestion and returns the resulting
// record. Files already in a terminal state are returned unchanged.
func (s *Service) CancelFile(ctx context.Context, vectorStoreID, fileID string) (*metadata.VectorStoreFile, error) {
	f, err := s.GetFile(ctx, vectorStoreID, fileID)
	if err != nil {
		return nil, err
	}
	if f.Status.Terminal() {
		return f, nil
	}
	ctx = logging.WithFileID(logging.WithVectorStoreID(ctx, vectorStoreID), fileID)

	stopped, err := s.orch.Stop(ctx, vectorStoreID, fileID)
	if err != nil {
		return nil, err
	}
	if !stopped {
		// No ingestion owns the record, e.g. after a restart.
		if err := chunkstore.DeleteFileWithRetry(ctx, s.chunks, vectorStoreID, fileID, s.opts.DeleteRetries); err != nil {
			return nil, err
		}
		f.Status = metadata.FileCancelled
		f.UsageBytes = 0
		f.LastError = nil
		if err := s.meta.PutFile(ctx, f); err != nil {
			return nil, err
		}
		s.logger.Info(ctx, "orphaned ingestion marked cancelled")
	}
	s.refresh(ctx, vectorStoreID)
	return s.meta.GetFile(ctx, vectorStoreID, fileID)
}

// refresh recomputes aggregates and logs failures.
func (s *Service) refresh(ctx context.Context, vectorStoreID string) {
	if _, err := s.refreshAggregates(ctx, vectorStoreID); err != nil && errdefs.CodeOf(err) != errdefs.CodeNotFound {
		s.logger.Warn(ctx, "refreshing vector store aggregates failed", zap.Error(err))
	}
}
