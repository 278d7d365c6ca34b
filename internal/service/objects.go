package service

import (
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
	"github.com/fyrsmithlabs/vectorstored/internal/metadata"
	"github.com/fyrsmithlabs/vectorstored/internal/storage"
)

// DefaultPurpose is recorded for uploads that name none.
const DefaultPurpose = "assistants"

// UploadRequest is a blob to store as a file object.
type UploadRequest struct {
	Filename string
	Purpose  string
	Body     io.Reader
	// Size is the body length, or -1 when unknown.
	Size int64
}

// countingReader tallies bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Upload stores the blob under {id}/{filename} and records the file
// object. The blob is removed again when the record cannot be written.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*metadata.File, error) {
	if strings.TrimSpace(req.Filename) == "" {
		return nil, errdefs.Configuration("filename is required")
	}
	if req.Body == nil {
		return nil, errdefs.Configuration("file content is required")
	}
	if req.Purpose == "" {
		req.Purpose = DefaultPurpose
	}

	f := &metadata.File{
		ID:        newID("file_"),
		Object:    metadata.ObjectFile,
		Filename:  req.Filename,
		Purpose:   req.Purpose,
		CreatedAt: s.now(),
	}
	f.StorageKey = storage.Key(f.ID, f.Filename)

	body := &countingReader{r: req.Body}
	if err := s.blobs.Put(ctx, f.StorageKey, body, req.Size); err != nil {
		return nil, err
	}
	f.Bytes = body.n

	if err := s.meta.CreateObject(ctx, f); err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), f.StorageKey); derr != nil {
			s.logger.Warn(ctx, "removing orphaned upload failed", zap.String("key", f.StorageKey), zap.Error(derr))
		}
		return nil, err
	}
	s.logger.Info(ctx, "file uploaded",
		zap.String("file_id", f.ID),
		zap.String("filename", f.Filename),
		zap.Int64("bytes", f.Bytes))
	return f, nil
}

// GetObject returns an uploaded file's record.
func (s *Service) GetObject(ctx context.Context, id string) (*metadata.File, error) {
	return s.meta.GetObject(ctx, id)
}

// ListObjects pages uploaded files, optionally filtered by purpose.
func (s *Service) ListObjects(ctx context.Context, params metadata.ListParams, purpose string) (metadata.Page[metadata.File], error) {
	return s.meta.ListObjects(ctx, params, purpose)
}

// Content opens an uploaded file's blob. The caller closes it.
func (s *Service) Content(ctx context.Context, id string) (io.ReadCloser, *metadata.File, error) {
	f, err := s.meta.GetObject(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Get(ctx, f.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return rc, f, nil
}

// DeleteObject removes an uploaded file's blob and record. Vector store
// files ingested from it keep their chunks.
func (s *Service) DeleteObject(ctx context.Context, id string) error {
	f, err := s.meta.GetObject(ctx, id)
	if err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, f.StorageKey); err != nil {
		if !errdefs.IsNotFound(err) {
			return err
		}
		s.logger.Warn(ctx, "blob already missing", zap.String("file_id", id), zap.String("key", f.StorageKey))
	}
	if err := s.meta.DeleteObject(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "file deleted", zap.String("file_id", id))
	return nil
}
