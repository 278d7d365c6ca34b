package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

// LocalStore keeps blobs as files under a root directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates root if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errdefs.Configuration("local storage root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, errdefs.Wrap(errdefs.CodePersistence, err, "creating storage root")
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Put writes through a temporary file so readers never see a partial blob.
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return errdefs.Wrap(errdefs.CodePersistence, err, "storing %s", key)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return errdefs.Wrap(errdefs.CodePersistence, err, "storing %s", key)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return errdefs.Wrap(errdefs.CodePersistence, err, "storing %s", key)
	}
	if err := tmp.Close(); err != nil {
		return errdefs.Wrap(errdefs.CodePersistence, err, "storing %s", key)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return errdefs.Wrap(errdefs.CodePersistence, err, "storing %s", key)
	}
	return nil
}

func (s *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errdefs.NotFound("object %s not found", key)
	}
	if err != nil {
		return nil, errdefs.Wrap(errdefs.CodePersistence, err, "opening %s", key)
	}
	return f, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return errdefs.NotFound("object %s not found", key)
	}
	if err != nil {
		return errdefs.Wrap(errdefs.CodePersistence, err, "deleting %s", key)
	}
	// Drop the per-file directory once empty.
	if dir := filepath.Dir(p); dir != filepath.Clean(s.root) {
		_ = os.Remove(dir)
	}
	return nil
}

func (s *LocalStore) List(_ context.Context, prefix string) ([]Object, error) {
	var out []Object
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, Object{Key: key, Size: info.Size(), Modified: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, errdefs.Wrap(errdefs.CodePersistence, err, "listing %q", prefix)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

var _ Store = (*LocalStore)(nil)
