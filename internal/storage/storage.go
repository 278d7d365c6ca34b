// Package storage holds uploaded file blobs in object storage.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

// Object describes a stored blob.
type Object struct {
	Key      string
	Size     int64
	Modified time.Time
}

// Store is a flat key/blob namespace. Keys use forward slashes.
type Store interface {
	// Put writes r under key, replacing any existing blob.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// Get opens the blob under key. The caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. Unknown keys return a not-found error.
	Delete(ctx context.Context, key string) error
	// List returns the objects whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Object, error)
}

// Key builds the storage key of an uploaded file.
func Key(fileID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = "blob"
	}
	return fileID + "/" + name
}

// cleanKey rejects keys that escape the namespace.
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", errdefs.Configuration("storage key is required")
	}
	if strings.Contains(key, "\\") {
		return "", errdefs.Configuration("invalid storage key %q", key)
	}
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != strings.TrimPrefix(key, "/") {
		return "", errdefs.Configuration("invalid storage key %q", key)
	}
	return clean, nil
}
