package metadata_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vectorstored/internal/chunking"
	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
	"github.com/fyrsmithlabs/vectorstored/internal/metadata"
)

func backends(t *testing.T) map[string]func(t *testing.T) metadata.Store {
	return map[string]func(t *testing.T) metadata.Store{
		"memory": func(*testing.T) metadata.Store { return metadata.NewMemoryStore() },
		"sqlite": func(t *testing.T) metadata.Store {
			s, err := metadata.NewSQLStore(context.Background(), "sqlite", filepath.Join(t.TempDir(), "meta.db"))
			require.NoError(t, err)
			return s
		},
	}
}

var epoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newVectorStore(id string, offset time.Duration) *metadata.VectorStore {
	return &metadata.VectorStore{
		ID:         id,
		Object:     metadata.ObjectVectorStore,
		Name:       "store " + id,
		Status:     metadata.VectorStoreCompleted,
		Metadata:   map[string]string{"team": "search"},
		CreatedAt:  epoch.Add(offset),
		FileCounts: metadata.FileCounts{},
	}
}

func TestStores(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("vector stores", func(t *testing.T) { testVectorStores(t, open(t)) })
			t.Run("files", func(t *testing.T) { testFiles(t, open(t)) })
			t.Run("objects", func(t *testing.T) { testObjects(t, open(t)) })
			t.Run("expirable", func(t *testing.T) { testExpirable(t, open(t)) })
		})
	}
}

func testVectorStores(t *testing.T, s metadata.Store) {
	ctx := context.Background()
	defer s.Close()

	for i, id := range []string{"vs_a", "vs_b", "vs_c"} {
		require.NoError(t, s.CreateVectorStore(ctx, newVectorStore(id, time.Duration(i)*time.Second)))
	}

	got, err := s.GetVectorStore(ctx, "vs_b")
	require.NoError(t, err)
	assert.Equal(t, "store vs_b", got.Name)
	assert.Equal(t, map[string]string{"team": "search"}, got.Metadata)
	assert.True(t, epoch.Add(time.Second).Equal(got.CreatedAt))
	assert.Nil(t, got.ExpiresAfter)

	got.Name = "renamed"
	got.UsageBytes = 3072
	got.ExpiresAfter = &metadata.ExpiresAfter{Anchor: metadata.AnchorLastActiveAt, Days: 3}
	got.Touch(epoch.Add(time.Hour))
	require.NoError(t, s.UpdateVectorStore(ctx, got))

	got, err = s.GetVectorStore(ctx, "vs_b")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.EqualValues(t, 3072, got.UsageBytes)
	require.NotNil(t, got.ExpiresAfter)
	assert.Equal(t, 3, got.ExpiresAfter.Days)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, epoch.Add(time.Hour+72*time.Hour).Equal(*got.ExpiresAt))

	page, err := s.ListVectorStores(ctx, metadata.ListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "vs_c", page.FirstID)
	assert.Equal(t, "vs_b", page.LastID)
	assert.True(t, page.HasMore)

	page, err = s.ListVectorStores(ctx, metadata.ListParams{Limit: 2, After: page.LastID})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "vs_a", page.Data[0].ID)
	assert.False(t, page.HasMore)

	page, err = s.ListVectorStores(ctx, metadata.ListParams{Limit: 1, Order: metadata.OrderAsc, Before: "vs_c"})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "vs_b", page.Data[0].ID)
	assert.True(t, page.HasMore)

	_, err = s.ListVectorStores(ctx, metadata.ListParams{After: "vs_missing"})
	assert.Equal(t, errdefs.CodeConfiguration, errdefs.CodeOf(err))

	require.NoError(t, s.DeleteVectorStore(ctx, "vs_b"))
	_, err = s.GetVectorStore(ctx, "vs_b")
	assert.True(t, errdefs.IsNotFound(err))
	assert.True(t, errdefs.IsNotFound(s.DeleteVectorStore(ctx, "vs_b")))
	assert.True(t, errdefs.IsNotFound(s.UpdateVectorStore(ctx, newVectorStore("vs_b", 0))))
}

func testFiles(t *testing.T, s metadata.Store) {
	ctx := context.Background()
	defer s.Close()

	require.NoError(t, s.CreateVectorStore(ctx, newVectorStore("vs_1", 0)))

	missing := &metadata.VectorStoreFile{ID: "file_x", VectorStoreID: "vs_none", Status: metadata.FileInProgress, CreatedAt: epoch}
	assert.True(t, errdefs.IsNotFound(s.PutFile(ctx, missing)))

	statuses := []metadata.FileStatus{metadata.FileCompleted, metadata.FileCompleted, metadata.FileFailed, metadata.FileInProgress}
	for i, st := range statuses {
		f := &metadata.VectorStoreFile{
			ID:               "file_" + string(rune('a'+i)),
			Object:           metadata.ObjectVectorStoreFile,
			VectorStoreID:    "vs_1",
			UsageBytes:       int64(1000 * (i + 1)),
			Status:           st,
			ChunkingStrategy: chunking.DefaultStrategy(),
			CreatedAt:        epoch.Add(time.Duration(i) * time.Second),
		}
		if st == metadata.FileFailed {
			f.LastError = &metadata.LastError{Code: errdefs.CodeUnsupportedInput, Message: "legacy .doc"}
		}
		require.NoError(t, s.PutFile(ctx, f))
	}

	f, err := s.GetFile(ctx, "vs_1", "file_c")
	require.NoError(t, err)
	assert.Equal(t, metadata.FileFailed, f.Status)
	require.NotNil(t, f.LastError)
	assert.Equal(t, errdefs.CodeUnsupportedInput, f.LastError.Code)
	assert.Equal(t, chunking.DefaultStrategy(), f.ChunkingStrategy)

	// Upsert replaces the record.
	f.Status = metadata.FileCompleted
	f.LastError = nil
	require.NoError(t, s.PutFile(ctx, f))
	f, err = s.GetFile(ctx, "vs_1", "file_c")
	require.NoError(t, err)
	assert.Equal(t, metadata.FileCompleted, f.Status)
	assert.Nil(t, f.LastError)

	counts, usage, err := s.FileStats(ctx, "vs_1")
	require.NoError(t, err)
	assert.Equal(t, metadata.FileCounts{Completed: 3, InProgress: 1, Total: 4}, counts)
	assert.EqualValues(t, 10000, usage)

	page, err := s.ListFiles(ctx, "vs_1", metadata.ListParams{Order: metadata.OrderAsc}, metadata.FileCompleted)
	require.NoError(t, err)
	require.Len(t, page.Data, 3)
	assert.Equal(t, "file_a", page.FirstID)
	assert.Equal(t, "file_c", page.LastID)

	require.NoError(t, s.DeleteFile(ctx, "vs_1", "file_a"))
	assert.True(t, errdefs.IsNotFound(s.DeleteFile(ctx, "vs_1", "file_a")))

	require.NoError(t, s.DeleteVectorStore(ctx, "vs_1"))
	_, err = s.GetFile(ctx, "vs_1", "file_b")
	assert.True(t, errdefs.IsNotFound(err))
}

func testObjects(t *testing.T, s metadata.Store) {
	ctx := context.Background()
	defer s.Close()

	for i, purpose := range []string{"assistants", "batch", "assistants"} {
		require.NoError(t, s.CreateObject(ctx, &metadata.File{
			ID:         "file_" + string(rune('0'+i)),
			Object:     metadata.ObjectFile,
			Bytes:      int64(10 * (i + 1)),
			Filename:   "doc.txt",
			Purpose:    purpose,
			StorageKey: "files/file_" + string(rune('0'+i)),
			CreatedAt:  epoch.Add(time.Duration(i) * time.Second),
		}))
	}
	assert.Error(t, s.CreateObject(ctx, &metadata.File{ID: "file_0", CreatedAt: epoch}))

	f, err := s.GetObject(ctx, "file_1")
	require.NoError(t, err)
	assert.Equal(t, "batch", f.Purpose)
	assert.Equal(t, "files/file_1", f.StorageKey)

	page, err := s.ListObjects(ctx, metadata.ListParams{}, "assistants")
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "file_2", page.Data[0].ID)

	require.NoError(t, s.DeleteObject(ctx, "file_1"))
	_, err = s.GetObject(ctx, "file_1")
	assert.True(t, errdefs.IsNotFound(err))
}

func testExpirable(t *testing.T, s metadata.Store) {
	ctx := context.Background()
	defer s.Close()

	stale := newVectorStore("vs_stale", 0)
	stale.ExpiresAfter = &metadata.ExpiresAfter{Anchor: metadata.AnchorLastActiveAt, Days: 1}
	stale.Touch(epoch)
	fresh := newVectorStore("vs_fresh", time.Second)
	fresh.ExpiresAfter = &metadata.ExpiresAfter{Anchor: metadata.AnchorLastActiveAt, Days: 30}
	fresh.Touch(epoch)
	forever := newVectorStore("vs_forever", 2*time.Second)

	for _, vs := range []*metadata.VectorStore{stale, fresh, forever} {
		require.NoError(t, s.CreateVectorStore(ctx, vs))
	}

	due, err := s.ListExpirable(ctx, epoch.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "vs_stale", due[0].ID)

	due[0].Status = metadata.VectorStoreExpired
	require.NoError(t, s.UpdateVectorStore(ctx, &due[0]))
	due, err = s.ListExpirable(ctx, epoch.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
}
