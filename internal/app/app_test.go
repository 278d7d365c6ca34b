package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vectorstored/internal/app"
	"github.com/fyrsmithlabs/vectorstored/internal/config"
	"github.com/fyrsmithlabs/vectorstored/internal/embeddings/embeddingstest"
	"github.com/fyrsmithlabs/vectorstored/internal/logging"
	"github.com/fyrsmithlabs/vectorstored/internal/metadata"
	"github.com/fyrsmithlabs/vectorstored/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.ChunkStore.Backend = "sqlite"
	cfg.ChunkStore.DSN = filepath.Join(dir, "chunks.db")
	cfg.Metadata.DSN = filepath.Join(dir, "metadata.db")
	cfg.Storage.Root = filepath.Join(dir, "files")
	cfg.Ingest.Synchronous = true
	return cfg
}

func TestNew_EndToEnd(t *testing.T) {
	ctx := context.Background()
	a, err := app.New(ctx, testConfig(t),
		app.WithModel(embeddingstest.New(embeddingstest.DefaultDimension)),
		app.WithLogger(logging.Nop()))
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close(ctx)) }()

	vs, err := a.Service.CreateVectorStore(ctx, service.CreateVectorStoreRequest{Name: "docs"})
	require.NoError(t, err)

	f, err := a.Service.Ingest(ctx, vs.ID, service.Artifact{
		Filename: "notes.txt",
		Data:     []byte("Go is a programming language. It has goroutines. Channels connect them."),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, metadata.FileCompleted, f.Status)

	results, err := a.Service.Search(ctx, vs.ID, "goroutines", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Port = 0
	_, err := app.New(context.Background(), cfg, app.WithModel(embeddingstest.New(0)))
	assert.ErrorContains(t, err, "invalid config")
}

func TestNew_UnknownStorageBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = "ftp"
	_, err := app.New(context.Background(), cfg,
		app.WithModel(embeddingstest.New(0)),
		app.WithLogger(logging.Nop()))
	assert.ErrorContains(t, err, "unknown storage backend")
}
