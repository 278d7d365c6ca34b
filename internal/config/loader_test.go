package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vectorstored/internal/chunking"
)

func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "fastembed", cfg.Embeddings.Provider)
	assert.Equal(t, 768, cfg.Embeddings.Dimension)
	assert.Equal(t, "chromem", cfg.ChunkStore.Backend)
	assert.Equal(t, "sqlite", cfg.Metadata.Backend)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, chunking.DefaultStrategy(), cfg.Ingest.DefaultStrategy)
	assert.False(t, cfg.Ingest.KeepPartialChunks)
	assert.Equal(t, 10, cfg.Search.DefaultTopK)
}

func TestLoadWithFile_YAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 9191
  shutdown_timeout: 3s
embeddings:
  provider: tei
  base_url: http://tei:8080
  api_key: s3cr3t
chunkstore:
  backend: qdrant
  qdrant:
    host: qdrant.internal
ingest:
  default_strategy:
    type: static
    max_chunk_size: 400
    chunk_overlap: 100
`, 0o600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "tei", cfg.Embeddings.Provider)
	assert.Equal(t, "s3cr3t", cfg.Embeddings.APIKey.Value())
	assert.Equal(t, "qdrant.internal", cfg.ChunkStore.Qdrant.Host)
	assert.Equal(t, 6334, cfg.ChunkStore.Qdrant.Port)
	assert.Equal(t, chunking.Strategy{Type: chunking.KindStatic, MaxChunkSize: 400, ChunkOverlap: 100},
		cfg.Ingest.DefaultStrategy)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  http_port: 9191\n", 0o600)

	t.Setenv("VECTORSTORED_SERVER__HTTP_PORT", "7070")
	t.Setenv("VECTORSTORED_CHUNKSTORE__QDRANT__COLLECTION", "docs")
	t.Setenv("VECTORSTORED_SEARCH__MAX_TOP_K", "20")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "docs", cfg.ChunkStore.Qdrant.Collection)
	assert.Equal(t, 20, cfg.Search.MaxTopK)
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.Server.Port)
}

func TestLoadWithFile_Rejections(t *testing.T) {
	t.Run("world writable", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("permission model differs")
		}
		path := writeConfig(t, "server:\n  http_port: 9191\n", 0o666)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insecure config file permissions")
	})

	t.Run("too large", func(t *testing.T) {
		path := writeConfig(t, "# "+strings.Repeat("x", maxConfigFileSize)+"\n", 0o600)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})

	t.Run("invalid strategy", func(t *testing.T) {
		path := writeConfig(t, `
ingest:
  default_strategy:
    type: sentence
    max_chunk_size: 2
    chunk_overlap: 2
`, 0o600)
		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "default_strategy")
	})

	t.Run("remote embeddings without url", func(t *testing.T) {
		t.Setenv("VECTORSTORED_EMBEDDINGS__PROVIDER", "openai")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "base_url")
	})
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "server.http_port", envKey("VECTORSTORED_SERVER__HTTP_PORT"))
	assert.Equal(t, "storage.s3.secret_access_key", envKey("VECTORSTORED_STORAGE__S3__SECRET_ACCESS_KEY"))
}
