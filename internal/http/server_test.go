package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vectorstored/internal/chunking"
	"github.com/fyrsmithlabs/vectorstored/internal/chunkstore"
	"github.com/fyrsmithlabs/vectorstored/internal/embeddings"
	"github.com/fyrsmithlabs/vectorstored/internal/embeddings/embeddingstest"
	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
	"github.com/fyrsmithlabs/vectorstored/internal/ingest"
	"github.com/fyrsmithlabs/vectorstored/internal/logging"
	"github.com/fyrsmithlabs/vectorstored/internal/metadata"
	"github.com/fyrsmithlabs/vectorstored/internal/search"
	"github.com/fyrsmithlabs/vectorstored/internal/service"
	"github.com/fyrsmithlabs/vectorstored/internal/storage"
)

const sixSentences = "The quick brown fox jumps. It lands softly on the grass. " +
	"A dog watches from the porch. The dog does not move. " +
	"Evening falls over the farm. Everyone goes inside."

func newTestService(t *testing.T, model *embeddingstest.Model) *service.Service {
	t.Helper()
	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	chunks := chunkstore.NewMemoryStore()
	meta := metadata.NewMemoryStore()
	provider := embeddings.NewProvider(model)
	orch := ingest.New(provider, chunking.New(), chunks, meta, ingest.Options{
		DefaultStrategy: chunking.DefaultStrategy(),
	}, nil)
	svc := service.New(service.Deps{
		Metadata:     meta,
		Chunks:       chunks,
		Blobs:        blobs,
		Embeddings:   provider,
		Search:       search.NewEngine(provider, chunks, search.Options{}, nil),
		Orchestrator: orch,
	}, service.Options{})
	t.Cleanup(svc.Close)
	return svc
}

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	server, err := NewServer(newTestService(t, embeddingstest.New(0)), logging.Nop(), nil)
	require.NoError(t, err)
	return server
}

// do sends body as JSON unless it is nil and decodes the response into out
// when out is non-nil.
func do(t *testing.T, server *Server, method, target string, body, out any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func upload(t *testing.T, server *Server, filename, content string) metadata.File {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("purpose", "assistants"))
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/files", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var f metadata.File
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	return f
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server := setupTestServer(t)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8000, server.config.Port)
		assert.Equal(t, 512, server.config.MaxUploadMB)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(newTestService(t, embeddingstest.New(0)), nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when service is nil", func(t *testing.T) {
		_, err := NewServer(nil, logging.Nop(), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "service cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	t.Run("starting then ok", func(t *testing.T) {
		server := setupTestServer(t)

		var h service.Health
		rec := do(t, server, http.MethodGet, "/health", nil, &h)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "starting", h.Status)

		do(t, server, http.MethodPost, "/v1/embeddings", map[string]any{"input": "warm"}, nil)
		rec = do(t, server, http.MethodGet, "/health", nil, &h)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", h.Status)
	})

	t.Run("model load failure", func(t *testing.T) {
		model := embeddingstest.New(0)
		model.LoadErr = assert.AnError
		server, err := NewServer(newTestService(t, model), logging.Nop(), nil)
		require.NoError(t, err)

		var body ErrorBody
		rec := do(t, server, http.MethodPost, "/v1/embeddings", map[string]any{"input": "warm"}, &body)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, errdefs.CodeModelLoad, body.Error.Code)

		var h service.Health
		rec = do(t, server, http.MethodGet, "/health", nil, &h)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "unhealthy", h.Status)
		assert.NotEmpty(t, h.Error)
	})
}

func TestVectorStoreFlow(t *testing.T) {
	server := setupTestServer(t)

	var vs metadata.VectorStore
	rec := do(t, server, http.MethodPost, "/v1/vector_stores", map[string]any{"name": "farm"}, &vs)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "farm", vs.Name)
	base := "/v1/vector_stores/" + vs.ID

	obj := upload(t, server, "farm.txt", sixSentences)
	assert.EqualValues(t, len(sixSentences), obj.Bytes)

	var file metadata.VectorStoreFile
	rec = do(t, server, http.MethodPost, base+"/files", CreateVectorStoreFileRequest{
		FileID:           obj.ID,
		ChunkingStrategy: &chunking.Strategy{Type: chunking.KindSentence, MaxChunkSize: 2},
	}, &file)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, metadata.FileCompleted, file.Status)
	assert.EqualValues(t, 9216, file.UsageBytes)

	rec = do(t, server, http.MethodGet, base, nil, &vs)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 9216, vs.UsageBytes)
	assert.Equal(t, 1, vs.FileCounts.Completed)

	var results SearchResponse
	rec = do(t, server, http.MethodPost, base+"/search", SearchRequest{Query: "A dog watches from the porch.", TopK: 2}, &results)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, results.Data, 2)
	assert.Equal(t, obj.ID, results.Data[0].FileID)

	var files ListResponse[metadata.VectorStoreFile]
	rec = do(t, server, http.MethodGet, base+"/files?filter=completed&limit=5", nil, &files)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, files.Data, 1)
	assert.Equal(t, obj.ID, files.FirstID)

	rec = do(t, server, http.MethodGet, base+"/files?filter=failed", nil, &files)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, files.Data)

	rec = do(t, server, http.MethodPost, base+"/files/"+obj.ID+"/cancel", nil, &file)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, metadata.FileCompleted, file.Status)

	var deleted DeletedResponse
	rec = do(t, server, http.MethodDelete, base+"/files/"+obj.ID, nil, &deleted)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, deleted.Deleted)

	rec = do(t, server, http.MethodPost, base+"/search", SearchRequest{Query: "dog"}, &results)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, results.Data)

	rec = do(t, server, http.MethodDelete, base, nil, &deleted)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "vector_store.deleted", deleted.Object)

	var body ErrorBody
	rec = do(t, server, http.MethodGet, base, nil, &body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errdefs.CodeNotFound, body.Error.Code)
}

func TestModifyAndListVectorStores(t *testing.T) {
	server := setupTestServer(t)

	for i := range 3 {
		do(t, server, http.MethodPost, "/v1/vector_stores", map[string]any{"name": fmt.Sprintf("store-%d", i)}, nil)
	}

	var page ListResponse[metadata.VectorStore]
	rec := do(t, server, http.MethodGet, "/v1/vector_stores?limit=2&order=asc", nil, &page)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, page.Data, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "store-0", page.Data[0].Name)

	rec = do(t, server, http.MethodGet, "/v1/vector_stores?limit=2&order=asc&after="+page.LastID, nil, &page)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, page.Data, 1)
	assert.False(t, page.HasMore)

	var vs metadata.VectorStore
	rec = do(t, server, http.MethodPost, "/v1/vector_stores/"+page.Data[0].ID, map[string]any{
		"name":          "renamed",
		"expires_after": map[string]any{"anchor": "last_active_at", "days": 3},
	}, &vs)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "renamed", vs.Name)
	assert.NotNil(t, vs.ExpiresAt)

	var body ErrorBody
	rec = do(t, server, http.MethodGet, "/v1/vector_stores?limit=0", nil, &body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errdefs.CodeConfiguration, body.Error.Code)

	rec = do(t, server, http.MethodGet, "/v1/vector_stores?limit=abc", nil, &body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorResponses(t *testing.T) {
	server := setupTestServer(t)

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/vector_stores", strings.NewReader("invalid json"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var body ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, errdefs.CodeConfiguration, body.Error.Code)
	})

	t.Run("unknown route", func(t *testing.T) {
		var body ErrorBody
		rec := do(t, server, http.MethodGet, "/v1/nothing", nil, &body)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, errdefs.CodeNotFound, body.Error.Code)
	})

	t.Run("missing file id", func(t *testing.T) {
		var vs metadata.VectorStore
		do(t, server, http.MethodPost, "/v1/vector_stores", map[string]any{"name": "x"}, &vs)
		var body ErrorBody
		rec := do(t, server, http.MethodPost, "/v1/vector_stores/"+vs.ID+"/files", map[string]any{}, &body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, body.Error.Message, "file_id")
	})

	t.Run("unsupported upload fails the file", func(t *testing.T) {
		var vs metadata.VectorStore
		do(t, server, http.MethodPost, "/v1/vector_stores", map[string]any{"name": "x"}, &vs)
		obj := upload(t, server, "old.xls", "binary")

		var file metadata.VectorStoreFile
		rec := do(t, server, http.MethodPost, "/v1/vector_stores/"+vs.ID+"/files", CreateVectorStoreFileRequest{FileID: obj.ID}, &file)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, metadata.FileFailed, file.Status)
		require.NotNil(t, file.LastError)
		assert.Equal(t, errdefs.CodeUnsupportedInput, file.LastError.Code)
	})

	t.Run("status mapping", func(t *testing.T) {
		tests := map[errdefs.Code]int{
			errdefs.CodeConfiguration:    http.StatusBadRequest,
			errdefs.CodeUnsupportedInput: http.StatusUnsupportedMediaType,
			errdefs.CodeNotFound:         http.StatusNotFound,
			errdefs.CodeConflict:         http.StatusConflict,
			errdefs.CodeModelLoad:        http.StatusServiceUnavailable,
			errdefs.CodeEmbedding:        http.StatusBadGateway,
			errdefs.CodePersistence:      http.StatusInternalServerError,
			errdefs.CodeInternal:         http.StatusInternalServerError,
		}
		for code, status := range tests {
			assert.Equal(t, status, statusOf(code), code)
		}
	})
}

func TestFilesEndpoints(t *testing.T) {
	server := setupTestServer(t)
	obj := upload(t, server, "notes.md", "# Notes\n\nBody.")
	assert.Equal(t, "notes.md", obj.Filename)
	assert.Equal(t, metadata.ObjectFile, obj.Object)

	var got metadata.File
	rec := do(t, server, http.MethodGet, "/v1/files/"+obj.ID, nil, &got)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, obj.ID, got.ID)

	rec = do(t, server, http.MethodGet, "/v1/files/"+obj.ID+"/content", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# Notes\n\nBody.", rec.Body.String())

	var page ListResponse[metadata.File]
	rec = do(t, server, http.MethodGet, "/v1/files?purpose=assistants", nil, &page)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, page.Data, 1)

	rec = do(t, server, http.MethodDelete, "/v1/files/"+obj.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, server, http.MethodGet, "/v1/files/"+obj.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/files", strings.NewReader(""))
	rec = httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEmbeddings(t *testing.T) {
	server := setupTestServer(t)

	var resp struct {
		Object string `json:"object"`
		Data   []struct {
			Index     int             `json:"index"`
			Embedding json.RawMessage `json:"embedding"`
		} `json:"data"`
		Usage service.EmbeddingUsage `json:"usage"`
	}
	rec := do(t, server, http.MethodPost, "/v1/embeddings", map[string]any{"input": "hello world"}, &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Data, 1)
	var floats []float32
	require.NoError(t, json.Unmarshal(resp.Data[0].Embedding, &floats))
	assert.Len(t, floats, embeddingstest.DefaultDimension)
	assert.Equal(t, 2, resp.Usage.PromptTokens)

	rec = do(t, server, http.MethodPost, "/v1/embeddings", map[string]any{
		"input":           []string{"hello world", "again"},
		"encoding_format": "base64",
	}, &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Data, 2)
	var encoded string
	require.NoError(t, json.Unmarshal(resp.Data[0].Embedding, &encoded))
	decoded, err := embeddings.DecodeBase64(encoded)
	require.NoError(t, err)
	assert.Equal(t, floats, decoded)

	var body ErrorBody
	rec = do(t, server, http.MethodPost, "/v1/embeddings", map[string]any{"input": 42}, &body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
