//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"path/filepath"

	fastembed "github.com/anush008/fastembed-go"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

// fastembedBatch is the ONNX batch size handed to fastembed.
const fastembedBatch = 256

var fastembedModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// FastEmbedModel runs a local ONNX model through fastembed-go. Weights are
// downloaded into CacheDir on first Load.
type FastEmbedModel struct {
	name      string
	cacheDir  string
	maxLength int
	dimension int

	model *fastembed.FlagEmbedding
}

// NewFastEmbedModel validates name against the supported models. Nothing
// is loaded until Load.
func NewFastEmbedModel(name, cacheDir string, maxLength int) (*FastEmbedModel, error) {
	if _, ok := fastembedModels[name]; !ok {
		return nil, errdefs.Wrap(errdefs.CodeModelLoad, errdefs.ErrModelLoad, "unsupported fastembed model %q", name)
	}
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}
	if maxLength <= 0 {
		maxLength = 512
	}
	return &FastEmbedModel{
		name:      name,
		cacheDir:  cacheDir,
		maxLength: maxLength,
		dimension: knownDimensions[name],
	}, nil
}

func (m *FastEmbedModel) Name() string   { return m.name }
func (m *FastEmbedModel) Dimension() int { return m.dimension }

// Load resolves and initialises the ONNX session.
func (m *FastEmbedModel) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", errdefs.ErrModelLoad, err)
	}
	showProgress := false
	fe, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                fastembedModels[m.name],
		CacheDir:             m.cacheDir,
		MaxLength:            m.maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return fmt.Errorf("%w: initializing fastembed %s: %v", errdefs.ErrModelLoad, m.name, err)
	}
	m.model = fe
	return nil
}

// Embed uses the passage prefix for documents and queries alike, so that a
// query identical to a stored chunk maps to the same vector.
func (m *FastEmbedModel) Embed(ctx context.Context, texts []string) (Result, error) {
	if m.model == nil {
		return Result{}, fmt.Errorf("%w: %s not loaded", errdefs.ErrModelLoad, m.name)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	vectors, err := m.model.PassageEmbed(texts, fastembedBatch)
	if err != nil {
		return Result{}, err
	}
	return Result{Vectors: vectors}, nil
}

func (m *FastEmbedModel) Close() error {
	if m.model == nil {
		return nil
	}
	err := m.model.Destroy()
	m.model = nil
	return err
}

var _ Model = (*FastEmbedModel)(nil)
