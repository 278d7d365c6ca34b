//go:build !cgo

package embeddings

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

// FastEmbedModel is unavailable without cgo. Load always fails with a
// model load error so the process reports unhealthy instead of crashing.
type FastEmbedModel struct {
	name      string
	dimension int
}

// NewFastEmbedModel returns a model whose Load fails.
func NewFastEmbedModel(name, _ string, _ int) (*FastEmbedModel, error) {
	dim, ok := knownDimensions[name]
	if !ok {
		return nil, errdefs.Wrap(errdefs.CodeModelLoad, errdefs.ErrModelLoad, "unsupported fastembed model %q", name)
	}
	return &FastEmbedModel{name: name, dimension: dim}, nil
}

func (m *FastEmbedModel) Name() string   { return m.name }
func (m *FastEmbedModel) Dimension() int { return m.dimension }

func (m *FastEmbedModel) Load(context.Context) error {
	return fmt.Errorf("%w: fastembed requires a cgo build, use the tei or openai provider", errdefs.ErrModelLoad)
}

func (m *FastEmbedModel) Embed(context.Context, []string) (Result, error) {
	return Result{}, fmt.Errorf("%w: fastembed not available", errdefs.ErrModelLoad)
}

func (m *FastEmbedModel) Close() error { return nil }

var _ Model = (*FastEmbedModel)(nil)
