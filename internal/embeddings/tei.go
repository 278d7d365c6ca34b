package embeddings

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

// TEIModel calls a HuggingFace text-embeddings-inference server.
type TEIModel struct {
	name      string
	dimension int
	client    *remoteClient
}

type teiRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// NewTEIModel creates a TEI-backed model. dimension must match the model
// the server hosts; Load verifies it.
func NewTEIModel(name string, dimension int, opts RemoteOptions) (*TEIModel, error) {
	if dimension <= 0 {
		return nil, errdefs.Configuration("tei: dimension must be positive, got %d", dimension)
	}
	client, err := newRemoteClient("tei", opts)
	if err != nil {
		return nil, err
	}
	return &TEIModel{name: name, dimension: dimension, client: client}, nil
}

func (m *TEIModel) Name() string   { return m.name }
func (m *TEIModel) Dimension() int { return m.dimension }

// Load probes the server with a one-word input and checks the dimension.
func (m *TEIModel) Load(ctx context.Context) error {
	res, err := m.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("%w: tei probe: %v", errdefs.ErrModelLoad, err)
	}
	if len(res.Vectors) != 1 || len(res.Vectors[0]) != m.dimension {
		got := 0
		if len(res.Vectors) > 0 {
			got = len(res.Vectors[0])
		}
		return fmt.Errorf("%w: %w: server returned %d, configured %d", errdefs.ErrModelLoad, ErrDimensionMismatch, got, m.dimension)
	}
	return nil
}

// Embed posts texts to /embed. TEI does not report token usage.
func (m *TEIModel) Embed(ctx context.Context, texts []string) (Result, error) {
	var vectors [][]float32
	if err := m.client.postJSON(ctx, "/embed", teiRequest{Inputs: texts, Truncate: true}, &vectors); err != nil {
		return Result{}, err
	}
	return Result{Vectors: vectors}, nil
}

func (m *TEIModel) Close() error { return nil }

var _ Model = (*TEIModel)(nil)
