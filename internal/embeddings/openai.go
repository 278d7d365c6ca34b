package embeddings

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

// OpenAIModel calls an OpenAI-compatible /embeddings endpoint. Servers
// hosting multimodal models accept image data URLs as inputs.
type OpenAIModel struct {
	name      string
	dimension int
	client    *remoteClient
}

type openAIRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
	} `json:"usage"`
}

// NewOpenAIModel creates a model for an OpenAI-compatible server.
func NewOpenAIModel(name string, dimension int, opts RemoteOptions) (*OpenAIModel, error) {
	if name == "" {
		return nil, errdefs.Configuration("openai: model name required")
	}
	if dimension <= 0 {
		return nil, errdefs.Configuration("openai: dimension must be positive, got %d", dimension)
	}
	client, err := newRemoteClient("openai", opts)
	if err != nil {
		return nil, err
	}
	return &OpenAIModel{name: name, dimension: dimension, client: client}, nil
}

func (m *OpenAIModel) Name() string   { return m.name }
func (m *OpenAIModel) Dimension() int { return m.dimension }

// Load probes the endpoint once.
func (m *OpenAIModel) Load(ctx context.Context) error {
	res, err := m.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("%w: openai probe: %v", errdefs.ErrModelLoad, err)
	}
	if len(res.Vectors) != 1 || len(res.Vectors[0]) != m.dimension {
		return fmt.Errorf("%w: %w: configured %d", errdefs.ErrModelLoad, ErrDimensionMismatch, m.dimension)
	}
	return nil
}

func (m *OpenAIModel) Embed(ctx context.Context, texts []string) (Result, error) {
	return m.embed(ctx, texts)
}

// EmbedImages sends each image as a base64 data URL.
func (m *OpenAIModel) EmbedImages(ctx context.Context, images []Image) (Result, error) {
	inputs := make([]string, len(images))
	for i, img := range images {
		inputs[i] = img.DataURL()
	}
	return m.embed(ctx, inputs)
}

func (m *OpenAIModel) embed(ctx context.Context, inputs []string) (Result, error) {
	var resp openAIResponse
	if err := m.client.postJSON(ctx, "/embeddings", openAIRequest{Model: m.name, Input: inputs}, &resp); err != nil {
		return Result{}, err
	}
	vectors := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return Result{}, fmt.Errorf("response index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return Result{}, fmt.Errorf("response missing embedding %d", i)
		}
	}
	return Result{Vectors: vectors, Tokens: resp.Usage.PromptTokens}, nil
}

func (m *OpenAIModel) Close() error { return nil }

var (
	_ Model      = (*OpenAIModel)(nil)
	_ ImageModel = (*OpenAIModel)(nil)
)
