package service

import (
	"context"

	"github.com/fyrsmithlabs/vectorstored/internal/embeddings"
	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

// Encoding formats of embedding vectors.
const (
	EncodingFloat  = "float"
	EncodingBase64 = "base64"
)

// EmbeddingRequest asks for embeddings of one or more inputs.
type EmbeddingRequest struct {
	Input          []string
	Model          string
	EncodingFormat string
}

// Embedding is one vector, either []float32 or a base64 string.
type Embedding struct {
	Object    string `json:"object"`
	Index     int    `json:"index"`
	Embedding any    `json:"embedding"`
}

// EmbeddingUsage counts consumed tokens.
type EmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// EmbeddingResponse lists embeddings in input order.
type EmbeddingResponse struct {
	Object string         `json:"object"`
	Data   []Embedding    `json:"data"`
	Model  string         `json:"model"`
	Usage  EmbeddingUsage `json:"usage"`
}

// Embed computes embeddings with the configured model. A requested model
// other than the loaded one is rejected.
func (s *Service) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	if len(req.Input) == 0 {
		return nil, errdefs.Configuration("input must not be empty")
	}
	for i, in := range req.Input {
		if in == "" {
			return nil, errdefs.Configuration("input[%d] must not be empty", i)
		}
	}
	model := s.provider.ModelName()
	if req.Model != "" && req.Model != model {
		return nil, errdefs.Configuration("model %q is not served, use %q", req.Model, model)
	}
	switch req.EncodingFormat {
	case "":
		req.EncodingFormat = EncodingFloat
	case EncodingFloat, EncodingBase64:
	default:
		return nil, errdefs.Configuration("encoding_format must be float or base64, got %q", req.EncodingFormat)
	}

	vectors, tokens, err := s.provider.EmbedText(ctx, req.Input)
	if err != nil {
		return nil, err
	}
	resp := &EmbeddingResponse{
		Object: "list",
		Data:   make([]Embedding, len(vectors)),
		Model:  model,
		Usage:  EmbeddingUsage{PromptTokens: tokens, TotalTokens: tokens},
	}
	for i, v := range vectors {
		var out any = v
		if req.EncodingFormat == EncodingBase64 {
			out = embeddings.EncodeBase64(v)
		}
		resp.Data[i] = Embedding{Object: "embedding", Index: i, Embedding: out}
	}
	return resp, nil
}
