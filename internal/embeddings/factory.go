package embeddings

import (
	"github.com/fyrsmithlabs/vectorstored/internal/config"
	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

// knownDimensions lists the local models and their output sizes.
var knownDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
}

// NewModel builds the configured embedding backend, wrapped in a query
// cache when QueryCacheSize is positive.
func NewModel(cfg config.EmbeddingsConfig, metrics *Metrics) (Model, error) {
	var (
		model Model
		err   error
	)
	remote := RemoteOptions{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Timeout:   cfg.Timeout.Duration(),
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
	}

	switch cfg.Provider {
	case "", "fastembed":
		model, err = NewFastEmbedModel(cfg.Model, cfg.CacheDir, 0)
		if err == nil && cfg.Dimension > 0 && cfg.Dimension != model.Dimension() {
			return nil, errdefs.Configuration("model %s produces %d dimensions, configured %d",
				cfg.Model, model.Dimension(), cfg.Dimension)
		}
	case "tei":
		model, err = NewTEIModel(cfg.Model, cfg.Dimension, remote)
	case "openai":
		model, err = NewOpenAIModel(cfg.Model, cfg.Dimension, remote)
	default:
		return nil, errdefs.Configuration("unknown embeddings provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.QueryCacheSize > 0 {
		model = NewCachedModel(model, cfg.QueryCacheSize, cfg.QueryCacheTTL.Duration(), metrics)
	}
	return model, nil
}
