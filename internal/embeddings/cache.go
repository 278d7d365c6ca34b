package embeddings

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

// CachedModel memoises text embeddings by exact input. Repeated search
// queries skip inference entirely. Image inputs are never cached.
type CachedModel struct {
	inner   Model
	cache   *expirable.LRU[string, []float32]
	metrics *Metrics
}

// NewCachedModel wraps inner with an LRU of size entries that expire
// after ttl (0 means never).
func NewCachedModel(inner Model, size int, ttl time.Duration, metrics *Metrics) *CachedModel {
	return &CachedModel{
		inner:   inner,
		cache:   expirable.NewLRU[string, []float32](size, nil, ttl),
		metrics: metrics,
	}
}

func (c *CachedModel) Name() string                   { return c.inner.Name() }
func (c *CachedModel) Dimension() int                 { return c.inner.Dimension() }
func (c *CachedModel) Load(ctx context.Context) error { return c.inner.Load(ctx) }

// Embed serves hits from the cache and sends only the misses to the inner
// model, preserving input order. Token usage covers the misses only.
func (c *CachedModel) Embed(ctx context.Context, texts []string) (Result, error) {
	vectors := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			vectors[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	c.metrics.RecordCacheLookups(ctx, c.inner.Name(), len(texts)-len(missIdx), len(missIdx))

	if len(missTexts) == 0 {
		return Result{Vectors: vectors}, nil
	}
	res, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return Result{}, err
	}
	if len(res.Vectors) != len(missTexts) {
		return res, nil // let the provider reject the count mismatch
	}
	for j, i := range missIdx {
		vectors[i] = res.Vectors[j]
		c.cache.Add(missTexts[j], res.Vectors[j])
	}
	return Result{Vectors: vectors, Tokens: res.Tokens}, nil
}

// EmbedImages delegates to the inner model when it supports images.
func (c *CachedModel) EmbedImages(ctx context.Context, images []Image) (Result, error) {
	im, ok := c.inner.(ImageModel)
	if !ok {
		return Result{}, errdefs.Unsupported("model %s does not embed images", c.inner.Name())
	}
	return im.EmbedImages(ctx, images)
}

// SupportsImages reports whether the wrapped model embeds images.
func (c *CachedModel) SupportsImages() bool {
	_, ok := imageModel(c.inner)
	return ok
}

// Len reports the number of cached entries.
func (c *CachedModel) Len() int { return c.cache.Len() }

func (c *CachedModel) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}
