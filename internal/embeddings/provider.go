package embeddings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/vectorstored/internal/chunking"
	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
	"github.com/fyrsmithlabs/vectorstored/internal/logging"
)

const (
	defaultBatchSize         = 32
	defaultDecodeConcurrency = 4
)

// Provider is the engine's single entry point for embeddings. It is safe
// for concurrent use: image decoding runs in parallel, model calls run one
// at a time.
type Provider struct {
	model             Model
	logger            *logging.Logger
	metrics           *Metrics
	batchSize         int
	decodeConcurrency int

	once    sync.Once
	loadErr error
	ready   atomic.Bool

	// mu serialises model inference.
	mu sync.Mutex
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(l *logging.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *Metrics) ProviderOption {
	return func(p *Provider) { p.metrics = m }
}

// WithBatchSize caps the inputs sent per model call.
func WithBatchSize(n int) ProviderOption {
	return func(p *Provider) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithDecodeConcurrency bounds parallel image decoding.
func WithDecodeConcurrency(n int) ProviderOption {
	return func(p *Provider) {
		if n > 0 {
			p.decodeConcurrency = n
		}
	}
}

// NewProvider wraps model. The model is not loaded until WarmUp.
func NewProvider(model Model, opts ...ProviderOption) *Provider {
	p := &Provider{
		model:             model,
		logger:            logging.Nop(),
		batchSize:         defaultBatchSize,
		decodeConcurrency: defaultDecodeConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(p.logger.Underlying())
	}
	return p
}

// WarmUp loads the model exactly once per Provider. Every call, including
// concurrent ones, returns the outcome of that single load. A failure is
// a ModelLoadError and is never retried. The load is detached from ctx
// cancellation, since its outcome is shared by every later caller.
func (p *Provider) WarmUp(ctx context.Context) error {
	p.once.Do(func() {
		ctx := context.WithoutCancel(ctx)
		start := time.Now()
		if err := p.model.Load(ctx); err != nil {
			if !errors.Is(err, errdefs.ErrModelLoad) {
				err = fmt.Errorf("%w: %s: %v", errdefs.ErrModelLoad, p.model.Name(), err)
			}
			p.loadErr = err
			p.logger.Error(ctx, "embedding model failed to load",
				zap.String("model", p.model.Name()), zap.Error(err))
			return
		}
		p.ready.Store(true)
		p.logger.Info(ctx, "embedding model loaded",
			zap.String("model", p.model.Name()),
			zap.Int("dimension", p.model.Dimension()),
			zap.Duration("duration", time.Since(start)))
	})
	return p.loadErr
}

// Ready reports whether WarmUp completed successfully.
func (p *Provider) Ready() bool {
	return p.ready.Load()
}

// LoadError returns the WarmUp failure, if any.
func (p *Provider) LoadError() error {
	if p.ready.Load() {
		return nil
	}
	return p.loadErr
}

// Dimension is the length of every vector the provider returns.
func (p *Provider) Dimension() int {
	return p.model.Dimension()
}

// ModelName identifies the wrapped model.
func (p *Provider) ModelName() string {
	return p.model.Name()
}

// SupportsImages reports whether the model can embed images.
func (p *Provider) SupportsImages() bool {
	_, ok := imageModel(p.model)
	return ok
}

// imageModel returns m as an ImageModel when it can actually embed images.
// Wrappers report the capability of what they wrap.
func imageModel(m Model) (ImageModel, bool) {
	im, ok := m.(ImageModel)
	if !ok {
		return nil, false
	}
	if w, ok := m.(interface{ SupportsImages() bool }); ok && !w.SupportsImages() {
		return nil, false
	}
	return im, true
}

// EmbedText embeds texts in order and returns the number of tokens
// consumed. Tokens are estimated when the model does not report them.
func (p *Provider) EmbedText(ctx context.Context, texts []string) (vectors [][]float32, tokens int, err error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "embeddings.EmbedText")
	defer span.End()
	span.SetAttributes(
		attribute.String("embedding.model", p.model.Name()),
		attribute.Int("embedding.inputs", len(texts)),
	)

	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model.Name(), "embed_text", time.Since(start), len(texts), tokens, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if len(texts) == 0 {
		return nil, 0, errdefs.Wrap(errdefs.CodeConfiguration, ErrEmptyInput, "embed text")
	}
	if err := p.WarmUp(ctx); err != nil {
		return nil, 0, err
	}

	vectors = make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += p.batchSize {
		batch := texts[lo:min(lo+p.batchSize, len(texts))]
		res, err := p.infer(ctx, func() (Result, error) { return p.model.Embed(ctx, batch) })
		if err != nil {
			return nil, 0, err
		}
		out, err := p.checkResult(res, len(batch))
		if err != nil {
			return nil, 0, err
		}
		vectors = append(vectors, out...)

		if res.Tokens > 0 {
			tokens += res.Tokens
		} else {
			for _, t := range batch {
				tokens += chunking.CountTokens(t)
			}
		}
	}

	span.SetAttributes(attribute.Int("embedding.tokens", tokens))
	return vectors, tokens, nil
}

// EmbedImage decodes images concurrently, then embeds them through the
// serialised model path. The unit count is one per image.
func (p *Provider) EmbedImage(ctx context.Context, images [][]byte) (vectors [][]float32, units int, err error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "embeddings.EmbedImage")
	defer span.End()
	span.SetAttributes(
		attribute.String("embedding.model", p.model.Name()),
		attribute.Int("embedding.inputs", len(images)),
	)

	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model.Name(), "embed_image", time.Since(start), len(images), units, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if len(images) == 0 {
		return nil, 0, errdefs.Wrap(errdefs.CodeConfiguration, ErrEmptyInput, "embed image")
	}
	im, ok := imageModel(p.model)
	if !ok {
		return nil, 0, errdefs.Unsupported("model %s does not embed images", p.model.Name())
	}
	if err := p.WarmUp(ctx); err != nil {
		return nil, 0, err
	}

	decoded, err := p.decodeAll(ctx, images)
	if err != nil {
		return nil, 0, err
	}

	vectors = make([][]float32, 0, len(decoded))
	for lo := 0; lo < len(decoded); lo += p.batchSize {
		batch := decoded[lo:min(lo+p.batchSize, len(decoded))]
		res, err := p.infer(ctx, func() (Result, error) { return im.EmbedImages(ctx, batch) })
		if err != nil {
			return nil, 0, err
		}
		out, err := p.checkResult(res, len(batch))
		if err != nil {
			return nil, 0, err
		}
		vectors = append(vectors, out...)
	}
	return vectors, len(images), nil
}

func (p *Provider) decodeAll(ctx context.Context, images [][]byte) ([]Image, error) {
	out := make([]Image, len(images))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(p.decodeConcurrency)
	for i, data := range images {
		g.Go(func() error {
			img, format, err := image.Decode(bytes.NewReader(data))
			if err != nil {
				return errdefs.Wrap(errdefs.CodeUnsupportedInput, err, "decoding image %d", i)
			}
			b := img.Bounds()
			out[i] = Image{Data: data, Format: format, Width: b.Dx(), Height: b.Dy()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// infer runs one model call under the inference lock.
func (p *Provider) infer(ctx context.Context, call func() (Result, error)) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, classify(err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	res, err := call()
	if err != nil {
		return Result{}, classify(err)
	}
	return res, nil
}

func (p *Provider) checkResult(res Result, want int) ([][]float32, error) {
	if len(res.Vectors) != want {
		return nil, fmt.Errorf("%w: model returned %d vectors for %d inputs", errdefs.ErrEmbeddingCompute, len(res.Vectors), want)
	}
	dim := p.model.Dimension()
	out := make([][]float32, len(res.Vectors))
	for i, v := range res.Vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: %w: got %d, want %d", errdefs.ErrEmbeddingCompute, ErrDimensionMismatch, len(v), dim)
		}
		n, err := Normalized(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errdefs.ErrEmbeddingCompute, err)
		}
		out[i] = n
	}
	return out, nil
}

// classify maps a model failure onto the error taxonomy. Already
// classified errors pass through.
func classify(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return errdefs.Wrap(errdefs.CodeCancelled, err, "embedding interrupted")
	case errdefs.CodeOf(err) != errdefs.CodeInternal:
		return err
	default:
		return fmt.Errorf("%w: %v", errdefs.ErrEmbeddingCompute, err)
	}
}

// Close releases the model.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model.Close()
}
