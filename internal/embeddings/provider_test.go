package embeddings_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/vectorstored/internal/embeddings"
	"github.com/fyrsmithlabs/vectorstored/internal/embeddings/embeddingstest"
	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
	"github.com/fyrsmithlabs/vectorstored/internal/logging"
	"github.com/fyrsmithlabs/vectorstored/internal/telemetry"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for x := 0; x < 4; x++ {
		for y := 0; y < 3; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProvider_EmbedText(t *testing.T) {
	fake := embeddingstest.New(16)
	p := embeddings.NewProvider(fake)
	ctx := context.Background()

	vectors, tokens, err := p.EmbedText(ctx, []string{"hello world", "goodbye"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, 3, tokens)
	for _, v := range vectors {
		assert.Len(t, v, 16)
		assert.InDelta(t, 1.0, norm(v), 1e-5)
	}

	again, _, err := p.EmbedText(ctx, []string{"hello world"})
	require.NoError(t, err)
	assert.Equal(t, vectors[0], again[0], "same text must map to the same vector")
	assert.NotEqual(t, vectors[0], vectors[1])
}

func TestProvider_EmptyInput(t *testing.T) {
	p := embeddings.NewProvider(embeddingstest.New(8))
	_, _, err := p.EmbedText(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, embeddings.ErrEmptyInput)
	assert.Equal(t, errdefs.CodeConfiguration, errdefs.CodeOf(err))
}

func TestProvider_WarmUpOnce(t *testing.T) {
	fake := embeddingstest.New(8)
	p := embeddings.NewProvider(fake)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.WarmUp(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fake.Loads())
	assert.True(t, p.Ready())
	assert.NoError(t, p.LoadError())
}

// ctxModel fails Load when its context is already done.
type ctxModel struct {
	*embeddingstest.Model
}

func (m ctxModel) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.Model.Load(ctx)
}

func TestProvider_WarmUpIgnoresCallerCancellation(t *testing.T) {
	fake := embeddingstest.New(8)
	p := embeddings.NewProvider(ctxModel{fake})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.WarmUp(ctx))
	assert.True(t, p.Ready())
	assert.NoError(t, p.LoadError())

	vecs, _, err := p.EmbedText(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, 1, fake.Loads())
}

func TestProvider_LoadFailureIsFatal(t *testing.T) {
	fake := embeddingstest.New(8)
	fake.LoadErr = errors.New("weights not found")
	p := embeddings.NewProvider(fake)
	ctx := context.Background()

	err := p.WarmUp(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrModelLoad)
	assert.Equal(t, errdefs.CodeModelLoad, errdefs.CodeOf(err))

	_, _, err = p.EmbedText(ctx, []string{"x"})
	assert.ErrorIs(t, err, errdefs.ErrModelLoad)
	assert.Equal(t, 1, fake.Loads(), "a failed load is not retried")
	assert.False(t, p.Ready())
	assert.Error(t, p.LoadError())
	assert.Zero(t, fake.Calls())
}

func TestProvider_SerialisesInference(t *testing.T) {
	fake := embeddingstest.New(8)
	p := embeddings.NewProvider(fake)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := p.EmbedText(context.Background(), []string{"concurrent", "calls"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 32, fake.Calls())
	assert.Equal(t, 1, fake.MaxInFlight())
}

func TestProvider_Batches(t *testing.T) {
	fake := embeddingstest.New(8)
	p := embeddings.NewProvider(fake, embeddings.WithBatchSize(2))

	texts := []string{"a", "b", "c", "d", "e"}
	vectors, _, err := p.EmbedText(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vectors, 5)
	assert.Equal(t, 3, fake.Calls())
	assert.Equal(t, texts, fake.Inputs())
}

func TestProvider_ComputeError(t *testing.T) {
	fake := embeddingstest.New(8)
	fake.EmbedErr = func(int) error { return errors.New("onnx runtime exploded") }
	p := embeddings.NewProvider(fake)

	_, _, err := p.EmbedText(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrEmbeddingCompute)
	assert.True(t, errdefs.IsRetryable(err))
}

func TestProvider_CancelledBetweenBatches(t *testing.T) {
	fake := embeddingstest.New(8)
	ctx, cancel := context.WithCancel(context.Background())
	fake.BeforeEmbed = func(context.Context, []string) { cancel() }
	p := embeddings.NewProvider(fake, embeddings.WithBatchSize(1))

	_, _, err := p.EmbedText(ctx, []string{"a", "b", "c"})
	require.Error(t, err)
	assert.Equal(t, errdefs.CodeCancelled, errdefs.CodeOf(err))
	assert.Equal(t, 1, fake.Calls(), "no model call after cancellation is observed")
}

func TestProvider_DimensionMismatch(t *testing.T) {
	p := embeddings.NewProvider(&wrongDim{Model: embeddingstest.New(8)})
	_, _, err := p.EmbedText(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, embeddings.ErrDimensionMismatch)
}

type wrongDim struct{ *embeddingstest.Model }

func (w *wrongDim) Dimension() int { return 4 }

func TestProvider_EmbedImage(t *testing.T) {
	fake := embeddingstest.New(8)
	fake.Images = true
	p := embeddings.NewProvider(fake, embeddings.WithDecodeConcurrency(2))
	require.True(t, p.SupportsImages())

	red := pngBytes(t, color.RGBA{R: 255, A: 255})
	blue := pngBytes(t, color.RGBA{B: 255, A: 255})
	vectors, units, err := p.EmbedImage(context.Background(), [][]byte{red, blue, red})
	require.NoError(t, err)
	assert.Equal(t, 3, units)
	require.Len(t, vectors, 3)
	assert.Equal(t, vectors[0], vectors[2])
	assert.NotEqual(t, vectors[0], vectors[1])
}

func TestProvider_EmbedImageErrors(t *testing.T) {
	t.Run("undecodable", func(t *testing.T) {
		fake := embeddingstest.New(8)
		fake.Images = true
		p := embeddings.NewProvider(fake)
		_, _, err := p.EmbedImage(context.Background(), [][]byte{[]byte("not an image")})
		assert.Equal(t, errdefs.CodeUnsupportedInput, errdefs.CodeOf(err))
		assert.Zero(t, fake.Calls())
	})

	t.Run("text-only model", func(t *testing.T) {
		p := embeddings.NewProvider(embeddingstest.New(8))
		assert.False(t, p.SupportsImages())
		_, _, err := p.EmbedImage(context.Background(), [][]byte{pngBytes(t, color.White)})
		assert.Equal(t, errdefs.CodeUnsupportedInput, errdefs.CodeOf(err))
	})
}

func TestProvider_Telemetry(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	tt.Install(t)
	logger := logging.NewTestLogger()

	p := embeddings.NewProvider(embeddingstest.New(8), embeddings.WithLogger(logger.Logger))
	_, _, err := p.EmbedText(context.Background(), []string{"traced"})
	require.NoError(t, err)

	tt.AssertSpanExists(t, "embeddings.EmbedText")
	tt.AssertSpanAttribute(t, "embeddings.EmbedText", "embedding.inputs", int64(1))
	logger.AssertLogged(t, zapcore.InfoLevel, "embedding model loaded")

	names, err := tt.MetricNames(context.Background())
	require.NoError(t, err)
	assert.Contains(t, names, "vectorstored.embedding.duration_seconds")
}
