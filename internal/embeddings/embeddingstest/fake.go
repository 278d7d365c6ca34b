// Package embeddingstest provides a deterministic in-process embedding
// model for tests.
package embeddingstest

import (
	"context"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fyrsmithlabs/vectorstored/internal/embeddings"
)

// DefaultDimension matches the default production model.
const DefaultDimension = 768

// Model returns the same vector for the same input, derived from an FNV
// hash of the text. Distinct inputs get unrelated vectors.
type Model struct {
	name      string
	dimension int

	// LoadErr is returned by Load.
	LoadErr error
	// EmbedErr, when set, is consulted before each Embed call with the
	// 1-based call number. A non-nil result fails that call.
	EmbedErr func(call int) error
	// Images toggles image support.
	Images bool
	// BeforeEmbed runs at the start of every Embed call.
	BeforeEmbed func(ctx context.Context, texts []string)

	mu        sync.Mutex
	calls     int
	loads     atomic.Int32
	inflight  atomic.Int32
	maxFlight atomic.Int32
	inputs    []string
}

// New returns a fake with the given dimension.
func New(dimension int) *Model {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Model{name: "fake-embedder", dimension: dimension}
}

func (m *Model) Name() string   { return m.name }
func (m *Model) Dimension() int { return m.dimension }

func (m *Model) Load(context.Context) error {
	m.loads.Add(1)
	return m.LoadErr
}

func (m *Model) Embed(ctx context.Context, texts []string) (embeddings.Result, error) {
	n := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		cur := m.maxFlight.Load()
		if n <= cur || m.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls++
	call := m.calls
	m.inputs = append(m.inputs, texts...)
	m.mu.Unlock()

	if m.BeforeEmbed != nil {
		m.BeforeEmbed(ctx, texts)
	}
	if m.EmbedErr != nil {
		if err := m.EmbedErr(call); err != nil {
			return embeddings.Result{}, err
		}
	}

	res := embeddings.Result{Vectors: make([][]float32, len(texts))}
	for i, t := range texts {
		res.Vectors[i] = Vector(t, m.dimension)
		res.Tokens += len(strings.Fields(t))
	}
	return res, nil
}

// EmbedImages hashes the raw image bytes.
func (m *Model) EmbedImages(ctx context.Context, images []embeddings.Image) (embeddings.Result, error) {
	texts := make([]string, len(images))
	for i, img := range images {
		texts[i] = string(img.Data)
	}
	res, err := m.Embed(ctx, texts)
	res.Tokens = 0
	return res, err
}

// SupportsImages reports the Images toggle.
func (m *Model) SupportsImages() bool { return m.Images }

func (m *Model) Close() error { return nil }

// Calls is the number of Embed invocations so far.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Loads is the number of Load invocations so far.
func (m *Model) Loads() int { return int(m.loads.Load()) }

// MaxInFlight is the highest number of concurrent Embed calls observed.
func (m *Model) MaxInFlight() int { return int(m.maxFlight.Load()) }

// Inputs returns every text passed to Embed, in call order.
func (m *Model) Inputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.inputs...)
}

// Vector is the deterministic, unnormalised vector for text.
func Vector(text string, dimension int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	v := make([]float32, dimension)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return v
}

var (
	_ embeddings.Model      = (*Model)(nil)
	_ embeddings.ImageModel = (*Model)(nil)
)
