package embeddings

import (
	"context"
	"encoding/base64"
	"errors"
)

var (
	// ErrEmptyInput indicates an embedding call with no inputs.
	ErrEmptyInput = errors.New("empty or nil input")

	// ErrDimensionMismatch indicates a model returned vectors of the wrong size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Result is the output of one model call. Tokens is 0 when the backend
// does not report usage.
type Result struct {
	Vectors [][]float32
	Tokens  int
}

// Model is a single embedding backend. Implementations need not be safe
// for concurrent Embed calls; Provider serialises them.
type Model interface {
	// Name identifies the model in logs and metrics.
	Name() string
	// Dimension is the length of every returned vector.
	Dimension() int
	// Load resolves and loads model state. Called once by Provider.WarmUp.
	Load(ctx context.Context) error
	// Embed returns one vector per text, in order.
	Embed(ctx context.Context, texts []string) (Result, error)
	// Close releases model resources.
	Close() error
}

// ImageModel is implemented by models that can embed images.
type ImageModel interface {
	EmbedImages(ctx context.Context, images []Image) (Result, error)
}

// Image is a decoded and validated image ready for a model.
type Image struct {
	Data   []byte
	Format string // png, jpeg or gif
	Width  int
	Height int
}

// DataURL encodes the image as a data: URL.
func (img Image) DataURL() string {
	return "data:image/" + img.Format + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
