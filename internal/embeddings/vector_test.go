package embeddings

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalized(t *testing.T) {
	in := []float32{3, 4}
	out, err := Normalized(in)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, out[0], 1e-6)
	assert.InDelta(t, 0.8, out[1], 1e-6)
	assert.Equal(t, []float32{3, 4}, in, "input is not modified")

	_, err = Normalized([]float32{0, 0})
	assert.Error(t, err)
	_, err = Normalized([]float32{float32(math.NaN()), 1})
	assert.Error(t, err)
}

func TestBase64(t *testing.T) {
	v := []float32{1, -0.5, 0.25}
	enc := EncodeBase64(v)
	assert.Equal(t, "AACAPwAAAL8AAIA+", enc)

	dec, err := DecodeBase64(enc)
	require.NoError(t, err)
	assert.Equal(t, v, dec)

	_, err = DecodeBase64("AAA=")
	assert.Error(t, err)
}
