package chunking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

func TestStrategy_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   Strategy
		want Strategy
	}{
		{"empty uses default", Strategy{}, DefaultStrategy()},
		{"auto forces window", Strategy{Type: KindAuto, MaxChunkSize: 5, ChunkOverlap: 1},
			Strategy{Type: KindAuto, MaxChunkSize: DefaultMaxChunkTokens, ChunkOverlap: DefaultOverlapTokens}},
		{"static zero gets window", Strategy{Type: KindStatic},
			Strategy{Type: KindStatic, MaxChunkSize: DefaultMaxChunkTokens, ChunkOverlap: DefaultOverlapTokens}},
		{"static keeps values", Strategy{Type: KindStatic, MaxChunkSize: 200, ChunkOverlap: 60, Language: "en"},
			Strategy{Type: KindStatic, MaxChunkSize: 200, ChunkOverlap: 60}},
		{"sentence fills size and lang", Strategy{Type: KindSentence},
			Strategy{Type: KindSentence, MaxChunkSize: DefaultSentencesPerChunk, Language: DefaultLanguage}},
		{"sentence keeps lang", Strategy{Type: KindSentence, MaxChunkSize: 3, ChunkOverlap: 1, Language: "es"},
			Strategy{Type: KindSentence, MaxChunkSize: 3, ChunkOverlap: 1, Language: "es"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestStrategy_Validate(t *testing.T) {
	assert.NoError(t, DefaultStrategy().Validate())
	assert.NoError(t, Strategy{Type: KindStatic, MaxChunkSize: 4096, ChunkOverlap: 2048}.Validate())
	assert.NoError(t, Strategy{Type: KindSentence, MaxChunkSize: 1, Language: "en"}.Validate())

	err := Strategy{Type: KindStatic, MaxChunkSize: 400, ChunkOverlap: 10}.Validate()
	assert.ErrorIs(t, err, errdefs.ErrConfiguration)

	err = Strategy{Type: KindStatic, MaxChunkSize: 5000, ChunkOverlap: 100}.Validate()
	assert.ErrorIs(t, err, errdefs.ErrConfiguration)

	err = Strategy{Type: KindSentence, MaxChunkSize: 0, Language: "en"}.Validate()
	assert.ErrorIs(t, err, errdefs.ErrConfiguration)

	err = Strategy{Type: KindSentence, MaxChunkSize: 2, Language: "fr"}.Validate()
	assert.ErrorIs(t, err, errdefs.ErrUnsupportedInput)
}
