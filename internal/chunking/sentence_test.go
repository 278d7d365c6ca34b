package chunking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentenceDetector_English(t *testing.T) {
	d, ok := NewSentenceDetector("en")
	require.True(t, ok)

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "simple",
			text: "Is it raining? Yes! Take an umbrella",
			want: []string{"Is it raining?", "Yes!", "Take an umbrella"},
		},
		{
			name: "title abbreviation",
			text: "Dr. Smith arrived late. He sat down.",
			want: []string{"Dr. Smith arrived late.", "He sat down."},
		},
		{
			name: "single letter before period",
			text: "I take vitamin C. It helps a lot.",
			want: []string{"I take vitamin C.", "It helps a lot."},
		},
		{
			name: "capital letter word before period",
			text: "We chose plan B. Then we left.",
			want: []string{"We chose plan B.", "Then we left."},
		},
		{
			name: "abbreviation ending a sentence",
			text: "He lives in the U.S. He likes it.",
			want: []string{"He lives in the U.S.", "He likes it."},
		},
		{
			name: "blank line",
			text: "Introduction\n\nThe body starts here.",
			want: []string{"Introduction", "The body starts here."},
		},
		{
			name: "no terminal punctuation",
			text: "  just a fragment  ",
			want: []string{"just a fragment"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Sentences(tt.text))
		})
	}
}

func TestSentenceDetector_Spanish(t *testing.T) {
	d, ok := NewSentenceDetector("es")
	require.True(t, ok)

	got := d.Sentences("Llegó temprano a la oficina. ¿Cómo estás? Muy bien.")
	assert.Equal(t, []string{"Llegó temprano a la oficina.", "¿Cómo estás?", "Muy bien."}, got)
}

func TestNewSentenceDetector_Unsupported(t *testing.T) {
	d, ok := NewSentenceDetector("de")
	assert.False(t, ok)
	assert.Nil(t, d)
	assert.False(t, SupportedLanguage("de"))
	assert.True(t, SupportedLanguage("es"))
}
