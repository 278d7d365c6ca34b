package chunking

import (
	"strings"
	"unicode"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

// Chunker splits text according to a Strategy. It is safe for concurrent use.
type Chunker struct {
	detectors map[string]SentenceDetector
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithSentenceDetector overrides the detector used for lang.
func WithSentenceDetector(lang string, d SentenceDetector) Option {
	return func(c *Chunker) {
		c.detectors[lang] = d
	}
}

// New returns a Chunker with detectors for every supported language.
func New(opts ...Option) *Chunker {
	c := &Chunker{detectors: make(map[string]SentenceDetector, len(punktModels))}
	for lang := range punktModels {
		if d, ok := NewSentenceDetector(lang); ok {
			c.detectors[lang] = d
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chunk splits text into ordered, non-empty segments. The strategy is
// normalized and validated before any work; an invalid strategy is
// reported as a configuration error even for empty text.
func (c *Chunker) Chunk(text string, strategy Strategy) ([]string, error) {
	strategy = strategy.Normalize()
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	switch strategy.Type {
	case KindSentence:
		detector, ok := c.detectors[strategy.Language]
		if !ok {
			return nil, errdefs.Unsupported("sentence detection is not available for language %q", strategy.Language)
		}
		return chunkSentences(detector.Sentences(text), strategy.MaxChunkSize, strategy.ChunkOverlap), nil
	default:
		return chunkTokens(text, strategy.MaxChunkSize, strategy.ChunkOverlap)
	}
}

// chunkSentences groups sentences by size, then prefixes every group after
// the first with the trailing overlap sentences of the group before it.
func chunkSentences(sentences []string, size, overlap int) []string {
	var groups [][]string
	for i := 0; i < len(sentences); i += size {
		end := min(i+size, len(sentences))
		groups = append(groups, sentences[i:end])
	}

	chunks := make([]string, 0, len(groups))
	for i, group := range groups {
		parts := group
		if i > 0 && overlap > 0 {
			prev := groups[i-1]
			tail := prev[len(prev)-min(overlap, len(prev)):]
			parts = append(append([]string{}, tail...), group...)
		}
		if chunk := strings.TrimSpace(strings.Join(parts, " ")); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// chunkTokens produces windows of at most size tokens with overlap tokens
// shared between neighbours.
func chunkTokens(text string, size, overlap int) ([]string, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithLenFunc(CountTokens),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.CodeInternal, err, "splitting text into token windows")
	}

	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks, nil
}

// CountTokens approximates a model token count: one per whitespace
// separated word plus one per non-ASCII rune. Whitespace counts as zero so
// separators do not consume the window.
func CountTokens(text string) int {
	count := len(strings.Fields(text))
	for _, r := range text {
		if r > 127 && !unicode.IsSpace(r) {
			count++
		}
	}
	return count
}
