// Package chunking splits extracted document text into bounded, overlapping
// segments according to a ChunkingStrategy.
package chunking

import (
	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

// Kind identifies a chunking strategy variant.
type Kind string

const (
	// KindAuto uses token windows with server-chosen sizes.
	KindAuto Kind = "auto"
	// KindStatic uses token windows with caller-chosen sizes.
	KindStatic Kind = "static"
	// KindSentence groups whole sentences.
	KindSentence Kind = "sentence"
)

// Token window bounds for auto and static strategies.
const (
	DefaultMaxChunkTokens = 800
	DefaultOverlapTokens  = 400
	MinMaxChunkTokens     = 100
	MaxMaxChunkTokens     = 4096
	MinOverlapTokens      = 50
	MaxOverlapTokens      = 2048
)

// Sentence strategy defaults.
const (
	DefaultSentencesPerChunk = 2
	DefaultLanguage          = "en"
)

// Strategy describes how a document is split. For KindSentence the sizes
// count sentences; otherwise they count tokens.
type Strategy struct {
	Type         Kind   `json:"type" koanf:"type"`
	MaxChunkSize int    `json:"max_chunk_size" koanf:"max_chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap" koanf:"chunk_overlap"`
	Language     string `json:"lang,omitempty" koanf:"lang"`
}

// DefaultStrategy is used when an ingestion request names no strategy.
func DefaultStrategy() Strategy {
	return Strategy{
		Type:         KindSentence,
		MaxChunkSize: DefaultSentencesPerChunk,
		ChunkOverlap: 0,
		Language:     DefaultLanguage,
	}
}

// Normalize fills unset fields. Auto always resolves to the default token
// window; static and sentence only fill values left at zero.
func (s Strategy) Normalize() Strategy {
	switch s.Type {
	case "":
		return DefaultStrategy()
	case KindAuto:
		s.MaxChunkSize = DefaultMaxChunkTokens
		s.ChunkOverlap = DefaultOverlapTokens
		s.Language = ""
	case KindStatic:
		if s.MaxChunkSize == 0 && s.ChunkOverlap == 0 {
			s.MaxChunkSize = DefaultMaxChunkTokens
			s.ChunkOverlap = DefaultOverlapTokens
		}
		s.Language = ""
	case KindSentence:
		if s.MaxChunkSize == 0 {
			s.MaxChunkSize = DefaultSentencesPerChunk
		}
		if s.Language == "" {
			s.Language = DefaultLanguage
		}
	}
	return s
}

// Validate rejects invalid parameters. It never clamps.
func (s Strategy) Validate() error {
	switch s.Type {
	case KindAuto, KindStatic, KindSentence:
	default:
		return errdefs.Configuration("unknown chunking strategy %q", s.Type)
	}
	if s.MaxChunkSize <= 0 {
		return errdefs.Configuration("max_chunk_size must be positive, got %d", s.MaxChunkSize)
	}
	if s.ChunkOverlap < 0 {
		return errdefs.Configuration("chunk_overlap must not be negative, got %d", s.ChunkOverlap)
	}
	if s.ChunkOverlap >= s.MaxChunkSize {
		return errdefs.Configuration("chunk_overlap (%d) must be less than max_chunk_size (%d)", s.ChunkOverlap, s.MaxChunkSize)
	}

	if s.Type == KindStatic {
		if s.MaxChunkSize < MinMaxChunkTokens || s.MaxChunkSize > MaxMaxChunkTokens {
			return errdefs.Configuration("max_chunk_size must be between %d and %d tokens, got %d",
				MinMaxChunkTokens, MaxMaxChunkTokens, s.MaxChunkSize)
		}
		if s.ChunkOverlap < MinOverlapTokens || s.ChunkOverlap > MaxOverlapTokens {
			return errdefs.Configuration("chunk_overlap must be between %d and %d tokens, got %d",
				MinOverlapTokens, MaxOverlapTokens, s.ChunkOverlap)
		}
	}

	if s.Type == KindSentence && !SupportedLanguage(s.Language) {
		return errdefs.Unsupported("sentence detection is not available for language %q", s.Language)
	}
	return nil
}
