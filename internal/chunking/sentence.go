package chunking

import (
	"regexp"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/data"
	"github.com/neurosnap/sentences/english"
)

// SentenceDetector splits text into sentences, in document order.
type SentenceDetector interface {
	Sentences(text string) []string
}

// paragraphBreak separates sections; sentences never span one.
var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n\s*`)

// tokenizer is the part of the Punkt tokenizer the detector uses.
type tokenizer interface {
	Tokenize(text string) []*sentences.Sentence
}

// punktModels builds the Punkt tokenizer for each supported language
// from training data compiled into the sentences module.
var punktModels = map[string]func() (tokenizer, error){
	"en": func() (tokenizer, error) {
		return english.NewSentenceTokenizer(nil)
	},
	"es": func() (tokenizer, error) {
		return trainedTokenizer("data/spanish.json")
	},
}

func trainedTokenizer(asset string) (tokenizer, error) {
	b, err := data.Asset(asset)
	if err != nil {
		return nil, err
	}
	training, err := sentences.LoadTraining(b)
	if err != nil {
		return nil, err
	}
	return sentences.NewSentenceTokenizer(training), nil
}

// SupportedLanguage reports whether a sentence detector exists for lang.
func SupportedLanguage(lang string) bool {
	_, ok := punktModels[lang]
	return ok
}

type punktDetector struct {
	tok tokenizer
}

// NewSentenceDetector returns the detector for lang, or false if the
// language is not supported or its model fails to load.
func NewSentenceDetector(lang string) (SentenceDetector, bool) {
	load, ok := punktModels[lang]
	if !ok {
		return nil, false
	}
	tok, err := load()
	if err != nil {
		return nil, false
	}
	return &punktDetector{tok: tok}, true
}

func (d *punktDetector) Sentences(text string) []string {
	var out []string
	for _, para := range paragraphBreak.Split(text, -1) {
		if strings.TrimSpace(para) == "" {
			continue
		}
		for _, s := range d.tok.Tokenize(para) {
			if t := strings.TrimSpace(s.Text); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}
