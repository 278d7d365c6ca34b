// Package loader extracts text and images from uploaded documents.
//
// Formats form a closed set of Kinds. Detect maps a filename and content
// type onto a Kind; Open returns a Document whose extractors are lazy
// iterators, so large documents are walked section by section.
package loader

import (
	"iter"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

// Kind is a supported document format.
type Kind string

const (
	KindText     Kind = "text"
	KindMarkdown Kind = "markdown"
	KindHTML     Kind = "html"
	KindPDF      Kind = "pdf"
	KindDOCX     Kind = "docx"
	KindPPTX     Kind = "pptx"
	KindXLSX     Kind = "xlsx"
	KindJSONL    Kind = "jsonl"
	KindImage    Kind = "image"
)

// Document is an opened upload.
type Document interface {
	Kind() Kind
	// ExtractText yields text sections in document order.
	ExtractText() iter.Seq2[string, error]
	// ExtractImages yields raw image payloads in document order.
	ExtractImages() iter.Seq2[[]byte, error]
}

var extensions = map[string]Kind{
	".txt":      KindText,
	".text":     KindText,
	".log":      KindText,
	".csv":      KindText,
	".tsv":      KindText,
	".json":     KindText,
	".xml":      KindText,
	".yaml":     KindText,
	".yml":      KindText,
	".go":       KindText,
	".py":       KindText,
	".js":       KindText,
	".ts":       KindText,
	".java":     KindText,
	".c":        KindText,
	".cpp":      KindText,
	".rs":       KindText,
	".sh":       KindText,
	".md":       KindMarkdown,
	".markdown": KindMarkdown,
	".html":     KindHTML,
	".htm":      KindHTML,
	".pdf":      KindPDF,
	".docx":     KindDOCX,
	".pptx":     KindPPTX,
	".xlsx":     KindXLSX,
	".jsonl":    KindJSONL,
	".ndjson":   KindJSONL,
	".png":      KindImage,
	".jpg":      KindImage,
	".jpeg":     KindImage,
	".gif":      KindImage,
}

// legacy formats are recognised only to be rejected with a clear message.
var legacy = map[string]string{
	".doc": ".docx",
	".ppt": ".pptx",
	".xls": ".xlsx",
}

var mediaTypes = map[string]Kind{
	"text/markdown":        KindMarkdown,
	"text/x-markdown":      KindMarkdown,
	"text/html":            KindHTML,
	"application/pdf":      KindPDF,
	"application/json":     KindText,
	"application/jsonl":    KindJSONL,
	"application/x-ndjson": KindJSONL,

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   KindDOCX,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": KindPPTX,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         KindXLSX,
}

// Detect picks the Kind for a file. The extension wins; otherwise the
// content type decides, and any text/* type falls back to plain text.
func Detect(filename, contentType string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if k, ok := extensions[ext]; ok {
		return k, nil
	}
	if modern, ok := legacy[ext]; ok {
		return "", errdefs.Unsupported("legacy %s files are not supported, convert to %s", ext, modern)
	}

	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || mt == "" {
		return "", errdefs.Unsupported("unsupported file type %q", filename)
	}
	if k, ok := mediaTypes[mt]; ok {
		return k, nil
	}
	switch {
	case mt == "image/png" || mt == "image/jpeg" || mt == "image/gif":
		return KindImage, nil
	case strings.HasPrefix(mt, "text/"):
		return KindText, nil
	}
	return "", errdefs.Unsupported("unsupported file type %q (%s)", filename, mt)
}

// Open detects the kind of data and returns its Document. An empty or
// generic content type is sniffed from the payload.
func Open(filename, contentType string, data []byte) (Document, error) {
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = http.DetectContentType(data)
	}
	kind, err := Detect(filename, contentType)
	if err != nil {
		return nil, err
	}
	return OpenKind(kind, data)
}

// OpenKind returns the Document for data of a known kind.
func OpenKind(kind Kind, data []byte) (Document, error) {
	switch kind {
	case KindText:
		return &textDocument{data: data}, nil
	case KindMarkdown:
		return &markdownDocument{data: data}, nil
	case KindHTML:
		return &htmlDocument{data: data}, nil
	case KindPDF:
		return &pdfDocument{data: data}, nil
	case KindDOCX:
		return &docxDocument{data: data}, nil
	case KindPPTX:
		return &pptxDocument{data: data}, nil
	case KindXLSX:
		return &xlsxDocument{data: data}, nil
	case KindJSONL:
		return &jsonlDocument{data: data}, nil
	case KindImage:
		return &imageDocument{data: data}, nil
	default:
		return nil, errdefs.Unsupported("unsupported document kind %q", kind)
	}
}

// noImages is the ExtractImages of text-only formats.
func noImages(func([]byte, error) bool) {}

// single yields one section, or nothing when it is blank.
func single(s string, err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err != nil {
			yield("", err)
			return
		}
		if strings.TrimSpace(s) != "" {
			yield(s, nil)
		}
	}
}

func corrupt(kind Kind, err error) error {
	return errdefs.Wrap(errdefs.CodeUnsupportedInput, err, "reading %s document", kind)
}
