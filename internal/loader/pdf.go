package loader

import (
	"bytes"
	"fmt"
	"iter"
	"strings"

	"github.com/ledongthuc/pdf"
)

type pdfDocument struct{ data []byte }

func (d *pdfDocument) Kind() Kind { return KindPDF }

// ExtractText yields one section per page. Pages without extractable text
// (scans, pure images) are skipped.
func (d *pdfDocument) ExtractText() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		r, err := openPDF(d.data)
		if err != nil {
			yield("", err)
			return
		}
		fonts := make(map[string]*pdf.Font)
		for i := 1; i <= r.NumPage(); i++ {
			page := r.Page(i)
			if page.V.IsNull() {
				continue
			}
			text, err := pageText(page, fonts)
			if err != nil {
				yield("", corrupt(KindPDF, fmt.Errorf("page %d: %w", i, err)))
				return
			}
			if text = strings.TrimSpace(text); text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func (d *pdfDocument) ExtractImages() iter.Seq2[[]byte, error] { return noImages }

// openPDF guards against panics in the parser on malformed input.
func openPDF(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, corrupt(KindPDF, fmt.Errorf("malformed pdf: %v", p))
		}
	}()
	r, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, corrupt(KindPDF, err)
	}
	return r, nil
}

func pageText(page pdf.Page, fonts map[string]*pdf.Font) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("malformed page content: %v", p)
		}
	}()
	return page.GetPlainText(fonts)
}
