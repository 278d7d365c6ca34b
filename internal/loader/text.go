package loader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

type textDocument struct{ data []byte }

func (d *textDocument) Kind() Kind { return KindText }

func (d *textDocument) ExtractText() iter.Seq2[string, error] {
	if !utf8.Valid(d.data) {
		return single("", errdefs.Unsupported("text file is not valid UTF-8"))
	}
	return single(strings.TrimPrefix(string(d.data), "\ufeff"), nil)
}

func (d *textDocument) ExtractImages() iter.Seq2[[]byte, error] { return noImages }

// markdownDocument yields one section per top-level block, with markup
// stripped. Code blocks keep their lines.
type markdownDocument struct{ data []byte }

func (d *markdownDocument) Kind() Kind { return KindMarkdown }

func (d *markdownDocument) ExtractText() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		root := goldmark.New().Parser().Parse(text.NewReader(d.data))
		for n := root.FirstChild(); n != nil; n = n.NextSibling() {
			section := strings.TrimSpace(blockText(n, d.data))
			if section == "" {
				continue
			}
			if !yield(section, nil) {
				return
			}
		}
	}
}

func (d *markdownDocument) ExtractImages() iter.Seq2[[]byte, error] { return noImages }

func blockText(n ast.Node, source []byte) string {
	var sb strings.Builder
	switch n.Kind() {
	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			sb.Write(seg.Value(source))
		}
		return sb.String()
	}
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if node.Type() == ast.TypeBlock && node != n {
				sb.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteString("\n")
			}
		case *ast.String:
			sb.Write(t.Value)
		case *ast.CodeSpan:
			for c := t.FirstChild(); c != nil; c = c.NextSibling() {
				if txt, ok := c.(*ast.Text); ok {
					sb.Write(txt.Segment.Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			sb.Write(t.URL(source))
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

// htmlDocument yields the visible text of the page, one section per
// block element.
type htmlDocument struct{ data []byte }

func (d *htmlDocument) Kind() Kind { return KindHTML }

var htmlBlocks = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "header": true, "footer": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "ul": true, "ol": true, "table": true, "tr": true, "pre": true,
	"blockquote": true, "br": true, "title": true, "main": true, "nav": true,
}

func (d *htmlDocument) ExtractText() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(d.data))
		if err != nil {
			yield("", corrupt(KindHTML, err))
			return
		}
		doc.Find("script, style, noscript, template").Remove()

		var sb strings.Builder
		var walk func(*goquery.Selection)
		walk = func(sel *goquery.Selection) {
			sel.Contents().Each(func(_ int, c *goquery.Selection) {
				name := goquery.NodeName(c)
				if name == "#text" {
					sb.WriteString(c.Text())
					return
				}
				block := htmlBlocks[name]
				if block {
					sb.WriteString("\n")
				}
				walk(c)
				if block {
					sb.WriteString("\n")
				}
			})
		}
		walk(doc.Selection)

		for _, para := range strings.Split(sb.String(), "\n") {
			para = strings.Join(strings.Fields(para), " ")
			if para == "" {
				continue
			}
			if !yield(para, nil) {
				return
			}
		}
	}
}

func (d *htmlDocument) ExtractImages() iter.Seq2[[]byte, error] { return noImages }

// jsonlDocument yields one section per record. Records that are strings
// or carry a text/content field contribute that value; others contribute
// their compact JSON.
type jsonlDocument struct{ data []byte }

func (d *jsonlDocument) Kind() Kind { return KindJSONL }

func (d *jsonlDocument) ExtractText() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		sc := bufio.NewScanner(bytes.NewReader(d.data))
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		line := 0
		for sc.Scan() {
			line++
			raw := bytes.TrimSpace(sc.Bytes())
			if len(raw) == 0 {
				continue
			}
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				yield("", errdefs.Wrap(errdefs.CodeUnsupportedInput, err, "jsonl line %d", line))
				return
			}
			section := recordText(v, raw)
			if strings.TrimSpace(section) == "" {
				continue
			}
			if !yield(section, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield("", corrupt(KindJSONL, err))
		}
	}
}

func recordText(v any, raw []byte) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		for _, k := range []string{"text", "content", "body"} {
			if s, ok := t[k].(string); ok {
				return s
			}
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func (d *jsonlDocument) ExtractImages() iter.Seq2[[]byte, error] { return noImages }

// imageDocument has no text; its one image is the payload itself.
type imageDocument struct{ data []byte }

func (d *imageDocument) Kind() Kind { return KindImage }

func (d *imageDocument) ExtractText() iter.Seq2[string, error] { return single("", nil) }

func (d *imageDocument) ExtractImages() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if len(d.data) > 0 {
			yield(d.data, nil)
		}
	}
}
