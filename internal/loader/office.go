package loader

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"iter"
	"path"
	"slices"
	"strconv"
	"strings"

	"code.sajari.com/docconv/v2"
	"github.com/xuri/excelize/v2"
)

// ooxml is an Office Open XML package.
type ooxml struct {
	kind Kind
	zr   *zip.Reader
}

func openOOXML(kind Kind, data []byte) (*ooxml, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, corrupt(kind, err)
	}
	return &ooxml{kind: kind, zr: zr}, nil
}

func (o *ooxml) read(name string) ([]byte, error) {
	f, err := o.zr.Open(name)
	if err != nil {
		return nil, corrupt(o.kind, fmt.Errorf("missing part %s: %w", name, err))
	}
	defer f.Close()
	return io.ReadAll(f)
}

// parts returns part names under dir matching prefix and ext, in numeric
// order of their trailing digits (slide2 before slide10).
func (o *ooxml) parts(dir, prefix string, exts ...string) []string {
	var names []string
	for _, f := range o.zr.File {
		if path.Dir(f.Name) != dir || !strings.HasPrefix(path.Base(f.Name), prefix) {
			continue
		}
		if slices.Contains(exts, strings.ToLower(path.Ext(f.Name))) {
			names = append(names, f.Name)
		}
	}
	slices.SortFunc(names, func(a, b string) int {
		na, nb := partNumber(a), partNumber(b)
		if na != nb {
			return na - nb
		}
		return strings.Compare(a, b)
	})
	return names
}

func partNumber(name string) int {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	digits := strings.TrimLeftFunc(base, func(r rune) bool { return r < '0' || r > '9' })
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

func (o *ooxml) media(dir string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for _, name := range o.parts(dir, "", ".png", ".jpg", ".jpeg", ".gif") {
			data, err := o.read(name)
			if !yield(data, err) || err != nil {
				return
			}
		}
	}
}

// officeText runs a docconv converter over data. Part lookups in the
// converters dereference parts named by [Content_Types].xml without a
// nil check, so that part is required up front and panics are reported
// as corrupt input.
func officeText(kind Kind, data []byte, convert func(io.Reader) (string, map[string]string, error)) (text string, err error) {
	pkg, err := openOOXML(kind, data)
	if err != nil {
		return "", err
	}
	if _, err := pkg.read("[Content_Types].xml"); err != nil {
		return "", err
	}
	defer func() {
		if r := recover(); r != nil {
			text, err = "", corrupt(kind, fmt.Errorf("malformed package: %v", r))
		}
	}()
	raw, _, err := convert(bytes.NewReader(data))
	if err != nil {
		return "", corrupt(kind, err)
	}
	return paragraphs(raw), nil
}

// paragraphs trims every line of s and joins the non-blank ones with
// blank lines.
func paragraphs(s string) string {
	var paras []string
	for _, p := range strings.Split(s, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	return strings.Join(paras, "\n\n")
}

type docxDocument struct{ data []byte }

func (d *docxDocument) Kind() Kind { return KindDOCX }

// ExtractText yields the document body as a single section; paragraphs
// are separated by blank lines.
func (d *docxDocument) ExtractText() iter.Seq2[string, error] {
	return single(officeText(KindDOCX, d.data, docconv.ConvertDocx))
}

func (d *docxDocument) ExtractImages() iter.Seq2[[]byte, error] {
	pkg, err := openOOXML(KindDOCX, d.data)
	if err != nil {
		return func(yield func([]byte, error) bool) { yield(nil, err) }
	}
	return pkg.media("word/media")
}

type pptxDocument struct{ data []byte }

func (d *pptxDocument) Kind() Kind { return KindPPTX }

// ExtractText yields the text of every slide, in the order the package
// lists them, as a single section.
func (d *pptxDocument) ExtractText() iter.Seq2[string, error] {
	return single(officeText(KindPPTX, d.data, docconv.ConvertPptx))
}

func (d *pptxDocument) ExtractImages() iter.Seq2[[]byte, error] {
	pkg, err := openOOXML(KindPPTX, d.data)
	if err != nil {
		return func(yield func([]byte, error) bool) { yield(nil, err) }
	}
	return pkg.media("ppt/media")
}

type xlsxDocument struct{ data []byte }

func (d *xlsxDocument) Kind() Kind { return KindXLSX }

// ExtractText yields one section per sheet: its name, then one line per
// row with cells separated by tabs.
func (d *xlsxDocument) ExtractText() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f, err := excelize.OpenReader(bytes.NewReader(d.data))
		if err != nil {
			yield("", corrupt(KindXLSX, err))
			return
		}
		defer f.Close()

		for _, sheet := range f.GetSheetList() {
			rows, err := f.GetRows(sheet)
			if err != nil {
				yield("", corrupt(KindXLSX, err))
				return
			}
			var sb strings.Builder
			for _, row := range rows {
				line := strings.TrimRight(strings.Join(row, "\t"), "\t")
				if strings.TrimSpace(line) == "" {
					continue
				}
				sb.WriteString(line)
				sb.WriteString("\n")
			}
			if sb.Len() == 0 {
				continue
			}
			if !yield(sheet+"\n"+strings.TrimRight(sb.String(), "\n"), nil) {
				return
			}
		}
	}
}

func (d *xlsxDocument) ExtractImages() iter.Seq2[[]byte, error] { return noImages }
