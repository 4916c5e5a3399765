package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hyperjump/quill/internal/format"
	"github.com/hyperjump/quill/internal/models"
)

// PageTextReader returns the digital text of every page, in document order.
type PageTextReader interface {
	PageTexts(content []byte) ([]string, error)
}

var errNoPages = errors.New("pdf has no pages")

// LedongthucReader reads page text with github.com/ledongthuc/pdf.
type LedongthucReader struct{}

// PageTexts implements PageTextReader.
func (LedongthucReader) PageTexts(content []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("read PDF: panic: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	n := r.NumPage()
	if n == 0 {
		return nil, errNoPages
	}
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// PDFCPUReader parses page content streams with pdfcpu. It understands fewer font encodings than
// LedongthucReader but tolerates more damaged files.
type PDFCPUReader struct{}

// PageTexts implements PageTextReader.
func (PDFCPUReader) PageTexts(content []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("pdfcpu: panic: %v", r)
		}
	}()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(content), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	if ctx.PageCount == 0 {
		return nil, errNoPages
	}
	pages = make([]string, 0, ctx.PageCount)
	for p := 1; p <= ctx.PageCount; p++ {
		r, err := pdfcpu.ExtractPageContent(ctx, p)
		if err != nil || r == nil {
			pages = append(pages, "")
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, parseContentStream(data))
	}
	return pages, nil
}

type pdfStrategy struct {
	readers   []PageTextReader
	ocr       OCRService
	renderer  PageRenderer
	threshold float64
	maxPages  int
	scale     float64
}

func newPDFStrategy(opts Options) *pdfStrategy {
	return &pdfStrategy{
		readers:   []PageTextReader{LedongthucReader{}, PDFCPUReader{}},
		ocr:       opts.OCR,
		renderer:  opts.Renderer,
		threshold: opts.ScanThreshold,
		maxPages:  opts.MaxOCRPages,
		scale:     opts.RenderScale,
	}
}

// WithPageReaders replaces the digital text readers of the PDF strategy.
func WithPageReaders(readers ...PageTextReader) Option {
	return func(e *Extractor) {
		if s, ok := e.strategies[format.PDF].(*pdfStrategy); ok {
			s.readers = readers
		}
	}
}

func (s *pdfStrategy) Extract(ctx context.Context, file models.SourceFile, progress ProgressFunc) (Result, error) {
	res := Result{Method: MethodDigitalText}
	pages := s.readPages(file.Bytes, &res)
	res.PageCount = len(pages)

	var parts []string
	totalChars := 0
	for _, p := range pages {
		p = strings.TrimSpace(p)
		totalChars += utf8.RuneCountInString(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	res.Text = strings.Join(parts, "\n\n")
	progress.report(fmt.Sprintf("read %d pages", len(pages)))

	if s.looksScanned(totalChars, len(pages)) {
		s.ocrFallback(ctx, file.Bytes, len(pages), &res, progress)
	}
	return res, nil
}

func (s *pdfStrategy) readPages(content []byte, res *Result) []string {
	for _, r := range s.readers {
		pages, err := r.PageTexts(content)
		if err != nil {
			res.warn("pdf text: %v", err)
			continue
		}
		if len(pages) > 0 {
			return pages
		}
	}
	return nil
}

// looksScanned is the scan heuristic: few characters per page means the pages are images.
func (s *pdfStrategy) looksScanned(totalChars, pageCount int) bool {
	if pageCount == 0 || totalChars == 0 {
		return true
	}
	return float64(totalChars)/float64(pageCount) < s.threshold
}

// ocrFallback renders the first pages and replaces the text only when OCR found more of it.
func (s *pdfStrategy) ocrFallback(ctx context.Context, content []byte, pageCount int, res *Result, progress ProgressFunc) {
	if s.renderer == nil || s.ocr == nil {
		res.warn("document looks scanned but OCR is not configured")
		return
	}
	n := s.maxPages
	if pageCount > 0 && pageCount < n {
		n = pageCount
	}
	progress.report(fmt.Sprintf("document looks scanned; running OCR on up to %d pages", n))
	images, err := s.renderer.RenderPages(ctx, content, n, s.scale)
	if err != nil {
		res.warn("render pages: %v", err)
		return
	}
	if len(images) > n {
		images = images[:n]
	}
	if len(images) == 0 {
		res.warn("render pages: no images")
		return
	}
	rec, err := s.ocr.Recognize(ctx, images, "pdf")
	if err != nil {
		res.warn("%v", &ServiceError{Service: "ocr", Err: err})
		return
	}
	res.warn("ocr: %d pages in %dms", len(images), rec.Latency.Milliseconds())
	ocrText := strings.TrimSpace(rec.Text)
	if len(ocrText) <= len(res.Text) {
		res.warn("ocr text not longer than digital text; kept digital text")
		return
	}
	res.Text = ocrText
	res.Method = MethodOCR
}

// parseContentStream collects the string operands of text showing operators.
func parseContentStream(data []byte) string {
	var (
		b       strings.Builder
		pending []string
	)
	flush := func(sep string) {
		if sep != "" && b.Len() > 0 {
			b.WriteString(sep)
		}
		for _, s := range pending {
			b.WriteString(s)
		}
		pending = pending[:0]
	}
	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case c == '(':
			s, next := readLiteral(data, i)
			pending = append(pending, s)
			i = next
		case c == '<':
			if i+1 < len(data) && data[i+1] == '<' {
				i += 2
				continue
			}
			end := bytes.IndexByte(data[i:], '>')
			if end < 0 {
				i = len(data)
				continue
			}
			pending = append(pending, decodeHexString(data[i+1:i+end]))
			i += end + 1
		case isRegular(c):
			start := i
			for i < len(data) && isRegular(data[i]) {
				i++
			}
			switch string(data[start:i]) {
			case "Tj", "TJ":
				flush("")
			case "'", "\"":
				flush("\n")
			case "T*", "ET":
				if b.Len() > 0 {
					b.WriteByte('\n')
				}
				pending = pending[:0]
			case "Td", "TD":
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				pending = pending[:0]
			default:
				if !isNumeric(data[start:i]) {
					pending = pending[:0]
				}
			}
		default:
			i++
		}
	}
	return normalizeSpaces(b.String())
}

func isRegular(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0, '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}

func isNumeric(tok []byte) bool {
	for _, c := range tok {
		if (c < '0' || c > '9') && c != '.' && c != '-' && c != '+' {
			return false
		}
	}
	return len(tok) > 0
}

// readLiteral decodes a parenthesized string starting at data[start] and returns the index after it.
func readLiteral(data []byte, start int) (string, int) {
	var b strings.Builder
	depth := 0
	i := start
	for ; i < len(data); i++ {
		c := data[i]
		switch {
		case c == '\\' && i+1 < len(data):
			i++
			switch e := data[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b', 'f':
			case '\r', '\n':
			default:
				if e >= '0' && e <= '7' {
					val := 0
					for k := 0; k < 3 && i < len(data) && data[i] >= '0' && data[i] <= '7'; k++ {
						val = val*8 + int(data[i]-'0')
						i++
					}
					i--
					b.WriteRune(rune(byte(val)))
				} else {
					b.WriteByte(e)
				}
			}
		case c == '(':
			if depth > 0 {
				b.WriteByte(c)
			}
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return b.String(), i + 1
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), i
}

func decodeHexString(hex []byte) string {
	var out []byte
	var hi byte
	half := false
	for _, c := range hex {
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'a' && c <= 'f':
			v = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v = c - 'A' + 10
		default:
			continue
		}
		if half {
			out = append(out, hi<<4|v)
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		out = append(out, hi<<4)
	}
	if !utf8.Valid(out) {
		return strings.ToValidUTF8(string(out), "")
	}
	return string(out)
}

func normalizeSpaces(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
