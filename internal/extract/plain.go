package extract

import (
	"bytes"
	"context"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/hyperjump/quill/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText turns bytes into a string. Invalid input never fails: it is decoded as Windows-1252
// and a warning is returned.
func decodeText(content []byte) (string, []string) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if bytes.HasPrefix(content, []byte{0xFF, 0xFE}) || bytes.HasPrefix(content, []byte{0xFE, 0xFF}) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		if out, err := dec.Bytes(content); err == nil {
			return string(out), nil
		}
	}
	if utf8.Valid(content) {
		return string(content), nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(content)
	if err != nil {
		return strings.ToValidUTF8(string(content), "\ufffd"), []string{"invalid UTF-8; replaced undecodable bytes"}
	}
	return string(out), []string{"invalid UTF-8; decoded as Windows-1252"}
}

type textKind int

const (
	kindPlain textKind = iota
	kindMarkdown
	kindHTML
)

func detectTextKind(file models.SourceFile) textKind {
	mt := strings.ToLower(file.MediaType)
	switch {
	case strings.Contains(mt, "markdown"):
		return kindMarkdown
	case strings.Contains(mt, "html"):
		return kindHTML
	}
	switch file.Ext() {
	case ".md", ".markdown":
		return kindMarkdown
	case ".html", ".htm", ".xhtml":
		return kindHTML
	}
	return kindPlain
}

type plainStrategy struct {
	md    *converter.Converter
	strip *bluemonday.Policy
}

func newPlainStrategy() *plainStrategy {
	return &plainStrategy{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		strip: bluemonday.StrictPolicy(),
	}
}

func (s *plainStrategy) Extract(_ context.Context, file models.SourceFile, progress ProgressFunc) (Result, error) {
	text, warnings := decodeText(file.Bytes)
	res := Result{Text: text, Method: MethodPassthrough, Warnings: warnings}
	switch detectTextKind(file) {
	case kindMarkdown:
		res.Markup = markdownToHTML(text)
	case kindHTML:
		res.Markup = text
		md, err := s.md.ConvertString(text)
		if err != nil {
			res.warn("html conversion failed: %v", err)
			md = html.UnescapeString(s.strip.Sanitize(text))
		}
		res.Text = strings.TrimSpace(md)
	default:
		res.Markup = paragraphsToHTML(text)
	}
	progress.report("text decoded")
	return res, nil
}

var (
	mdH3     = regexp.MustCompile(`(?m)^### (.*)$`)
	mdH2     = regexp.MustCompile(`(?m)^## (.*)$`)
	mdH1     = regexp.MustCompile(`(?m)^# (.*)$`)
	mdBold   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdItalic = regexp.MustCompile(`\*([^*\n]+)\*`)
	newline  = regexp.MustCompile(`\r?\n`)
)

// markdownToHTML applies a small fixed set of substitutions. It is not a markdown parser.
func markdownToHTML(text string) string {
	out := mdH3.ReplaceAllString(text, "<h3>$1</h3>")
	out = mdH2.ReplaceAllString(out, "<h2>$1</h2>")
	out = mdH1.ReplaceAllString(out, "<h1>$1</h1>")
	out = mdBold.ReplaceAllString(out, "<strong>$1</strong>")
	out = mdItalic.ReplaceAllString(out, "<em>$1</em>")
	return newline.ReplaceAllString(out, "<br>")
}

var blankLines = regexp.MustCompile(`\r?\n\s*\r?\n`)

// paragraphsToHTML wraps blank-line separated groups in <p> elements.
func paragraphsToHTML(text string) string {
	var b strings.Builder
	for _, group := range blankLines.Split(text, -1) {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(newline.ReplaceAllString(html.EscapeString(group), "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}
