package extract

import (
	"context"
	"strings"
	"unicode"

	"github.com/lu4p/cat"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/quill/internal/models"
)

type wordStrategy struct {
	legacy bool
}

func newWordStrategy(legacy bool) *wordStrategy {
	return &wordStrategy{legacy: legacy}
}

// Extract tries the structural converter and the generic container reader in an order that depends
// on the container generation, then falls back to a stripped decode of the raw bytes.
func (s *wordStrategy) Extract(ctx context.Context, file models.SourceFile, progress ProgressFunc) (Result, error) {
	res := Result{Method: MethodContainer}
	steps := []func() bool{
		func() bool { return s.tryConverter(ctx, file.Bytes, &res) },
		func() bool { return tryContainerReader(file.Bytes, &res) },
	}
	if s.legacy {
		steps[0], steps[1] = steps[1], steps[0]
	}
	for _, step := range steps {
		if step() {
			progress.report("document converted")
			return res, nil
		}
	}
	res.Text = stripNonPrintable(file.Bytes)
	res.Method = MethodPassthrough
	res.warn("container extraction failed; used stripped decode")
	progress.report("document decoded")
	return res, nil
}

func (s *wordStrategy) tryConverter(ctx context.Context, content []byte, res *Result) bool {
	text, markup, err := convertDocx(ctx, content)
	if err != nil {
		res.warn("docx converter: %v", err)
		return false
	}
	if strings.TrimSpace(text) == "" {
		res.warn("docx converter: no text")
		return false
	}
	res.Text, res.Markup = text, markup
	return true
}

// convertDocx produces text and markup from the same buffer concurrently.
func convertDocx(ctx context.Context, content []byte) (text, markup string, err error) {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		text, err = docxToText(content)
		return err
	})
	g.Go(func() error {
		var err error
		markup, err = docxToHTML(content)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return text, markup, nil
}

func tryContainerReader(content []byte, res *Result) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			res.warn("container reader panic: %v", r)
			ok = false
		}
	}()
	text, err := cat.FromBytes(content)
	if err != nil {
		res.warn("container reader: %v", err)
		return false
	}
	if strings.TrimSpace(text) == "" {
		res.warn("container reader: no text")
		return false
	}
	res.Text, res.Markup = strings.TrimSpace(text), ""
	return true
}

// stripNonPrintable decodes raw bytes and keeps only printable runs, collapsing whitespace.
func stripNonPrintable(content []byte) string {
	text, _ := decodeText(content)
	var b strings.Builder
	space := false
	for _, r := range text {
		switch {
		case r == '\n':
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			space = false
		case unicode.IsSpace(r):
			space = b.Len() > 0
		case unicode.IsPrint(r) && r != unicode.ReplacementChar:
			if space {
				b.WriteByte(' ')
				space = false
			}
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(collapseNewlines(b.String()))
}

func collapseNewlines(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}
