// Package extract provides text and markup extraction for every format family.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/quill/internal/format"
	"github.com/hyperjump/quill/internal/models"
)

// NoTextPlaceholder is returned as Text when nothing readable could be extracted.
const NoTextPlaceholder = "[no text could be extracted]"

// Method records which extraction path produced a result.
type Method string

const (
	MethodDigitalText   Method = "digital_text"
	MethodOCR           Method = "ocr"
	MethodContainer     Method = "container_extraction"
	MethodTranscription Method = "transcription"
	MethodPassthrough   Method = "passthrough"
)

// Result is the output of one extraction. Text is never empty.
type Result struct {
	Text        string   `json:"text"`
	Markup      string   `json:"markup,omitempty"`
	Method      Method   `json:"method"`
	Warnings    []string `json:"warnings,omitempty"`
	Placeholder bool     `json:"placeholder,omitempty"`
	PageCount   int      `json:"page_count,omitempty"`
}

func (r Result) String() string {
	return fmt.Sprintf("%s (%d chars, %d warnings)", r.Method, len(r.Text), len(r.Warnings))
}

func (r *Result) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ProgressFunc receives human-readable status messages. It may be nil.
type ProgressFunc func(message string)

func (p ProgressFunc) report(message string) {
	if p != nil {
		p(message)
	}
}

// ErrServiceUnavailable is wrapped by ServiceError when no client is configured.
var ErrServiceUnavailable = errors.New("service not configured")

// ServiceError reports a failed call to an external recognition service.
type ServiceError struct {
	Service string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s service: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// OCRService recognizes text in a batch of page images.
type OCRService interface {
	Recognize(ctx context.Context, pages []models.PageImage, documentType string) (models.Recognition, error)
}

// Transcriber converts speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mediaType string) (models.Recognition, error)
}

// PageRenderer rasterizes the first pages of a PDF.
type PageRenderer interface {
	RenderPages(ctx context.Context, pdf []byte, maxPages int, scale float64) ([]models.PageImage, error)
}

// Strategy extracts one format family. A returned error is reported as a warning on the partial
// result; it never aborts extraction.
type Strategy interface {
	Extract(ctx context.Context, file models.SourceFile, progress ProgressFunc) (Result, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, file models.SourceFile, progress ProgressFunc) (Result, error)

// Extract calls f.
func (f StrategyFunc) Extract(ctx context.Context, file models.SourceFile, progress ProgressFunc) (Result, error) {
	return f(ctx, file, progress)
}

// Options configures an Extractor.
type Options struct {
	OCR           OCRService
	Transcriber   Transcriber
	Renderer      PageRenderer
	ScanThreshold float64
	MaxOCRPages   int
	RenderScale   float64
}

// Defaults for the PDF scan heuristic and OCR fallback.
const (
	DefaultScanThreshold = 100
	DefaultMaxOCRPages   = 10
	DefaultRenderScale   = 2.0
)

// Option configures the extractor.
type Option func(*Extractor)

// WithLogger sets the logger for extraction warnings.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithStrategy overrides the strategy for one family.
func WithStrategy(f format.Family, s Strategy) Option {
	return func(e *Extractor) { e.strategies[f] = s }
}

// Extractor dispatches a classified file to its family strategy.
type Extractor struct {
	strategies map[format.Family]Strategy
	logger     *zap.Logger
}

// NewExtractor builds the strategy table and checks that every family has a strategy.
func NewExtractor(opts Options, options ...Option) (*Extractor, error) {
	if opts.ScanThreshold <= 0 {
		opts.ScanThreshold = DefaultScanThreshold
	}
	if opts.MaxOCRPages <= 0 {
		opts.MaxOCRPages = DefaultMaxOCRPages
	}
	if opts.RenderScale <= 0 {
		opts.RenderScale = DefaultRenderScale
	}
	e := &Extractor{
		strategies: map[format.Family]Strategy{
			format.Text:        newPlainStrategy(),
			format.ModernWord:  newWordStrategy(false),
			format.LegacyWord:  newWordStrategy(true),
			format.PDF:         newPDFStrategy(opts),
			format.Image:       &imageStrategy{ocr: opts.OCR},
			format.Audio:       &audioStrategy{transcriber: opts.Transcriber},
			format.Spreadsheet: StrategyFunc(extractSpreadsheet),
		},
	}
	for _, o := range options {
		o(e)
	}
	for _, f := range format.Families() {
		if e.strategies[f] == nil {
			return nil, fmt.Errorf("no extraction strategy for family %s", f)
		}
	}
	return e, nil
}

// Extract runs the strategy for family. It never fails: errors and panics from the strategy become
// warnings and an empty result becomes NoTextPlaceholder.
func (e *Extractor) Extract(ctx context.Context, family format.Family, file models.SourceFile, progress ProgressFunc) Result {
	res, err := e.run(ctx, family, file, progress)
	if err != nil {
		res.warn("%s extraction failed: %v", family, err)
		if e.logger != nil {
			e.logger.Warn("extraction failed",
				zap.String("family", family.String()),
				zap.String("file", file.FileName),
				zap.Error(err))
		}
	}
	if strings.TrimSpace(res.Text) == "" {
		res.Text = NoTextPlaceholder
		res.Placeholder = true
	}
	if res.Method == "" {
		res.Method = MethodPassthrough
	}
	return res
}

func (e *Extractor) run(ctx context.Context, family format.Family, file models.SourceFile, progress ProgressFunc) (res Result, err error) {
	s, ok := e.strategies[family]
	if !ok {
		s = e.strategies[format.Text]
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Extract(ctx, file, progress)
}
