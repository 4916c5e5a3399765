// Package gemini adapts the Gemini API to the OCR and transcription services used by extraction.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/hyperjump/quill/internal/models"
)

// Default model names.
const (
	DefaultOCRModel           = "gemini-1.5-flash"
	DefaultTranscriptionModel = "gemini-1.5-flash"
)

// ErrNoAPIKey is returned when no Gemini API key is configured.
var ErrNoAPIKey = errors.New("gemini api key not configured")

const ocrPrompt = `Transcribe all readable text in the attached %s page images, in reading order.
Return plain text only. Separate pages with a blank line. Do not describe the images.`

const transcriptionPrompt = `Transcribe the attached audio verbatim. Return plain text only, one paragraph per speaker turn.`

// Config holds the API key and model names.
type Config struct {
	APIKey             string
	OCRModel           string
	TranscriptionModel string
}

// Client implements extract.OCRService and extract.Transcriber.
type Client struct {
	cfg        Config
	clientOpts []option.ClientOption
	logger     *zap.Logger

	mu     sync.Mutex
	client *genai.Client
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClientOptions passes extra options to the underlying genai client, e.g. a test endpoint.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(c *Client) { c.clientOpts = append(c.clientOpts, opts...) }
}

// New returns a client. The underlying connection is opened on first use.
func New(cfg Config, opts ...Option) *Client {
	if cfg.OCRModel == "" {
		cfg.OCRModel = DefaultOCRModel
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = DefaultTranscriptionModel
	}
	c := &Client{cfg: cfg, logger: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) getClient(ctx context.Context) (*genai.Client, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	opts := append(append([]option.ClientOption{}, c.clientOpts...), option.WithAPIKey(c.cfg.APIKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c.client = client
	return client, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// Recognize sends all page images in one request.
func (c *Client) Recognize(ctx context.Context, pages []models.PageImage, documentType string) (models.Recognition, error) {
	if len(pages) == 0 {
		return models.Recognition{}, nil
	}
	parts := make([]genai.Part, 0, len(pages)+1)
	parts = append(parts, genai.Text(fmt.Sprintf(ocrPrompt, documentType)))
	for _, p := range pages {
		parts = append(parts, genai.Blob{MIMEType: p.MediaType, Data: p.Data})
	}
	return c.generate(ctx, c.cfg.OCRModel, "ocr", parts)
}

// Transcribe sends the audio blob in one request.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mediaType string) (models.Recognition, error) {
	parts := []genai.Part{
		genai.Text(transcriptionPrompt),
		genai.Blob{MIMEType: mediaType, Data: audio},
	}
	return c.generate(ctx, c.cfg.TranscriptionModel, "transcription", parts)
}

func (c *Client) generate(ctx context.Context, modelName, op string, parts []genai.Part) (models.Recognition, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return models.Recognition{}, err
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	start := time.Now()
	resp, err := model.GenerateContent(ctx, parts...)
	latency := time.Since(start)
	if err != nil {
		return models.Recognition{Latency: latency}, fmt.Errorf("%s: generate content: %w", op, err)
	}
	text := responseText(resp)
	c.logger.Debug("gemini call",
		zap.String("op", op),
		zap.String("model", modelName),
		zap.Int("parts", len(parts)),
		zap.Int("chars", len(text)),
		zap.Duration("latency", latency))
	return models.Recognition{Text: text, Latency: latency}, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String())
}
