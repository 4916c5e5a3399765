package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"

	"github.com/hyperjump/quill/internal/models"
)

func TestRecognize_requiresAPIKey(t *testing.T) {
	c := New(Config{})
	_, err := c.Recognize(context.Background(), []models.PageImage{{Page: 1, MediaType: "image/png", Data: []byte{1}}}, "pdf")
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("err = %v", err)
	}
	if _, err := c.Transcribe(context.Background(), []byte{1}, "audio/mpeg"); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("err = %v", err)
	}
}

func TestRecognize_noPages(t *testing.T) {
	c := New(Config{})
	rec, err := c.Recognize(context.Background(), nil, "pdf")
	if err != nil || rec.Text != "" {
		t.Fatalf("got %+v, %v", rec, err)
	}
}

func TestNew_defaults(t *testing.T) {
	c := New(Config{APIKey: "k"})
	if c.cfg.OCRModel != DefaultOCRModel || c.cfg.TranscriptionModel != DefaultTranscriptionModel {
		t.Errorf("cfg = %+v", c.cfg)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close without client: %v", err)
	}
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text("Page one text\n"),
				genai.Blob{MIMEType: "image/png", Data: []byte{1}},
				genai.Text("Page two text "),
			}},
		}},
	}
	if got := responseText(resp); got != "Page one text\nPage two text" {
		t.Errorf("got %q", got)
	}
	if got := responseText(nil); got != "" {
		t.Errorf("nil response: %q", got)
	}
	if got := responseText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}); got != "" {
		t.Errorf("empty candidate: %q", got)
	}
}
