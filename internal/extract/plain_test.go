package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/hyperjump/quill/internal/models"
)

func extractPlainFile(t *testing.T, name, mediaType string, content []byte) Result {
	t.Helper()
	res, err := newPlainStrategy().Extract(context.Background(),
		models.SourceFile{Bytes: content, FileName: name, MediaType: mediaType}, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return res
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name     string
		in       []byte
		want     string
		warnings int
	}{
		{"utf8", []byte("caf\xc3\xa9"), "café", 0},
		{"utf8 bom", []byte("\xef\xbb\xbfhello"), "hello", 0},
		{"utf16le bom", []byte{0xFF, 0xFE, 'h', 0, 'i', 0}, "hi", 0},
		{"utf16be bom", []byte{0xFE, 0xFF, 0, 'h', 0, 'i'}, "hi", 0},
		{"windows-1252", []byte("caf\xe9 \x93quoted\x94"), "café “quoted”", 1},
	}
	for _, tt := range tests {
		got, warnings := decodeText(tt.in)
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
		if len(warnings) != tt.warnings {
			t.Errorf("%s: warnings = %v", tt.name, warnings)
		}
	}
}

func TestPlain_textWrapsParagraphs(t *testing.T) {
	res := extractPlainFile(t, "notes.txt", "text/plain", []byte("Hello\n\nWorld\nagain"))
	if res.Text != "Hello\n\nWorld\nagain" {
		t.Errorf("text = %q", res.Text)
	}
	if res.Markup != "<p>Hello</p><p>World<br>again</p>" {
		t.Errorf("markup = %q", res.Markup)
	}
	if res.Method != MethodPassthrough {
		t.Errorf("method = %s", res.Method)
	}
}

func TestPlain_markdownSubstitutions(t *testing.T) {
	res := extractPlainFile(t, "readme.md", "", []byte("# Title\n## Sub\nSome **bold** and *italic*"))
	want := "<h1>Title</h1><br><h2>Sub</h2><br>Some <strong>bold</strong> and <em>italic</em>"
	if res.Markup != want {
		t.Errorf("markup = %q, want %q", res.Markup, want)
	}
	if res.Text != "# Title\n## Sub\nSome **bold** and *italic*" {
		t.Errorf("text = %q", res.Text)
	}
}

func TestPlain_htmlPassesThrough(t *testing.T) {
	page := "<html><body><h1>Report</h1><p>First paragraph.</p></body></html>"
	res := extractPlainFile(t, "page.html", "text/html", []byte(page))
	if res.Markup != page {
		t.Errorf("markup changed: %q", res.Markup)
	}
	if strings.Contains(res.Text, "<p>") {
		t.Errorf("text still has tags: %q", res.Text)
	}
	if !strings.Contains(res.Text, "Report") || !strings.Contains(res.Text, "First paragraph.") {
		t.Errorf("text = %q", res.Text)
	}
}

func TestPlain_invalidUTF8Warns(t *testing.T) {
	res := extractPlainFile(t, "legacy.txt", "", []byte("na\xefve"))
	if res.Text != "naïve" {
		t.Errorf("text = %q", res.Text)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("warnings = %v", res.Warnings)
	}
}
