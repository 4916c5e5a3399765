package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/quill/internal/format"
	"github.com/hyperjump/quill/internal/models"
)

type fakeTranscriber struct {
	text      string
	err       error
	calls     int
	mediaType string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte, mediaType string) (models.Recognition, error) {
	f.calls++
	f.mediaType = mediaType
	return models.Recognition{Text: f.text, Latency: 40 * time.Millisecond}, f.err
}

func TestAudio_prefixesTranscription(t *testing.T) {
	tr := &fakeTranscriber{text: "Remember to call the supplier."}
	e := newTestExtractor(t, Options{Transcriber: tr})
	file := models.SourceFile{Bytes: []byte("ID3"), FileName: "memo.mp3", MediaType: "application/octet-stream"}

	res := e.Extract(context.Background(), format.Audio, file, nil)
	if tr.calls != 1 {
		t.Fatalf("transcriber calls = %d", tr.calls)
	}
	if tr.mediaType != "audio/mpeg" {
		t.Errorf("media type = %q", tr.mediaType)
	}
	if !strings.HasPrefix(res.Text, "Audio Transcription: memo.mp3\n") {
		t.Errorf("text = %q", res.Text)
	}
	if !strings.HasSuffix(res.Text, "Remember to call the supplier.") {
		t.Errorf("text = %q", res.Text)
	}
	if res.Method != MethodTranscription {
		t.Errorf("method = %s", res.Method)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "40ms") {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestAudio_serviceFailureIsTyped(t *testing.T) {
	s := &audioStrategy{transcriber: &fakeTranscriber{err: errors.New("network down")}}
	_, err := s.Extract(context.Background(), models.SourceFile{Bytes: []byte{1}, FileName: "a.wav"}, nil)
	var se *ServiceError
	if !errors.As(err, &se) || se.Service != "transcription" {
		t.Fatalf("err = %v", err)
	}
}

func TestImage_singleOCRCall(t *testing.T) {
	ocr := &fakeOCR{text: "INVOICE 42"}
	e := newTestExtractor(t, Options{OCR: ocr})
	file := models.SourceFile{Bytes: []byte{0x89, 'P', 'N', 'G'}, FileName: "scan.jpg", MediaType: "image/jpeg"}

	res := e.Extract(context.Background(), format.Image, file, nil)
	if ocr.calls != 1 || len(ocr.batches[0]) != 1 {
		t.Fatalf("ocr calls = %d", ocr.calls)
	}
	if ocr.batches[0][0].MediaType != "image/jpeg" {
		t.Errorf("media type = %q", ocr.batches[0][0].MediaType)
	}
	if res.Text != "INVOICE 42" || res.Method != MethodOCR {
		t.Errorf("got %q via %s", res.Text, res.Method)
	}
}

func TestImage_unconfiguredServiceWarns(t *testing.T) {
	e := newTestExtractor(t, Options{})
	res := e.Extract(context.Background(), format.Image, models.SourceFile{Bytes: []byte{1}, FileName: "a.png"}, nil)
	if !res.Placeholder {
		t.Errorf("expected placeholder")
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "not configured") {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestInferMediaType(t *testing.T) {
	tests := []struct {
		file models.SourceFile
		want string
	}{
		{models.SourceFile{MediaType: "audio/ogg; codecs=opus", FileName: "x.mp3"}, "audio/ogg"},
		{models.SourceFile{MediaType: "application/octet-stream", FileName: "x.M4A"}, "audio/mp4"},
		{models.SourceFile{FileName: "x"}, "audio/mpeg"},
	}
	for _, tt := range tests {
		if got := inferMediaType(tt.file, "audio/", audioMediaTypes, "audio/mpeg"); got != tt.want {
			t.Errorf("inferMediaType(%+v) = %q, want %q", tt.file, got, tt.want)
		}
	}
}
