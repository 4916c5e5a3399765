package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/quill/internal/models"
)

var imageMediaTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".heic": "image/heic",
}

var audioMediaTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".aac":  "audio/aac",
	".webm": "audio/webm",
}

// inferMediaType prefers a declared media type with the expected prefix, then the extension.
func inferMediaType(file models.SourceFile, prefix string, byExt map[string]string, fallback string) string {
	mt := strings.ToLower(strings.TrimSpace(file.MediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if strings.HasPrefix(mt, prefix) {
		return mt
	}
	if m, ok := byExt[file.Ext()]; ok {
		return m
	}
	return fallback
}

type imageStrategy struct {
	ocr OCRService
}

func (s *imageStrategy) Extract(ctx context.Context, file models.SourceFile, progress ProgressFunc) (Result, error) {
	res := Result{Method: MethodOCR}
	if s.ocr == nil {
		return res, &ServiceError{Service: "ocr", Err: ErrServiceUnavailable}
	}
	if len(file.Bytes) == 0 {
		res.warn("empty image")
		return res, nil
	}
	progress.report("running OCR")
	page := models.PageImage{
		Page:      1,
		MediaType: inferMediaType(file, "image/", imageMediaTypes, "image/png"),
		Data:      file.Bytes,
	}
	rec, err := s.ocr.Recognize(ctx, []models.PageImage{page}, "image")
	if err != nil {
		return res, &ServiceError{Service: "ocr", Err: err}
	}
	res.Text = rec.Text
	res.warn("ocr latency %dms", rec.Latency.Milliseconds())
	return res, nil
}

type audioStrategy struct {
	transcriber Transcriber
}

func (s *audioStrategy) Extract(ctx context.Context, file models.SourceFile, progress ProgressFunc) (Result, error) {
	res := Result{Method: MethodTranscription}
	if s.transcriber == nil {
		return res, &ServiceError{Service: "transcription", Err: ErrServiceUnavailable}
	}
	if len(file.Bytes) == 0 {
		res.warn("empty audio")
		return res, nil
	}
	progress.report("transcribing audio")
	mediaType := inferMediaType(file, "audio/", audioMediaTypes, "audio/mpeg")
	rec, err := s.transcriber.Transcribe(ctx, file.Bytes, mediaType)
	if err != nil {
		return res, &ServiceError{Service: "transcription", Err: err}
	}
	res.warn("transcription latency %dms", rec.Latency.Milliseconds())
	if strings.TrimSpace(rec.Text) == "" {
		return res, nil
	}
	res.Text = fmt.Sprintf("Audio Transcription: %s\n\n%s", file.FileName, rec.Text)
	return res, nil
}
