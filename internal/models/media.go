package models

import "time"

// PageImage is one raster image submitted to the OCR service.
type PageImage struct {
	Page      int    `json:"page"`
	MediaType string `json:"media_type"`
	Data      []byte `json:"-"`
}

// Recognition is the text returned by an OCR or transcription service call.
type Recognition struct {
	Text    string        `json:"text"`
	Latency time.Duration `json:"latency_ms"`
}
