package config

import (
	"sort"
	"time"

	"github.com/hyperjump/quill/internal/format"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/quill/data/db/quill.db"
	}
	if cfg.Pipeline.ScanThreshold == 0 {
		cfg.Pipeline.ScanThreshold = 100
	}
	if cfg.Pipeline.MaxOCRPages == 0 {
		cfg.Pipeline.MaxOCRPages = 10
	}
	if cfg.Pipeline.RenderScale == 0 {
		cfg.Pipeline.RenderScale = 2.0
	}
	if cfg.Pipeline.AIMinChars == 0 {
		cfg.Pipeline.AIMinChars = 50
	}
	if cfg.Pipeline.AIMaxInputChars == 0 {
		cfg.Pipeline.AIMaxInputChars = 12000
	}
	if cfg.Pipeline.Timeout == 0 {
		cfg.Pipeline.Timeout = 5 * time.Minute
	}
	if cfg.Pipeline.PlaceholderTTL == 0 {
		cfg.Pipeline.PlaceholderTTL = time.Hour
	}
	if cfg.Pipeline.PdftoppmPath == "" {
		cfg.Pipeline.PdftoppmPath = "pdftoppm"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 8192
	}
	if cfg.LLM.Provider == "ollama" && cfg.LLM.OllamaHost == "" {
		cfg.LLM.OllamaHost = "http://localhost:11434"
	}
	if cfg.Gemini.OCRModel == "" {
		cfg.Gemini.OCRModel = "gemini-1.5-flash"
	}
	if cfg.Gemini.TranscriptionModel == "" {
		cfg.Gemini.TranscriptionModel = "gemini-1.5-flash"
	}
	if cfg.Activity.Window == 0 {
		cfg.Activity.Window = 50
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = format.Extensions()
		sort.Strings(cfg.Watch.Extensions)
	}
	if cfg.Watch.Plan == "" {
		cfg.Watch.Plan = "free"
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
