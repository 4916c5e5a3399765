package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/quill/internal/config"
	"github.com/hyperjump/quill/internal/extract"
	"github.com/hyperjump/quill/internal/gemini"
	"github.com/hyperjump/quill/internal/llm"
	"github.com/hyperjump/quill/internal/pipeline"
	"github.com/hyperjump/quill/internal/plan"
	"github.com/hyperjump/quill/internal/provenance"
	"github.com/hyperjump/quill/internal/render"
	"github.com/hyperjump/quill/internal/storage"
	"github.com/hyperjump/quill/internal/structure"
	"github.com/hyperjump/quill/pkg/utils"
)

// Components holds the wired application services.
type Components struct {
	Storage      *storage.SQLiteStorage
	Orchestrator *pipeline.Orchestrator
	Recorder     *provenance.Recorder
	Reaper       *pipeline.Reaper
	Gate         *plan.Gate
	gemini       *gemini.Client
	poppler      *render.Poppler
}

// Close releases all resources.
func (c *Components) Close() {
	if c.gemini != nil {
		_ = c.gemini.Close()
	}
	if c.poppler != nil {
		_ = c.poppler.Shutdown()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	gate, err := plan.FromConfig(cfg.Plans)
	if err != nil {
		return nil, fmt.Errorf("invalid plans: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Storage: store, Gate: gate}

	opts := extract.Options{
		ScanThreshold: cfg.Pipeline.ScanThreshold,
		MaxOCRPages:   cfg.Pipeline.MaxOCRPages,
		RenderScale:   cfg.Pipeline.RenderScale,
	}
	if cfg.Gemini.APIKey != "" {
		c.gemini = gemini.New(gemini.Config{
			APIKey:             cfg.Gemini.APIKey,
			OCRModel:           cfg.Gemini.OCRModel,
			TranscriptionModel: cfg.Gemini.TranscriptionModel,
		}, gemini.WithLogger(utils.Named(logger, "gemini")))
		opts.OCR = c.gemini
		opts.Transcriber = c.gemini
	} else {
		logger.Info("gemini api key not set; OCR and transcription disabled")
	}

	poppler := render.NewPoppler(render.WithBinary(cfg.Pipeline.PdftoppmPath), render.WithLogger(utils.Named(logger, "render")))
	if err := poppler.Initialize(); err != nil {
		logger.Warn("page renderer unavailable; scanned PDFs will not be OCRed", zap.Error(err))
	} else {
		c.poppler = poppler
		opts.Renderer = poppler
	}

	extractor, err := extract.NewExtractor(opts, extract.WithLogger(utils.Named(logger, "extract")))
	if err != nil {
		c.Close()
		return nil, err
	}

	var completer structure.Completer
	if cfg.LLM.Provider != "" {
		client, err := llm.New(llm.Config{
			Provider:   cfg.LLM.Provider,
			Model:      cfg.LLM.Model,
			APIKey:     cfg.LLM.APIKey,
			OllamaHost: cfg.LLM.OllamaHost,
		})
		if err != nil {
			logger.Warn("language model unavailable; AI structuring disabled", zap.Error(err))
		} else {
			completer = client
		}
	}
	engine := structure.NewEngine(completer,
		structure.WithLogger(utils.Named(logger, "structure")),
		structure.WithModel(cfg.LLM.Model),
		structure.WithSampling(cfg.LLM.TemperatureOrDefault(), cfg.LLM.MaxTokens),
		structure.WithLimits(cfg.Pipeline.AIMinChars, cfg.Pipeline.AIMaxInputChars))

	c.Recorder = provenance.NewRecorder(store,
		provenance.WithLogger(utils.Named(logger, "activity")),
		provenance.WithWindow(cfg.Activity.Window))
	c.Orchestrator = pipeline.New(store, extractor, engine, gate, c.Recorder,
		pipeline.WithLogger(utils.Named(logger, "pipeline")),
		pipeline.WithTimeout(cfg.Pipeline.Timeout))
	c.Reaper = pipeline.NewReaper(store, cfg.Pipeline.PlaceholderTTL, 0, utils.Named(logger, "reaper"))
	return c, nil
}

// reapOnStart removes placeholders left by a previous crash.
func (c *Components) reapOnStart(ctx context.Context, logger *zap.Logger) {
	if _, err := c.Reaper.ReapOnce(ctx); err != nil {
		logger.Warn("failed to reap placeholders", zap.Error(err))
	}
}
