// Package config provides configuration loading and structs for the Quill server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate for unusable settings.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all configuration for the application.
type Config struct {
	Debug    bool                `yaml:"debug"`
	Server   ServerConfig        `yaml:"server"`
	Storage  StorageConfig       `yaml:"storage"`
	Pipeline PipelineConfig      `yaml:"pipeline"`
	LLM      LLMConfig           `yaml:"llm"`
	Gemini   GeminiConfig        `yaml:"gemini"`
	Plans    map[string][]string `yaml:"plans,omitempty"`
	Activity ActivityConfig      `yaml:"activity"`
	Watch    WatchConfig         `yaml:"watch"`

	// secrets as read from the file, before the environment overlay
	fileSecrets Secrets
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the database location.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// PipelineConfig tunes extraction and structuring.
type PipelineConfig struct {
	ScanThreshold   float64       `yaml:"scan_threshold"`
	MaxOCRPages     int           `yaml:"max_ocr_pages"`
	RenderScale     float64       `yaml:"render_scale"`
	AIMinChars      int           `yaml:"ai_min_chars"`
	AIMaxInputChars int           `yaml:"ai_max_input_chars"`
	Timeout         time.Duration `yaml:"timeout"`
	PlaceholderTTL  time.Duration `yaml:"placeholder_ttl"`
	PdftoppmPath    string        `yaml:"pdftoppm_path"`
}

// LLMConfig selects the language model used for AI structuring. An empty provider disables it.
type LLMConfig struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"api_key,omitempty"`
	OllamaHost  string   `yaml:"ollama_host"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// TemperatureOrDefault returns the sampling temperature; defaults to 0.1 when unset.
func (l *LLMConfig) TemperatureOrDefault() float64 {
	if l.Temperature != nil {
		return *l.Temperature
	}
	return 0.1
}

// GeminiConfig configures OCR and transcription. An empty API key disables both.
type GeminiConfig struct {
	APIKey             string `yaml:"api_key,omitempty"`
	OCRModel           string `yaml:"ocr_model"`
	TranscriptionModel string `yaml:"transcription_model"`
}

// ActivityConfig holds activity view settings.
type ActivityConfig struct {
	Window int `yaml:"window"`
}

// WatchConfig holds inbox directory settings. Files found there are imported as the configured
// user and opened in the editor.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	WorkspaceID string   `yaml:"workspace_id"`
	UserID      string   `yaml:"user_id"`
	UserName    string   `yaml:"user_name"`
	Plan        string   `yaml:"plan"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Secrets are overlaid from QUILL_-prefixed environment variables.
type Secrets struct {
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	LLMAPIKey    string `envconfig:"LLM_API_KEY"`
}

// Load reads and parses the config file at path, expands paths, applies defaults and overlays
// secrets from the environment. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Pipeline.PdftoppmPath != "" && strings.ContainsRune(cfg.Pipeline.PdftoppmPath, filepath.Separator) {
		cfg.Pipeline.PdftoppmPath = expandPath(cfg.Pipeline.PdftoppmPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.OverlayEnv(filepath.Join(configDir, ".env"), ".env"); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// OverlayEnv loads the given .env files when present and replaces API keys with any set
// QUILL_GEMINI_API_KEY or QUILL_LLM_API_KEY.
func (c *Config) OverlayEnv(envFiles ...string) error {
	for _, f := range envFiles {
		// Missing files are fine; variables may come from the shell.
		_ = godotenv.Load(f)
	}
	c.fileSecrets = Secrets{GeminiAPIKey: c.Gemini.APIKey, LLMAPIKey: c.LLM.APIKey}

	var s Secrets
	if err := envconfig.Process("quill", &s); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	if s.GeminiAPIKey != "" {
		c.Gemini.APIKey = s.GeminiAPIKey
	}
	if s.LLMAPIKey != "" {
		c.LLM.APIKey = s.LLMAPIKey
	}
	return nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d", ErrInvalid, c.Server.Port)
	}
	switch c.LLM.Provider {
	case "", "ollama", "openai", "anthropic":
	default:
		return fmt.Errorf("%w: llm.provider %q", ErrInvalid, c.LLM.Provider)
	}
	if c.Pipeline.PlaceholderTTL > 0 && c.Pipeline.PlaceholderTTL <= c.Pipeline.Timeout {
		return fmt.Errorf("%w: pipeline.placeholder_ttl must exceed pipeline.timeout", ErrInvalid)
	}
	return nil
}

// Save writes the config to path. Used for persisting watch directory add/remove. Secrets taken
// from the environment are not written.
func Save(path string, cfg *Config) error {
	out := *cfg
	out.Gemini.APIKey = cfg.fileSecrets.GeminiAPIKey
	out.LLM.APIKey = cfg.fileSecrets.LLMAPIKey
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
