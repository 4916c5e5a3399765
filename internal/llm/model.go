// Package llm wraps langchaingo chat models behind a provider-neutral completion call.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Supported providers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ErrNoChoices is returned when the provider answers without any completion.
var ErrNoChoices = errors.New("no response choices")

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a completion request. Model overrides the configured model when set.
type Request struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"maxTokens"`
	Model       string    `json:"model,omitempty"`
}

// Config selects and authenticates a provider.
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	OllamaHost string
}

// Client wraps a langchaingo model.
type Client struct {
	llm       llms.Model
	modelName string
}

// New creates a client for the configured provider.
func New(cfg Config) (*Client, error) {
	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.OllamaHost != "" {
			opts = append(opts, ollama.WithServerURL(cfg.OllamaHost))
		}
		model, err = ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai api key required")
		}
		model, err = openai.New(openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic api key required")
		}
		model, err = anthropic.New(anthropic.WithToken(cfg.APIKey), anthropic.WithModel(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
	return &Client{llm: model, modelName: cfg.Model}, nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, name string) *Client {
	return &Client{llm: model, modelName: name}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.modelName
}

// Complete sends the request and returns the raw text of the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]llms.MessageContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, llms.TextParts(chatType(m.Role), m.Content))
	}
	var opts []llms.CallOption
	opts = append(opts, llms.WithTemperature(req.Temperature))
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if name := req.Model; name != "" {
		opts = append(opts, llms.WithModel(name))
	} else if c.modelName != "" {
		opts = append(opts, llms.WithModel(c.modelName))
	}

	response, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", ErrNoChoices
	}
	return response.Choices[0].Content, nil
}

func chatType(r Role) llms.ChatMessageType {
	switch r {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
