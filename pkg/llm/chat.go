package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"

	"github.com/xhad/veritas/internal/types"
	"github.com/xhad/veritas/pkg/logging"
)

// ErrEmptyResponse is returned when the model answered with no text.
var ErrEmptyResponse = errors.New("generation backend returned an empty response")

// ChatConfig represents the configuration for a generation backend.
type ChatConfig struct {
	Provider  string // ollama | openai
	Model     string
	BaseURL   string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
	Logger    *zap.Logger
}

// NewWithConfig returns the generation backend for config.Provider.
func NewWithConfig(config ChatConfig) (types.Backend, error) {
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	config.Logger = logging.OrNop(config.Logger)

	switch config.Provider {
	case "ollama":
		if config.Model == "" {
			config.Model = "mistral" // Default Ollama model
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		model, err := ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		return NewChatEngine(model, config.MaxTokens, config.Logger), nil
	case "openai", "":
		return NewOpenAIBackend(OpenAIConfig{
			BaseURL:   config.BaseURL,
			APIKey:    config.APIKey,
			Model:     config.Model,
			MaxTokens: config.MaxTokens,
			Timeout:   config.Timeout,
			Logger:    config.Logger,
		})
	default:
		return nil, fmt.Errorf("unknown generation provider %q", config.Provider)
	}
}

// ChatEngine adapts any langchaingo model to a Backend.
type ChatEngine struct {
	llm       llms.Model
	maxTokens int
	logger    *zap.Logger
}

func NewChatEngine(model llms.Model, maxTokens int, logger *zap.Logger) *ChatEngine {
	logger = logging.OrNop(logger)
	return &ChatEngine{llm: model, maxTokens: maxTokens, logger: logger}
}

// Generate sends one system and one user message and returns the first choice.
func (ce *ChatEngine) Generate(ctx context.Context, system, prompt string, temperature float64) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if ce.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(ce.maxTokens))
	}

	start := time.Now()
	response, err := ce.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", ErrEmptyResponse
	}

	text := response.Choices[0].Content
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}

	ce.logger.Debug("Generated response",
		zap.Int("chars", len(text)),
		zap.Duration("elapsed", time.Since(start)))
	return text, nil
}
