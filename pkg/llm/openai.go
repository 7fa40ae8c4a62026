package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xhad/veritas/pkg/logging"
)

// OpenAIConfig configures a backend speaking the OpenAI chat completions
// API. The Hugging Face inference router is the default endpoint.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// OpenAIBackend generates text through an OpenAI-compatible endpoint.
type OpenAIBackend struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

func NewOpenAIBackend(config OpenAIConfig) (*OpenAIBackend, error) {
	if config.APIKey == "" {
		return nil, errors.New("generation backend requires an API key (HUGGINGFACE_API_KEY or OPENAI_API_KEY)")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://router.huggingface.co/v1"
	}
	if config.Model == "" {
		config.Model = "deepseek-ai/DeepSeek-V3-0324"
	}
	config.Logger = logging.OrNop(config.Logger)

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.HTTPClient != nil {
		clientConfig.HTTPClient = config.HTTPClient
	} else if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	return &OpenAIBackend{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     config.Model,
		maxTokens: config.MaxTokens,
		logger:    config.Logger,
	}, nil
}

func (b *OpenAIBackend) Generate(ctx context.Context, system, prompt string, temperature float64) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(temperature),
		MaxTokens:   b.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}

	b.logger.Debug("Generated response",
		zap.String("model", b.model),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return resp.Choices[0].Message.Content, nil
}
