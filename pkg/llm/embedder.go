package llm

import (
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	hfembeddings "github.com/tmc/langchaingo/embeddings/huggingface"
	"github.com/tmc/langchaingo/llms/huggingface"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// EmbedderConfig represents the configuration for an embedding model.
type EmbedderConfig struct {
	Provider  string // ollama | huggingface | openai
	Model     string
	BaseURL   string
	APIKey    string
	BatchSize int
}

// NewEmbedderWithConfig returns the embedder for config.Provider.
func NewEmbedderWithConfig(config EmbedderConfig) (embeddings.Embedder, error) {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}

	switch config.Provider {
	case "ollama", "":
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest" // Default Ollama model
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		return embeddings.NewEmbedder(emb, embeddings.WithBatchSize(config.BatchSize))

	case "huggingface":
		opts := []huggingface.Option{huggingface.WithToken(config.APIKey)}
		if config.BaseURL != "" {
			opts = append(opts, huggingface.WithURL(config.BaseURL))
		}
		client, err := huggingface.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		hfOpts := []hfembeddings.Option{
			hfembeddings.WithClient(*client),
			hfembeddings.WithBatchSize(config.BatchSize),
		}
		if config.Model != "" {
			hfOpts = append(hfOpts, hfembeddings.WithModel(config.Model))
		}
		return hfembeddings.NewHuggingface(hfOpts...)

	case "openai":
		opts := []openai.Option{openai.WithToken(config.APIKey)}
		if config.Model != "" {
			opts = append(opts, openai.WithEmbeddingModel(config.Model))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		return embeddings.NewEmbedder(client, embeddings.WithBatchSize(config.BatchSize))

	default:
		return nil, fmt.Errorf("unknown embedder provider %q", config.Provider)
	}
}
