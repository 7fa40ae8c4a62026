package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		Provider    string        `yaml:"provider"` // ollama | openai
		BaseURL     string        `yaml:"base_url"`
		APIKey      string        `yaml:"api_key"`
		Model       string        `yaml:"model"`
		MaxTokens   int           `yaml:"max_tokens"`
		Temperature float64       `yaml:"temperature"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"llm"`

	Embedder struct {
		Provider string `yaml:"provider"` // ollama | huggingface | openai
		BaseURL  string `yaml:"base_url"`
		APIKey   string `yaml:"api_key"`
		Model    string `yaml:"model"`
	} `yaml:"embedder"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"database"`

	Search struct {
		SearchCommand string        `yaml:"search_command"`
		FetchCommand  string        `yaml:"fetch_command"`
		MaxResults    int           `yaml:"max_results"`
		Timeout       time.Duration `yaml:"timeout"`
	} `yaml:"search"`

	Scraper struct {
		RateLimit float64       `yaml:"rate_limit"`
		Timeout   time.Duration `yaml:"timeout"`
		MaxBytes  int64         `yaml:"max_bytes"`
	} `yaml:"scraper"`

	Processor struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"processor"`

	Server struct {
		Addr           string        `yaml:"addr"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | console
	} `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	// A missing .env is fine; anything it sets is picked up by mergeWithEnv.
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"veritas.yaml",
			"veritas.yml",
			filepath.Join(os.Getenv("HOME"), ".config/veritas/config.yaml"),
			"/etc/veritas/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	if config.LLM.Model == "" {
		switch config.LLM.Provider {
		case "ollama":
			config.LLM.Model = "mistral"
		default:
			config.LLM.Model = "deepseek-ai/DeepSeek-V3-0324"
		}
	}
	if config.LLM.BaseURL == "" {
		switch config.LLM.Provider {
		case "ollama":
			config.LLM.BaseURL = "http://localhost:11434"
		default:
			config.LLM.BaseURL = "https://router.huggingface.co/v1"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 60 * time.Second
	}

	if config.Embedder.Provider == "" {
		config.Embedder.Provider = "ollama"
	}
	if config.Embedder.Model == "" && config.Embedder.Provider == "ollama" {
		config.Embedder.Model = "nomic-embed-text:latest"
	}
	if config.Embedder.BaseURL == "" && config.Embedder.Provider == "ollama" {
		config.Embedder.BaseURL = "http://localhost:11434"
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "documents"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Search.SearchCommand == "" {
		config.Search.SearchCommand = "uvx duckduckgo-mcp-server"
	}
	if config.Search.FetchCommand == "" {
		config.Search.FetchCommand = "uvx mcp-server-fetch"
	}
	if config.Search.MaxResults == 0 {
		config.Search.MaxResults = 10
	}
	if config.Search.Timeout == 0 {
		config.Search.Timeout = 30 * time.Second
	}

	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 30 * time.Second
	}
	if config.Scraper.MaxBytes == 0 {
		config.Scraper.MaxBytes = 32 << 20
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 200
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.RequestTimeout == 0 {
		config.Server.RequestTimeout = 2 * time.Minute
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "json"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if config.LLM.Provider == "ollama" {
			config.LLM.BaseURL = baseURL
		}
		if config.Embedder.Provider == "" || config.Embedder.Provider == "ollama" {
			config.Embedder.BaseURL = baseURL
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if key := os.Getenv("HUGGINGFACE_API_KEY"); key != "" {
		if config.LLM.APIKey == "" {
			config.LLM.APIKey = key
		}
		if config.Embedder.APIKey == "" {
			config.Embedder.APIKey = key
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if config.LLM.APIKey == "" {
			config.LLM.APIKey = key
		}
		if config.Embedder.Provider == "openai" && config.Embedder.APIKey == "" {
			config.Embedder.APIKey = key
		}
	}
	if port := os.Getenv("VERITAS_PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
}
