// Command veritas answers questions from web evidence and uploaded
// documents, over HTTP, WebSocket or an interactive terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xhad/veritas/internal/types"
	cfgPkg "github.com/xhad/veritas/pkg/config"
	"github.com/xhad/veritas/pkg/llm"
	"github.com/xhad/veritas/pkg/logging"
	"github.com/xhad/veritas/pkg/mcp"
	"github.com/xhad/veritas/pkg/processor"
	"github.com/xhad/veritas/pkg/rag"
	"github.com/xhad/veritas/pkg/research"
	"github.com/xhad/veritas/pkg/scraper"
	"github.com/xhad/veritas/pkg/search"
	"github.com/xhad/veritas/pkg/store"
)

var (
	configPath string
	config     *cfgPkg.Config
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "veritas",
	Short: "Research assistant grounded in web search and your documents",
	Long: `veritas answers questions with a language model, backed by evidence
from web search and from documents you upload. Answers come with a
confidence score and the sources they were built from.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cfgPkg.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			msgs := make([]string, len(errs))
			for i, e := range errs {
				msgs[i] = e.Error()
			}
			return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
		}

		l, err := logging.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		config, logger = cfg, l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./veritas.yaml or ~/.config/veritas/config.yaml)")
}

// pipeline holds every component built from the configuration.
type pipeline struct {
	searcher     *search.Client
	retriever    *rag.Retriever
	orchestrator *research.Orchestrator
	store        types.VectorStore
}

func (p *pipeline) Close() {
	if err := p.searcher.Close(); err != nil {
		logger.Warn("Error closing search client", zap.Error(err))
	}
	p.store.Close()
}

func buildPipeline() (*pipeline, error) {
	searchCommand, err := mcp.ParseCommand(config.Search.SearchCommand)
	if err != nil {
		return nil, fmt.Errorf("search command: %w", err)
	}
	fetchCommand, err := mcp.ParseCommand(config.Search.FetchCommand)
	if err != nil {
		return nil, fmt.Errorf("fetch command: %w", err)
	}

	searcher, err := search.NewWithConfig(search.ClientConfig{
		Connector: search.StdioConnector{
			Commands: map[search.Tool]mcp.Command{
				search.ToolSearch: searchCommand,
				search.ToolFetch:  fetchCommand,
			},
			Logger: logger.Named("mcp"),
		},
		MaxResults: config.Search.MaxResults,
		Timeout:    config.Search.Timeout,
		Logger:     logger.Named("search"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize search client: %w", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  config.Embedder.Provider,
		Model:     config.Embedder.Model,
		BaseURL:   config.Embedder.BaseURL,
		APIKey:    config.Embedder.APIKey,
		BatchSize: config.Database.BatchSize,
	})
	if err != nil {
		searcher.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	var vectorStore types.VectorStore
	if config.Database.URL != "" {
		vectorStore, err = store.NewWithConfig(store.VectorStoreConfig{
			ConnString: config.Database.URL,
			TableName:  config.Database.TableName,
			VectorDim:  config.Database.VectorDim,
			Logger:     logger.Named("store"),
		})
		if err != nil {
			searcher.Close()
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
	} else {
		logger.Info("No database configured, documents are kept in memory")
		vectorStore = store.NewMemory()
	}

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    config.Processor.ChunkSize,
		ChunkOverlap: config.Processor.ChunkOverlap,
		Logger:       logger.Named("processor"),
	})

	retriever, err := rag.NewWithConfig(rag.RetrieverConfig{
		Fetcher: scraper.NewWithConfig(scraper.ScraperConfig{
			RateLimit: config.Scraper.RateLimit,
			Timeout:   config.Scraper.Timeout,
			MaxBytes:  config.Scraper.MaxBytes,
			Logger:    logger.Named("scraper"),
		}),
		Processor: &proc,
		Embedder:  embedder,
		Store:     vectorStore,
		Logger:    logger.Named("rag"),
	})
	if err != nil {
		searcher.Close()
		vectorStore.Close()
		return nil, err
	}

	backend, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:  config.LLM.Provider,
		Model:     config.LLM.Model,
		BaseURL:   config.LLM.BaseURL,
		APIKey:    config.LLM.APIKey,
		MaxTokens: config.LLM.MaxTokens,
		Timeout:   config.LLM.Timeout,
		Logger:    logger.Named("llm"),
	})
	if err != nil {
		searcher.Close()
		vectorStore.Close()
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	orchestrator, err := research.NewOrchestrator(research.OrchestratorConfig{
		Searcher:  searcher,
		Retriever: retriever,
		Generator: research.NewGenerator(research.GeneratorConfig{
			Backend:     backend,
			Temperature: config.LLM.Temperature,
			Timeout:     config.LLM.Timeout,
			Logger:      logger.Named("generator"),
		}),
		MaxResults: config.Search.MaxResults,
		Logger:     logger.Named("research"),
	})
	if err != nil {
		searcher.Close()
		vectorStore.Close()
		return nil, err
	}

	return &pipeline{
		searcher:     searcher,
		retriever:    retriever,
		orchestrator: orchestrator,
		store:        vectorStore,
	}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
