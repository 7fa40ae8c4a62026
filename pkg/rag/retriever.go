// Package rag ingests user documents into the vector index and retrieves
// the chunks most relevant to a question.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"go.uber.org/zap"

	"github.com/xhad/veritas/internal/models"
	"github.com/xhad/veritas/internal/types"
	"github.com/xhad/veritas/pkg/logging"
	"github.com/xhad/veritas/pkg/store"
)

// ErrNoDocuments is returned by Query when nothing has ever been ingested.
var ErrNoDocuments = errors.New("no documents have been ingested")

// DefaultTopK is the number of chunks returned per query.
const DefaultTopK = 5

type RetrieverConfig struct {
	Fetcher   types.Fetcher
	Processor types.Processor
	Embedder  embeddings.Embedder
	Store     types.VectorStore
	TopK      int
	Logger    *zap.Logger
}

type Retriever struct {
	fetcher   types.Fetcher
	processor types.Processor
	embedder  embeddings.Embedder
	store     types.VectorStore
	topK      int
	logger    *zap.Logger

	// ingestMu serializes writers to the single index.
	ingestMu sync.Mutex
}

func NewWithConfig(config RetrieverConfig) (*Retriever, error) {
	switch {
	case config.Fetcher == nil:
		return nil, errors.New("retriever requires a fetcher")
	case config.Processor == nil:
		return nil, errors.New("retriever requires a processor")
	case config.Embedder == nil:
		return nil, errors.New("retriever requires an embedder")
	case config.Store == nil:
		return nil, errors.New("retriever requires a vector store")
	}
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	config.Logger = logging.OrNop(config.Logger)

	return &Retriever{
		fetcher:   config.Fetcher,
		processor: config.Processor,
		embedder:  config.Embedder,
		store:     config.Store,
		topK:      config.TopK,
		logger:    config.Logger,
	}, nil
}

// Ingest downloads, chunks and embeds a document, then stores every chunk
// or none of them.
func (r *Retriever) Ingest(ctx context.Context, documentURL string) error {
	start := time.Now()

	doc, err := r.fetcher.Fetch(ctx, documentURL)
	if err != nil {
		return fmt.Errorf("failed to fetch document: %w", err)
	}

	processed, err := r.processor.Process(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to process document: %w", err)
	}

	vectors, err := r.embedder.EmbedDocuments(ctx, processed.Chunks)
	if err != nil {
		return fmt.Errorf("failed to embed document: %w", err)
	}
	if len(vectors) != len(processed.Chunks) {
		return fmt.Errorf("failed to embed document: got %d embeddings for %d chunks",
			len(vectors), len(processed.Chunks))
	}
	processed.Embedding = vectors

	r.ingestMu.Lock()
	err = r.store.Store(ctx, []models.ProcessedDocument{processed})
	r.ingestMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}

	r.logger.Info("Ingested document",
		zap.String("url", documentURL),
		zap.Int("chunks", len(processed.Chunks)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Query returns up to TopK chunks nearest to text, or nil when none match.
func (r *Retriever) Query(ctx context.Context, text string) ([]models.DocumentChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	vector, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, err := r.store.Query(ctx, vector, r.topK)
	if errors.Is(err, store.ErrNoIndex) {
		return nil, ErrNoDocuments
	}
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	return chunks, nil
}
