package types

import (
	"context"

	"github.com/xhad/veritas/internal/models"
)

// Core interfaces

type VectorStore interface {
	// Store writes every chunk of every document or nothing at all.
	Store(ctx context.Context, docs []models.ProcessedDocument) error
	Query(ctx context.Context, embedding []float32, limit int) ([]models.DocumentChunk, error)
	Close()
}

type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) []models.SearchResult
}

type Retriever interface {
	Ingest(ctx context.Context, documentURL string) error
	Query(ctx context.Context, text string) ([]models.DocumentChunk, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (models.Document, error)
}

type Processor interface {
	Process(ctx context.Context, doc models.Document) (models.ProcessedDocument, error)
}

// Backend is a text-generation model taking a system and a user prompt.
type Backend interface {
	Generate(ctx context.Context, system, prompt string, temperature float64) (string, error)
}
