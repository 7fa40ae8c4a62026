package rag_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"

	"github.com/xhad/veritas/pkg/processor"
	"github.com/xhad/veritas/pkg/rag"
	"github.com/xhad/veritas/pkg/scraper"
	"github.com/xhad/veritas/pkg/store"
)

// letterEmbedding is a deterministic bag-of-letters vector.
func letterEmbedding(text string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

func newEmbedder(t *testing.T, fail *atomic.Bool) embeddings.Embedder {
	t.Helper()
	emb, err := embeddings.NewEmbedder(embeddings.EmbedderClientFunc(
		func(_ context.Context, texts []string) ([][]float32, error) {
			if fail != nil && fail.Load() {
				return nil, errors.New("embedding service unavailable")
			}
			out := make([][]float32, len(texts))
			for i, text := range texts {
				out[i] = letterEmbedding(text)
			}
			return out, nil
		}))
	require.NoError(t, err)
	return emb
}

func newFileServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/notes.txt":
			var paragraphs []string
			for i := 0; i < 40; i++ {
				paragraphs = append(paragraphs, "Zebras zigzag across the zone while quietly grazing.")
				paragraphs = append(paragraphs, "Bees build hives and make honey in the summer months.")
			}
			w.Write([]byte(strings.Join(paragraphs, "\n\n")))
		case "/photo.png":
			w.Write([]byte{0x89, 'P', 'N', 'G', 0, 0})
		default:
			http.NotFound(w, r)
		}
	}))
}

type fixture struct {
	retriever *rag.Retriever
	store     *store.MemoryStore
	fail      *atomic.Bool
	server    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	server := newFileServer()
	t.Cleanup(server.Close)

	fail := &atomic.Bool{}
	mem := store.NewMemory()
	proc := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 200, ChunkOverlap: 40})

	r, err := rag.NewWithConfig(rag.RetrieverConfig{
		Fetcher:   scraper.NewWithConfig(scraper.ScraperConfig{RateLimit: 1000}),
		Processor: &proc,
		Embedder:  newEmbedder(t, fail),
		Store:     mem,
	})
	require.NoError(t, err)
	return &fixture{retriever: r, store: mem, fail: fail, server: server}
}

func TestQueryBeforeIngest(t *testing.T) {
	f := newFixture(t)
	_, err := f.retriever.Query(context.Background(), "zebras")
	assert.ErrorIs(t, err, rag.ErrNoDocuments)
}

func TestIngestAndQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.retriever.Ingest(ctx, f.server.URL+"/notes.txt"))

	chunks, err := f.retriever.Query(ctx, "zebras zigzag zone")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.LessOrEqual(t, len(chunks), rag.DefaultTopK)
	assert.Contains(t, chunks[0].Content, "Zebras")
	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, chunks[i-1].Score, chunks[i].Score)
	}

	empty, err := f.retriever.Query(ctx, "   ")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestIngestUnsupportedFormatLeavesIndexEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.retriever.Ingest(ctx, f.server.URL+"/photo.png")
	require.ErrorIs(t, err, processor.ErrUnsupportedFormat)

	_, err = f.retriever.Query(ctx, "anything")
	assert.ErrorIs(t, err, rag.ErrNoDocuments)
}

func TestIngestEmbeddingFailureStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fail.Store(true)
	err := f.retriever.Ingest(ctx, f.server.URL+"/notes.txt")
	require.ErrorContains(t, err, "failed to embed document")

	f.fail.Store(false)
	_, err = f.retriever.Query(ctx, "zebras")
	assert.ErrorIs(t, err, rag.ErrNoDocuments)
}

func TestIngestFetchFailure(t *testing.T) {
	f := newFixture(t)
	err := f.retriever.Ingest(context.Background(), f.server.URL+"/missing.txt")
	assert.ErrorContains(t, err, "failed to fetch document")
}

func TestNewWithConfigRequiresDependencies(t *testing.T) {
	_, err := rag.NewWithConfig(rag.RetrieverConfig{})
	assert.Error(t, err)
}
