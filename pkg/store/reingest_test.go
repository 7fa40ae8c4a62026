package store_test

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/veritas/internal/models"
	"github.com/xhad/veritas/internal/types"
	"github.com/xhad/veritas/pkg/store"
)

// storeTwice stores the same document ID and URL twice, first with three
// chunks and then with one, and checks that every chunk is kept.
func storeTwice(t *testing.T, s types.VectorStore) {
	t.Helper()
	ctx := context.Background()

	first := models.ProcessedDocument{
		Document:  models.Document{ID: "report", URL: "https://example.com/report.txt"},
		Chunks:    []string{"old one", "old two", "old three"},
		Embedding: [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	}
	second := models.ProcessedDocument{
		Document:  first.Document,
		Chunks:    []string{"new one"},
		Embedding: [][]float32{{1, 0, 0}},
	}

	require.NoError(t, s.Store(ctx, []models.ProcessedDocument{first}))
	require.NoError(t, s.Store(ctx, []models.ProcessedDocument{second}))

	chunks, err := s.Query(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)

	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	sort.Strings(contents)
	assert.Equal(t, []string{"new one", "old one", "old three", "old two"}, contents)
}

func TestMemoryStoreReingestAppends(t *testing.T) {
	storeTwice(t, store.NewMemory())
}

func TestVectorStoreReingestAppends(t *testing.T) {
	s, err := store.NewWithConfig(getTestConfig(t))
	require.NoError(t, err)
	defer s.Close()

	storeTwice(t, s)
}
