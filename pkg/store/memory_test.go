package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/veritas/internal/models"
)

func doc(id string, chunks []string, vectors [][]float32) models.ProcessedDocument {
	return models.ProcessedDocument{
		Document:  models.Document{ID: id, URL: "https://example.com/" + id},
		Chunks:    chunks,
		Embedding: vectors,
	}
}

func TestMemoryStoreQueryBeforeStore(t *testing.T) {
	m := NewMemory()
	_, err := m.Query(context.Background(), []float32{1, 0}, 5)
	assert.ErrorIs(t, err, ErrNoIndex)
}

func TestMemoryStoreOrdersByDistance(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Store(ctx, []models.ProcessedDocument{
		doc("a", []string{"north", "east", "north-east"}, [][]float32{{0, 1}, {1, 0}, {1, 1}}),
	}))

	chunks, err := m.Query(ctx, []float32{0, 2}, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "north", chunks[0].Content)
	assert.InDelta(t, 0, chunks[0].Score, 1e-9)
	assert.Equal(t, "north-east", chunks[1].Content)
	assert.Greater(t, chunks[1].Score, chunks[0].Score)

	all, err := m.Query(ctx, []float32{0, 2}, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryStoreIsAllOrNothing(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.Store(ctx, []models.ProcessedDocument{
		doc("good", []string{"fine"}, [][]float32{{1, 0}}),
		doc("bad", []string{"one", "two"}, [][]float32{{1, 0}}),
	})
	require.ErrorIs(t, err, ErrEmbeddingMismatch)

	_, err = m.Query(ctx, []float32{1, 0}, 5)
	assert.ErrorIs(t, err, ErrNoIndex)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Store(ctx, []models.ProcessedDocument{doc("seed", []string{"seed"}, [][]float32{{1, 1}})}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Store(ctx, []models.ProcessedDocument{doc("x", []string{"x"}, [][]float32{{1, 0}})}))
		}()
		go func() {
			defer wg.Done()
			_, err := m.Query(ctx, []float32{1, 0}, 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	chunks, err := m.Query(ctx, []float32{1, 0}, 100)
	require.NoError(t, err)
	assert.Len(t, chunks, 9)
}

func TestRowsRejectsMixedDimensions(t *testing.T) {
	_, err := rows([]models.ProcessedDocument{
		doc("a", []string{"one", "two"}, [][]float32{{1, 0}, {1, 0, 0}}),
	})
	assert.ErrorIs(t, err, ErrEmbeddingMismatch)
}

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "hello", sanitizeUTF8("hel\xfflo"))
	assert.Equal(t, "ab", sanitizeUTF8("a\x00b"))
	assert.Equal(t, "héllo", sanitizeUTF8("héllo"))
}
