package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/xhad/veritas/internal/models"
)

// MemoryStore is an in-process index with the same semantics as
// VectorStore. It backs the CLI when no database is configured.
type MemoryStore struct {
	mu          sync.RWMutex
	created     bool
	rows        []row
	searchLimit int
}

func NewMemory() *MemoryStore {
	return &MemoryStore{searchLimit: 5}
}

func (m *MemoryStore) Store(_ context.Context, docs []models.ProcessedDocument) error {
	records, err := rows(docs)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.rows) > 0 && len(m.rows[0].embedding) != len(records[0].embedding) {
		return ErrEmbeddingMismatch
	}
	m.created = true
	m.rows = append(m.rows, records...)
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, embedding []float32, limit int) ([]models.DocumentChunk, error) {
	if limit <= 0 {
		limit = m.searchLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.created {
		return nil, ErrNoIndex
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunks := make([]models.DocumentChunk, 0, len(m.rows))
	for _, r := range m.rows {
		chunks = append(chunks, models.DocumentChunk{
			Content: r.content,
			Score:   cosineDistance(embedding, r.embedding),
		})
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score < chunks[j].Score })

	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	return chunks, nil
}

func (m *MemoryStore) Close() {}

// cosineDistance matches pgvector's <=> operator.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
