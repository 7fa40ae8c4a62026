// Package store holds the vector index of ingested document chunks.
package store

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/xhad/veritas/internal/models"
)

var (
	// ErrNoIndex is returned by Query before anything was ever stored.
	ErrNoIndex = errors.New("vector index has not been created")
	// ErrEmbeddingMismatch is returned when a document's chunks and
	// embeddings do not line up.
	ErrEmbeddingMismatch = errors.New("chunk and embedding counts differ")
)

type row struct {
	id         string
	documentID string
	url        string
	title      string
	content    string
	index      int
	embedding  []float32
	metadata   map[string]interface{}
}

// rows flattens docs into one row per chunk, checking every document
// before anything is written. Every row gets a fresh ID: the index is
// append-only, so storing a document again adds its chunks alongside the
// old ones instead of replacing them.
func rows(docs []models.ProcessedDocument) ([]row, error) {
	var out []row
	dim := -1
	for _, doc := range docs {
		if len(doc.Chunks) != len(doc.Embedding) {
			return nil, fmt.Errorf("%w: %s has %d chunks and %d embeddings",
				ErrEmbeddingMismatch, doc.URL, len(doc.Chunks), len(doc.Embedding))
		}
		title := sanitizeUTF8(doc.Title)
		for i, chunk := range doc.Chunks {
			if dim == -1 {
				dim = len(doc.Embedding[i])
			}
			if len(doc.Embedding[i]) == 0 || len(doc.Embedding[i]) != dim {
				return nil, fmt.Errorf("%w: %s chunk %d has dimension %d",
					ErrEmbeddingMismatch, doc.URL, i, len(doc.Embedding[i]))
			}
			out = append(out, row{
				id:         uuid.NewString(),
				documentID: doc.ID,
				url:        doc.URL,
				title:      title,
				content:    sanitizeUTF8(chunk),
				index:      i,
				embedding:  doc.Embedding[i],
				metadata:   doc.Metadata,
			})
		}
	}
	return out, nil
}

// sanitizeUTF8 drops invalid bytes and NULs, which Postgres text rejects.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		s = string(v)
	}
	return strings.ReplaceAll(s, "\x00", "")
}
