package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xhad/veritas/internal/models"
)

func TestParseResults(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []models.SearchResult
	}{
		{
			name: "two records, second without snippet",
			text: "Title: A\nURL: http://a\nSnippet: s1\nTitle: B\nURL: http://b\n",
			want: []models.SearchResult{
				{Title: "A", URL: "http://a", Snippet: "s1", Description: "s1"},
				{Title: "B", URL: "http://b"},
			},
		},
		{
			name: "record without url is dropped",
			text: "Title: A\nSnippet: s1\nTitle: B\nURL: http://b\nSnippet: s2",
			want: []models.SearchResult{
				{Title: "B", URL: "http://b", Snippet: "s2", Description: "s2"},
			},
		},
		{
			name: "blank lines, noise and CRLF",
			text: "Found 1 results:\r\n\r\n1. Title: ignored\r\nTitle:   Spaced  \r\n\r\nURL: http://s \r\nSnippet: x\r\n",
			want: []models.SearchResult{
				{Title: "Spaced", URL: "http://s", Snippet: "x", Description: "x"},
			},
		},
		{
			name: "url before title belongs to nothing",
			text: "URL: http://orphan\nTitle: T\n",
			want: nil,
		},
		{
			name: "empty input",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseResults(tt.text))
		})
	}
}

func TestFallbackResults(t *testing.T) {
	results := FallbackResults("machine   learning basics")
	assert.Len(t, results, 2)

	assert.Equal(t, "Wikipedia - machine   learning basics", results[0].Title)
	assert.Equal(t, "https://en.wikipedia.org/wiki/machine_learning_basics", results[0].URL)
	assert.Equal(t, "Academic Research on machine   learning basics", results[1].Title)
	assert.Equal(t, "https://scholar.google.com/scholar?q=machine+++learning+basics", results[1].URL)

	for _, r := range results {
		assert.NotEmpty(t, r.Snippet)
		assert.NotEmpty(t, r.Description)
	}

	// Deterministic for a given query
	assert.Equal(t, results, FallbackResults("machine   learning basics"))
}

func FuzzParseResults(f *testing.F) {
	f.Add("Title: A\nURL: http://a\nSnippet: s1\nTitle: B\nURL: http://b\n")
	f.Add("URL:\nTitle:\nSnippet:")
	f.Fuzz(func(t *testing.T, text string) {
		for _, r := range ParseResults(text) {
			if r.Title == "" || r.URL == "" {
				t.Fatalf("incomplete record emitted: %+v", r)
			}
		}
	})
}
