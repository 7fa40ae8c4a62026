package search

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/xhad/veritas/internal/models"
)

// ParseResults turns the search tool's text block into results. "Title:"
// opens a record, "URL:" and "Snippet:" fill it in, and only records that
// have both a title and a URL are kept.
func ParseResults(text string) []models.SearchResult {
	var (
		results []models.SearchResult
		current models.SearchResult
	)

	flush := func() {
		if current.Title != "" && current.URL != "" {
			results = append(results, current)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "Title:"):
			flush()
			current = models.SearchResult{Title: field(line, "Title:")}
		case strings.HasPrefix(line, "URL:"):
			current.URL = field(line, "URL:")
		case strings.HasPrefix(line, "Snippet:"):
			current.Snippet = field(line, "Snippet:")
			current.Description = current.Snippet
		}
	}
	flush()

	return results
}

func field(line, prefix string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, prefix))
}

var whitespace = regexp.MustCompile(`\s+`)

// FallbackResults returns the two placeholder sources used when the search
// tool cannot be reached.
func FallbackResults(query string) []models.SearchResult {
	return []models.SearchResult{
		{
			Title:       "Wikipedia - " + query,
			URL:         "https://en.wikipedia.org/wiki/" + whitespace.ReplaceAllString(query, "_"),
			Snippet:     "Comprehensive overview of " + query + ". Learn about the key concepts, history, and applications.",
			Description: "Encyclopedia entry covering " + query + ".",
		},
		{
			Title:       "Academic Research on " + query,
			URL:         "https://scholar.google.com/scholar?q=" + url.QueryEscape(query),
			Snippet:     "Peer-reviewed studies examining " + query + ".",
			Description: "Academic papers on " + query + ".",
		},
	}
}
