package research

import (
	"context"
	"fmt"
	"strings"
)

// PageFetcher retrieves the readable content of a web page.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (string, error)
}

// FetchSource reads one source page. Unlike search, failures are returned
// to the caller, who asked for this specific content.
func FetchSource(ctx context.Context, fetcher PageFetcher, url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("a source URL is required")
	}
	content, err := fetcher.FetchPage(ctx, url)
	if err != nil {
		return "", fmt.Errorf("unable to fetch %s: %w", url, err)
	}
	return content, nil
}
