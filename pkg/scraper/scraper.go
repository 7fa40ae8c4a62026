package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xhad/veritas/internal/models"
	"github.com/xhad/veritas/pkg/logging"
)

// ErrTooLarge is returned when a document exceeds MaxBytes.
var ErrTooLarge = errors.New("document exceeds size limit")

type ScraperConfig struct {
	RateLimit float64 // requests per second
	Timeout   time.Duration
	MaxBytes  int64
	Client    *http.Client
	Logger    *zap.Logger
}

// Scraper downloads documents for ingestion.
type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewWithConfig(config ScraperConfig) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 32 << 20
	}

	client := config.Client
	if client == nil {
		client = &http.Client{
			Timeout: config.Timeout,
		}
	}

	logger := logging.OrNop(config.Logger)

	return &Scraper{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  logger,
	}
}

func New() *Scraper {
	return NewWithConfig(ScraperConfig{})
}

func validateURL(urlStr string) (*url.URL, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid document URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid document URL %q: scheme must be http or https", urlStr)
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid document URL %q: missing host", urlStr)
	}
	return parsedURL, nil
}

// Fetch downloads the raw bytes at urlStr.
func (s *Scraper) Fetch(ctx context.Context, urlStr string) (models.Document, error) {
	if _, err := validateURL(urlStr); err != nil {
		return models.Document{}, err
	}

	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return models.Document{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return models.Document{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to download %s: %w", urlStr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Document{}, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBytes+1))
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to read %s: %w", urlStr, err)
	}
	if int64(len(body)) > s.config.MaxBytes {
		return models.Document{}, fmt.Errorf("%s: %w", urlStr, ErrTooLarge)
	}

	// Each download is its own document, even when the URL was seen before.
	document := models.Document{
		ID:          uuid.NewString(),
		URL:         urlStr,
		Content:     body,
		ContentType: resp.Header.Get("Content-Type"),
		Metadata: map[string]interface{}{
			"time":         time.Now().UTC().Format(time.RFC3339),
			"contentType":  resp.Header.Get("Content-Type"),
			"lastModified": resp.Header.Get("Last-Modified"),
		},
	}

	s.logger.Info("Downloaded document", zap.String("url", urlStr), zap.Int("bytes", len(body)))
	return document, nil
}

func cleanContent(content string) string {
	// Remove extra whitespace
	content = strings.Join(strings.Fields(content), " ")

	// Remove common noise
	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

// ExtractText returns the page title and the text of its main content area.
func ExtractText(r io.Reader) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", "", err
	}
	doc.Find("script, style, noscript").Remove()

	// Try to find main content area
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	// Fallback to body if no main content found
	if strings.TrimSpace(content) == "" {
		content = doc.Find("body").Text()
	}

	return strings.TrimSpace(doc.Find("title").First().Text()), cleanContent(content), nil
}
