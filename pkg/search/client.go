// Package search is the web evidence source: it drives a search tool server
// and a page fetch tool server over MCP.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xhad/veritas/internal/models"
	"github.com/xhad/veritas/pkg/logging"
	"github.com/xhad/veritas/pkg/mcp"
)

var (
	// ErrFetch wraps every FetchPage failure.
	ErrFetch = errors.New("content fetch failed")
	// ErrEmptyContent is returned when the fetch tool produced no text.
	ErrEmptyContent = errors.New("fetched content is empty")
)

// Tool names a tool server connection.
type Tool string

const (
	ToolSearch Tool = "search"
	ToolFetch  Tool = "fetch"
)

// Session is a live connection to one tool server.
type Session interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.ToolResult, error)
	Connected() bool
	Close() error
}

// Connector opens a session to the server backing a tool.
type Connector interface {
	Connect(ctx context.Context, tool Tool) (Session, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, tool Tool) (Session, error)

func (f ConnectorFunc) Connect(ctx context.Context, tool Tool) (Session, error) {
	return f(ctx, tool)
}

// StdioConnector spawns tool servers as subprocesses.
type StdioConnector struct {
	Commands map[Tool]mcp.Command
	Logger   *zap.Logger
}

func (c StdioConnector) Connect(ctx context.Context, tool Tool) (Session, error) {
	command, ok := c.Commands[tool]
	if !ok {
		return nil, fmt.Errorf("no command configured for tool %q", tool)
	}
	info := mcp.ClientInfo{Name: "veritas-" + string(tool), Version: "1.0.0"}
	return mcp.Dial(ctx, command, info, c.Logger)
}

type ClientConfig struct {
	Connector  Connector
	MaxResults int
	Timeout    time.Duration // per connect and per tool call
	Logger     *zap.Logger
}

// Client holds at most one session per tool. Sessions are opened on first
// use; concurrent first callers share one connect.
type Client struct {
	config ClientConfig
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[Tool]Session
	group    singleflight.Group
}

func NewWithConfig(config ClientConfig) (*Client, error) {
	if config.Connector == nil {
		return nil, errors.New("search client requires a connector")
	}
	if config.MaxResults == 0 {
		config.MaxResults = 10
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	logger := logging.OrNop(config.Logger)

	return &Client{
		config:   config,
		logger:   logger,
		sessions: make(map[Tool]Session),
	}, nil
}

func (c *Client) session(tool Tool) (Session, error) {
	c.mu.Lock()
	if s, ok := c.sessions[tool]; ok && s.Connected() {
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(string(tool), func() (interface{}, error) {
		c.mu.Lock()
		if s, ok := c.sessions[tool]; ok {
			if s.Connected() {
				c.mu.Unlock()
				return s, nil
			}
			// The server died under us; drop it and reconnect.
			delete(c.sessions, tool)
			c.mu.Unlock()
			_ = s.Close()
		} else {
			c.mu.Unlock()
		}

		// Shared by every waiter, so one caller's cancellation must not abort it.
		connectCtx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
		defer cancel()

		s, err := c.config.Connector.Connect(connectCtx, tool)
		if err != nil {
			c.logger.Error("Failed to initialize tool client", zap.String("tool", string(tool)), zap.Error(err))
			return nil, err
		}

		c.mu.Lock()
		c.sessions[tool] = s
		c.mu.Unlock()

		c.logger.Info("Tool client initialized", zap.String("tool", string(tool)))
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Session), nil
}

// Search queries the web. It never fails: when the tool cannot be used the
// result is FallbackResults(query).
func (c *Client) Search(ctx context.Context, query string, maxResults int) []models.SearchResult {
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}

	results, err := c.search(ctx, query, maxResults)
	if err != nil {
		c.logger.Warn("Web search failed, using fallback results", zap.String("query", query), zap.Error(err))
		return FallbackResults(query)
	}

	c.logger.Info("Web search finished", zap.String("query", query), zap.Int("results", len(results)))
	return results
}

func (c *Client) search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	s, err := c.session(ToolSearch)
	if err != nil {
		return nil, err
	}

	// The connect has its own budget; the call gets a full one after it.
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	result, err := s.CallTool(ctx, "search", map[string]interface{}{
		"query":       query,
		"max_results": maxResults,
	})
	if err != nil {
		return nil, err
	}

	return ParseResults(result.Text()), nil
}

// FetchPage returns the text content of url. Unlike Search it reports
// failures, wrapped in ErrFetch.
func (c *Client) FetchPage(ctx context.Context, url string) (string, error) {
	s, err := c.session(ToolFetch)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFetch, url, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	result, err := s.CallTool(ctx, "fetch", map[string]interface{}{"url": url})
	if err != nil {
		c.logger.Error("Content fetch error", zap.String("url", url), zap.Error(err))
		return "", fmt.Errorf("%w: %s: %w", ErrFetch, url, err)
	}

	content := result.Text()
	if content == "" {
		return "", fmt.Errorf("%w: %s: %w", ErrFetch, url, ErrEmptyContent)
	}

	c.logger.Debug("Fetched page", zap.String("url", url), zap.Int("chars", len(content)))
	return content, nil
}

// Close shuts down both tool sessions. The client can be used again
// afterwards; sessions are reopened lazily.
func (c *Client) Close() error {
	c.mu.Lock()
	sessions := c.sessions
	c.sessions = make(map[Tool]Session)
	c.mu.Unlock()

	var errs []error
	for tool, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", tool, err))
		}
	}
	return errors.Join(errs...)
}
