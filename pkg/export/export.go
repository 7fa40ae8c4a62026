// Package export renders a research answer as a downloadable report.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xhad/veritas/internal/models"
)

// ErrUnsupportedFormat is returned for formats without a renderer.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Data is the part of an answer that goes into a report.
type Data struct {
	Query       string          `json:"query"`
	Findings    string          `json:"findings"`
	Analysis    string          `json:"analysis"`
	Limitations string          `json:"limitations"`
	Reasoning   string          `json:"reasoning"`
	Sources     []models.Source `json:"sources"`
	Confidence  int             `json:"confidence"`
}

type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
)

// Report is a rendered export ready to be served as a file.
type Report struct {
	Body        string
	ContentType string
	Filename    string
}

// Render picks the renderer for format.
func Render(data Data, format Format, now time.Time) (Report, error) {
	stamp := now.UnixMilli()
	switch format {
	case FormatMarkdown:
		return Report{
			Body:        Markdown(data, now),
			ContentType: "text/markdown",
			Filename:    fmt.Sprintf("research-%d.md", stamp),
		}, nil
	case FormatText:
		return Report{
			Body:        Text(data, now),
			ContentType: "text/plain",
			Filename:    fmt.Sprintf("research-%d.txt", stamp),
		}, nil
	default:
		return Report{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

const timeLayout = "1/2/2006, 3:04:05 PM"

func Markdown(data Data, now time.Time) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Research Report: %s\n\n", data.Query)
	fmt.Fprintf(&sb, "## Confidence Score: %d%%\n\n", data.Confidence)
	fmt.Fprintf(&sb, "## Reasoning\n%s\n\n", data.Reasoning)
	fmt.Fprintf(&sb, "## Key Findings\n%s\n\n", data.Findings)
	fmt.Fprintf(&sb, "## Analysis\n%s\n\n", data.Analysis)
	fmt.Fprintf(&sb, "## Limitations\n%s\n\n", data.Limitations)

	sources := make([]string, len(data.Sources))
	for i, s := range data.Sources {
		sources[i] = fmt.Sprintf("%d. [%s](%s)\n   %s", i+1, s.Title, s.URL, s.Description)
	}
	fmt.Fprintf(&sb, "## Sources\n%s\n\n", strings.Join(sources, "\n"))

	fmt.Fprintf(&sb, "---\n*Generated on %s*\n", now.Format(timeLayout))
	return sb.String()
}

func Text(data Data, now time.Time) string {
	rule := strings.Repeat("-", 50)
	var sb strings.Builder

	fmt.Fprintf(&sb, "RESEARCH REPORT: %s\n%s\n\n", data.Query, strings.Repeat("=", 50))
	fmt.Fprintf(&sb, "CONFIDENCE SCORE: %d%%\n\n", data.Confidence)

	for _, section := range []struct{ title, body string }{
		{"REASONING", data.Reasoning},
		{"KEY FINDINGS", data.Findings},
		{"ANALYSIS", data.Analysis},
		{"LIMITATIONS", data.Limitations},
	} {
		fmt.Fprintf(&sb, "%s\n%s\n%s\n\n", section.title, rule, section.body)
	}

	sources := make([]string, len(data.Sources))
	for i, s := range data.Sources {
		sources[i] = fmt.Sprintf("%d. %s\n   URL: %s\n   %s", i+1, s.Title, s.URL, s.Description)
	}
	fmt.Fprintf(&sb, "SOURCES\n%s\n%s\n\n", rule, strings.Join(sources, "\n\n"))

	fmt.Fprintf(&sb, "Generated on %s\n", now.Format(timeLayout))
	return sb.String()
}
