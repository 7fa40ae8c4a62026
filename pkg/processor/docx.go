package processor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fumiama/go-docx"
)

// extractDOCX returns the text of a Word document, one line per paragraph
// or table.
func extractDOCX(content []byte) (string, error) {
	doc, err := docx.Parse(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: not a docx document: %w", ErrUndecodable, err)
	}

	var lines []string
	for _, item := range doc.Document.Body.Items {
		switch item.(type) {
		case *docx.Paragraph, *docx.Table:
			lines = append(lines, fmt.Sprint(item))
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
