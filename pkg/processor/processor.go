package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"

	"github.com/xhad/veritas/internal/models"
	"github.com/xhad/veritas/pkg/logging"
	"github.com/xhad/veritas/pkg/scraper"
)

var (
	// ErrUnsupportedFormat is returned for file types that cannot be read as text.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrUndecodable is returned when content does not decode as its format.
	ErrUndecodable = errors.New("document content could not be decoded")
	// ErrEmptyDocument is returned when a document holds no text at all.
	ErrEmptyDocument = errors.New("document contains no text")
)

// Format is how a document's bytes are decoded.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatHTML Format = "html"
	FormatText Format = "text"
)

var unsupportedExtensions = map[string]bool{
	".doc": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".odt": true, ".rtf": true, ".epub": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true,
	".zip": true, ".gz": true, ".tar": true, ".7z": true, ".rar": true,
	".exe": true, ".bin": true, ".dll": true, ".so": true,
	".mp3": true, ".mp4": true, ".wav": true, ".mov": true,
}

// Classify picks the decoder for a document from its URL's extension.
func Classify(documentURL string) (Format, error) {
	p := documentURL
	if u, err := url.Parse(documentURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))

	switch {
	case ext == ".pdf":
		return FormatPDF, nil
	case ext == ".docx":
		return FormatDOCX, nil
	case ext == ".html" || ext == ".htm":
		return FormatHTML, nil
	case unsupportedExtensions[ext]:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	default:
		return FormatText, nil
	}
}

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
	Logger       *zap.Logger
}

type Processor struct {
	config   ProcessorConfig
	splitter textsplitter.RecursiveCharacter
	logger   *zap.Logger
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 200
	}
	if len(config.Separators) == 0 {
		// paragraph, line, sentence, word, character
		config.Separators = []string{"\n\n", "\n", ". ", " ", ""}
	}
	logger := logging.OrNop(config.Logger)

	return Processor{
		config: config,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(config.ChunkSize),
			textsplitter.WithChunkOverlap(config.ChunkOverlap),
			textsplitter.WithSeparators(config.Separators),
		),
		logger: logger,
	}
}

// Process decodes a downloaded document and splits it into chunks.
func (p *Processor) Process(ctx context.Context, doc models.Document) (models.ProcessedDocument, error) {
	format, err := Classify(doc.URL)
	if err != nil {
		return models.ProcessedDocument{}, err
	}

	text, title, err := p.extract(ctx, format, doc.Content)
	if err != nil {
		return models.ProcessedDocument{}, err
	}
	if strings.TrimSpace(text) == "" {
		return models.ProcessedDocument{}, ErrEmptyDocument
	}
	if doc.Title == "" {
		doc.Title = title
	}

	chunks, err := p.Split(text)
	if err != nil {
		return models.ProcessedDocument{}, err
	}

	p.logger.Debug("Processed document",
		zap.String("url", doc.URL),
		zap.String("format", string(format)),
		zap.Int("chars", utf8.RuneCountInString(text)),
		zap.Int("chunks", len(chunks)))

	return models.ProcessedDocument{
		Document: doc,
		Text:     text,
		Chunks:   chunks,
	}, nil
}

// Split cuts text into overlapping chunks on the largest separator that fits.
func (p *Processor) Split(text string) ([]string, error) {
	chunks, err := p.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	out := chunks[:0]
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk) != "" {
			out = append(out, chunk)
		}
	}
	return out, nil
}

func (p *Processor) extract(ctx context.Context, format Format, content []byte) (text, title string, err error) {
	switch format {
	case FormatPDF:
		return extractPDF(ctx, content)
	case FormatDOCX:
		text, err := extractDOCX(content)
		return text, "", err
	case FormatHTML:
		if !utf8.Valid(content) {
			return "", "", fmt.Errorf("%w: html is not valid UTF-8", ErrUndecodable)
		}
		title, text, err := scraper.ExtractText(bytes.NewReader(content))
		if err != nil {
			return "", "", fmt.Errorf("%w: %w", ErrUndecodable, err)
		}
		return text, title, nil
	default:
		if !utf8.Valid(content) || bytes.IndexByte(content, 0) >= 0 {
			return "", "", fmt.Errorf("%w: content is not UTF-8 text", ErrUndecodable)
		}
		return string(content), "", nil
	}
}

func extractPDF(ctx context.Context, content []byte) (text, title string, err error) {
	defer func() {
		// The PDF reader panics on some malformed files.
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: malformed pdf: %v", ErrUndecodable, r)
		}
	}()

	loader := documentloaders.NewPDF(bytes.NewReader(content), int64(len(content)))
	pages, err := loader.Load(ctx)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrUndecodable, err)
	}

	parts := make([]string, 0, len(pages))
	for _, page := range pages {
		if s := strings.TrimSpace(page.PageContent); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n"), "", nil
}
