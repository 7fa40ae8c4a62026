package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xhad/veritas/internal/models"
	"github.com/xhad/veritas/internal/types"
	"github.com/xhad/veritas/pkg/logging"
)

var errEmptyReply = errors.New("generation backend returned an empty reply")

// DefaultTemperature is the sampling temperature of every generation call.
const DefaultTemperature = 0.7

const systemPrompt = `You are a research-aware AI assistant that prioritizes accuracy and transparency.

CORE PRINCIPLES:
1. Acknowledge statistical confidence: Your conclusions are probabilistic, not certain
2. Ground responses in sources: Always cite where information comes from
3. Address limitations: Acknowledge what you don't know or where uncertainty exists
4. Use logical reasoning: Distinguish between deductive (theory→prediction) and inductive (observation→generalization) reasoning
5. Anticipate counterarguments: Show you've considered alternative perspectives

CONFIDENCE FRAMEWORK:
- High confidence (80-95%): Multiple corroborating sources, established research
- Medium confidence (50-80%): Limited sources or emerging research
- Low confidence (<50%): Speculative or contradictory information

RESPONSE STRUCTURE:
Provide your response in this exact format:

REASONING:
[Your step-by-step thinking process: how you evaluated sources, what patterns you identified, what assumptions you made]

FINDINGS:
[Key facts and discoveries from research, with source citations]

ANALYSIS:
[Interpretation and connections between findings, logical reasoning]

LIMITATIONS:
[What cannot be determined, uncertainties, areas needing further research]`

// SystemPrompt fixes the four-section answer format and the confidence bands.
func SystemPrompt() string {
	return systemPrompt
}

// BuildUserPrompt lays out the question and its evidence for the model.
func BuildUserPrompt(query string, rc models.ResearchContext) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "User Query: %s\n\n", query)

	if len(rc.DocumentChunks) > 0 {
		contents := make([]string, len(rc.DocumentChunks))
		for i, chunk := range rc.DocumentChunks {
			contents[i] = chunk.Content
		}
		fmt.Fprintf(&sb, "Relevant Document Sections:\n%s\n\n", strings.Join(contents, "\n\n"))
	}

	sb.WriteString("\nAvailable Research Sources:\n")
	lines := make([]string, len(rc.Sources))
	for i, s := range rc.Sources {
		lines[i] = fmt.Sprintf("- %s: %s", s.Title, s.URL)
	}
	sb.WriteString(strings.Join(lines, "\n"))

	fmt.Fprintf(&sb, "\n\nResearch Confidence Level: %d%%\n\n", rc.Confidence)
	sb.WriteString("Provide a structured response following the format above. Be concise but thorough.")

	return sb.String()
}

// UnavailableResponse is returned whenever the backend cannot answer.
func UnavailableResponse() models.StructuredResponse {
	return models.StructuredResponse{
		Reasoning:         "Unable to generate reasoning.",
		Findings:          "Unable to generate findings.",
		Analysis:          "Please try again.",
		Limitations:       "Error occurred during processing.",
		Sources:           []models.SourceWithConfidence{},
		OverallConfidence: 0,
	}
}

type GeneratorConfig struct {
	Backend     types.Backend
	Temperature float64
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Generator turns gathered evidence into a structured answer.
type Generator struct {
	backend     types.Backend
	temperature float64
	timeout     time.Duration
	logger      *zap.Logger
}

func NewGenerator(config GeneratorConfig) *Generator {
	if config.Temperature == 0 {
		config.Temperature = DefaultTemperature
	}
	config.Logger = logging.OrNop(config.Logger)
	return &Generator{
		backend:     config.Backend,
		temperature: config.Temperature,
		timeout:     config.Timeout,
		logger:      config.Logger,
	}
}

// Generate calls the backend once. It never fails: backend errors,
// timeouts and empty replies all yield UnavailableResponse.
func (g *Generator) Generate(ctx context.Context, query string, rc models.ResearchContext) models.StructuredResponse {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := g.backend.Generate(ctx, SystemPrompt(), BuildUserPrompt(query, rc), g.temperature)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyReply
	}
	if err != nil {
		g.logger.Error("Generation error",
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)))
		return UnavailableResponse()
	}

	sections := ParseSections(text)

	sources := make([]models.SourceWithConfidence, len(rc.Sources))
	for i, s := range rc.Sources {
		sources[i] = models.SourceWithConfidence{SearchResult: s, Confidence: rc.Confidence}
	}

	g.logger.Debug("Generated response",
		zap.Int("chars", len(text)),
		zap.Duration("elapsed", time.Since(start)))

	return models.StructuredResponse{
		Reasoning:         sections.Reasoning,
		Findings:          sections.Findings,
		Analysis:          sections.Analysis,
		Limitations:       sections.Limitations,
		Sources:           sources,
		OverallConfidence: rc.Confidence,
		DocumentChunks:    rc.DocumentChunks,
	}
}
