// Package research answers a question from web sources and ingested
// documents.
package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xhad/veritas/internal/models"
	"github.com/xhad/veritas/internal/types"
	"github.com/xhad/veritas/pkg/logging"
	"github.com/xhad/veritas/pkg/rag"
)

var (
	// ErrEmptyQuery is returned for a missing or blank message.
	ErrEmptyQuery = errors.New("valid message is required")
	// ErrDocumentIngest wraps any failure to ingest the supplied document.
	ErrDocumentIngest = errors.New("unable to process the provided document")
)

// DefaultSourceDescription stands in for a source without a description.
const DefaultSourceDescription = "Click to view source"

// Request is one chat turn.
type Request struct {
	Message     string `json:"message"`
	UseResearch bool   `json:"useResearch"`
	FileURL     string `json:"fileUrl,omitempty"`
}

// Response is the answer payload returned to clients.
type Response struct {
	Content        string                 `json:"content"`
	Query          string                 `json:"query"`
	Findings       string                 `json:"findings"`
	Analysis       string                 `json:"analysis"`
	Limitations    string                 `json:"limitations"`
	Reasoning      string                 `json:"reasoning"`
	Sources        []models.Source        `json:"sources"`
	Confidence     int                    `json:"confidence"`
	DocumentChunks []models.DocumentChunk `json:"documentChunks,omitempty"`
	FlagForReview  bool                   `json:"flagForReview"`
}

// Stage is a step of the pipeline reported to progress listeners.
type Stage string

const (
	StageIngest   Stage = "ingesting"
	StageEvidence Stage = "gathering"
	StageGenerate Stage = "generating"
)

type OrchestratorConfig struct {
	Searcher   types.Searcher
	Retriever  types.Retriever
	Generator  *Generator
	MaxResults int
	Logger     *zap.Logger
}

type Orchestrator struct {
	searcher   types.Searcher
	retriever  types.Retriever
	generator  *Generator
	assessor   *Assessor
	maxResults int
	logger     *zap.Logger
}

func NewOrchestrator(config OrchestratorConfig) (*Orchestrator, error) {
	switch {
	case config.Searcher == nil:
		return nil, errors.New("orchestrator requires a searcher")
	case config.Retriever == nil:
		return nil, errors.New("orchestrator requires a retriever")
	case config.Generator == nil || config.Generator.backend == nil:
		return nil, errors.New("orchestrator requires a generator")
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 10
	}
	config.Logger = logging.OrNop(config.Logger)

	return &Orchestrator{
		searcher:   config.Searcher,
		retriever:  config.Retriever,
		generator:  config.Generator,
		assessor:   NewAssessor(config.Logger),
		maxResults: config.MaxResults,
		logger:     config.Logger,
	}, nil
}

// Run answers req. Only ErrEmptyQuery, ErrDocumentIngest and context
// errors are returned; every other failure degrades.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, error) {
	return o.RunWithProgress(ctx, req, nil)
}

// RunWithProgress is Run, calling progress as each stage starts.
func (o *Orchestrator) RunWithProgress(ctx context.Context, req Request, progress func(Stage)) (*Response, error) {
	if progress == nil {
		progress = func(Stage) {}
	}

	query := strings.TrimSpace(req.Message)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	start := time.Now()

	if req.FileURL != "" {
		progress(StageIngest)
		if err := o.retriever.Ingest(ctx, req.FileURL); err != nil {
			o.logger.Error("Document ingest failed", zap.String("url", req.FileURL), zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrDocumentIngest, err)
		}
	}

	progress(StageEvidence)
	rc, err := o.gather(ctx, req.Message, req.UseResearch)
	if err != nil {
		return nil, err
	}

	progress(StageGenerate)
	answer := o.generator.Generate(ctx, req.Message, rc)

	o.logger.Info("Answered query",
		zap.Bool("research", req.UseResearch),
		zap.Int("sources", len(rc.Sources)),
		zap.Int("chunks", len(rc.DocumentChunks)),
		zap.Int("confidence", answer.OverallConfidence),
		zap.Duration("elapsed", time.Since(start)))

	return assemble(req.Message, answer), nil
}

// gather runs web search and document retrieval concurrently.
func (o *Orchestrator) gather(ctx context.Context, query string, useResearch bool) (models.ResearchContext, error) {
	rc := models.ResearchContext{
		Query:      query,
		Confidence: NeutralConfidence,
	}

	g, gctx := errgroup.WithContext(ctx)

	if useResearch {
		g.Go(func() error {
			sources := o.searcher.Search(gctx, query, o.maxResults)
			rc.Sources = sources
			rc.Confidence = o.assessor.Assess(sources)
			return nil
		})
	}

	var chunks []models.DocumentChunk
	g.Go(func() error {
		found, err := o.retriever.Query(gctx, query)
		if errors.Is(err, rag.ErrNoDocuments) {
			return nil
		}
		if err != nil {
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if degrades(OpRetrieve) {
				o.logger.Warn("Document retrieval failed", zap.Error(err))
				return nil
			}
			return err
		}
		chunks = found
		return nil
	})

	if err := g.Wait(); err != nil {
		return rc, err
	}
	rc.DocumentChunks = chunks
	return rc, nil
}

func assemble(query string, answer models.StructuredResponse) *Response {
	sources := make([]models.Source, len(answer.Sources))
	for i, s := range answer.Sources {
		description := s.Description
		if description == "" {
			description = DefaultSourceDescription
		}
		sources[i] = models.Source{Title: s.Title, URL: s.URL, Description: description}
	}

	return &Response{
		Content:        answer.Findings + "\n\n" + answer.Analysis,
		Query:          query,
		Findings:       answer.Findings,
		Analysis:       answer.Analysis,
		Limitations:    answer.Limitations,
		Reasoning:      answer.Reasoning,
		Sources:        sources,
		Confidence:     answer.OverallConfidence,
		DocumentChunks: answer.DocumentChunks,
		FlagForReview:  models.FlagForReview(answer.OverallConfidence),
	}
}
