package research

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/xhad/veritas/internal/models"
	"github.com/xhad/veritas/pkg/logging"
)

const (
	// NeutralConfidence is used when web research is off.
	NeutralConfidence = 50
	// NoSourceConfidence is the score of an empty source list.
	NoSourceConfidence = 30
	// MaxConfidence caps the score however good the sources are.
	MaxConfidence = 90
)

var sourceBonuses = []struct {
	marker string
	bonus  int
}{
	{"wikipedia", 15},
	{"scholar.google", 20},
	{"example.com", 10},
}

// AssessConfidence scores a source list from 30 to 90. Each source earns
// every bonus whose marker its URL contains; the mean bonus is added to
// a base of 50.
func AssessConfidence(sources []models.SearchResult) int {
	if len(sources) == 0 {
		return NoSourceConfidence
	}

	total := 0
	for _, source := range sources {
		for _, b := range sourceBonuses {
			if strings.Contains(source.URL, b.marker) {
				total += b.bonus
			}
		}
	}

	score := math.Min(float64(NeutralConfidence)+float64(total)/float64(len(sources)), MaxConfidence)
	return int(math.Round(score))
}

// Assessor wraps AssessConfidence with a low-confidence log line.
type Assessor struct {
	logger *zap.Logger
}

func NewAssessor(logger *zap.Logger) *Assessor {
	logger = logging.OrNop(logger)
	return &Assessor{logger: logger}
}

func (a *Assessor) Assess(sources []models.SearchResult) int {
	confidence := AssessConfidence(sources)
	if models.FlagForReview(confidence) {
		a.logger.Warn("Low confidence detected",
			zap.Int("confidence", confidence),
			zap.Int("sources", len(sources)))
	}
	return confidence
}

// ExtractKeyFacts returns the non-empty snippets of sources.
func ExtractKeyFacts(sources []models.SearchResult) []string {
	var facts []string
	for _, s := range sources {
		if s.Snippet != "" {
			facts = append(facts, s.Snippet)
		}
	}
	return facts
}
