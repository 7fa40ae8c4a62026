package research

import "strings"

const (
	markerReasoning   = "REASONING:"
	markerFindings    = "FINDINGS:"
	markerAnalysis    = "ANALYSIS:"
	markerLimitations = "LIMITATIONS:"
)

// Sections are the four blocks of a generated answer.
type Sections struct {
	Reasoning   string
	Findings    string
	Analysis    string
	Limitations string
}

// ParseSections splits a reply on its section markers. Each section runs
// from its marker to the next section's marker or the end of text. A
// missing marker leaves that section empty, except FINDINGS, which then
// takes the whole reply.
func ParseSections(text string) Sections {
	findings, ok := section(text, markerFindings, markerAnalysis)
	if !ok {
		findings = text
	}
	reasoning, _ := section(text, markerReasoning, markerFindings)
	analysis, _ := section(text, markerAnalysis, markerLimitations)
	limitations, _ := section(text, markerLimitations, "")

	return Sections{
		Reasoning:   reasoning,
		Findings:    findings,
		Analysis:    analysis,
		Limitations: limitations,
	}
}

func section(text, marker, next string) (string, bool) {
	i := strings.Index(text, marker)
	if i < 0 {
		return "", false
	}
	rest := text[i+len(marker):]
	if next != "" {
		if j := strings.Index(rest, next); j >= 0 {
			rest = rest[:j]
		}
	}
	return strings.TrimSpace(rest), true
}
