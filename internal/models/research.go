package models

// SearchResult is one web page discovered by the search tool.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet"`
	Description string `json:"description,omitempty"`
}

// SourceWithConfidence tags a web source with the request-level confidence.
type SourceWithConfidence struct {
	SearchResult
	Confidence int `json:"confidence"`
}

// ResearchContext holds the evidence gathered for a single request.
type ResearchContext struct {
	Query          string
	Sources        []SearchResult
	Confidence     int
	DocumentChunks []DocumentChunk
}

// StructuredResponse is the parsed reply of the generation backend.
type StructuredResponse struct {
	Reasoning         string
	Findings          string
	Analysis          string
	Limitations       string
	Sources           []SourceWithConfidence
	OverallConfidence int
	DocumentChunks    []DocumentChunk
}

// FlagForReview reports whether a confidence value needs a human look.
func FlagForReview(confidence int) bool {
	return confidence < 70
}

// Source is a web source as shown to the user and written to exports.
type Source struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}
