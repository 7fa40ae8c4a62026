package models

// Document is raw content fetched for ingestion, before it is decoded.
type Document struct {
	ID          string
	URL         string
	Title       string
	Content     []byte
	ContentType string
	Metadata    map[string]interface{}
}

// ProcessedDocument is a decoded document split into chunks ready to embed.
type ProcessedDocument struct {
	Document
	Text      string
	Chunks    []string
	Embedding [][]float32
}

// DocumentChunk is a retrieved piece of an ingested document. Score is the
// cosine distance to the query: lower means more relevant.
type DocumentChunk struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
