package types

import "time"

// DefaultEmbeddingDimension is the embedding length of text-embedding-3-small.
const DefaultEmbeddingDimension = 1536

// VectorRecord is an embedding plus the context needed to present a match.
type VectorRecord struct {
	ID        string                 `json:"id"`
	Embedding []float32              `json:"-"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// VectorMatch is one similarity search hit. Smaller Distance is more similar.
type VectorMatch struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Distance float64                `json:"distance"`
}
