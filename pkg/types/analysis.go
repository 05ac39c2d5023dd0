package types

// ExtractedContent is what a content extractor returns for a readable file.
type ExtractedContent struct {
	Content  string       `json:"content"`
	Metadata FileMetadata `json:"metadata"`
}

// Analysis is the naming suggestion produced for a file.
type Analysis struct {
	SuggestedName string   `json:"suggested_name"`
	Entities      []string `json:"entities"`
	Confidence    float64  `json:"confidence"`
	Reasoning     string   `json:"reasoning"`
	Date          string   `json:"date,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
}

// ClampConfidence bounds c to [0, 1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
