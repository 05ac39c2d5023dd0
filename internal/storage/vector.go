package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/scrypster/fileflow/pkg/types"
)

// EncodeVector serializes an embedding as a JSON number array, e.g.
// "[0.1,0.2]". The same text is accepted by pgvector's vector input.
func EncodeVector(v []float32) (string, error) {
	if len(v) == 0 {
		return "", fmt.Errorf("%w: embedding vector cannot be empty", ErrInvalidInput)
	}
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return "", fmt.Errorf("%w: embedding component %d is not finite", ErrInvalidInput, i)
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to serialize embedding: %w", err)
	}
	return string(data), nil
}

// DecodeVector parses the output of EncodeVector.
func DecodeVector(s string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("failed to deserialize embedding: %w", err)
	}
	return v, nil
}

// CosineSimilarity returns the cosine similarity of a and b. Vectors of
// different length, or with a zero norm, have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineDistance is 1 - CosineSimilarity.
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}

// SortMatches orders matches by ascending distance, then by ID for stability,
// and keeps at most limit of them.
func SortMatches(matches []types.VectorMatch, limit int) []types.VectorMatch {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// EncodeMetadata marshals metadata for a JSON column. nil becomes "{}".
func EncodeMetadata(m map[string]interface{}) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

// DecodeMetadata unmarshals a JSON column. Malformed input yields an empty
// map and the decode error, so read paths can log and continue.
func DecodeMetadata(s string) (map[string]interface{}, error) {
	m := map[string]interface{}{}
	if s == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return map[string]interface{}{}, err
	}
	return m, nil
}
