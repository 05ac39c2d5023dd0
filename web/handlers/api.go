// Package handlers provides the HTTP handlers and middleware of the FileFlow
// review API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/scrypster/fileflow/pkg/log"
	"github.com/scrypster/fileflow/pkg/types"
)

// VectorIndex is the vector store surface used by the API.
type VectorIndex interface {
	Backend() string
	Dimension() int
	TotalEmbeddings(ctx context.Context) int
	SearchSimilar(ctx context.Context, query []float32, limit int) []types.VectorMatch
	ClearAllVectors(ctx context.Context) error
	RebuildIndex(ctx context.Context) error
}

// EntityMemory is the context memory surface used by the API.
type EntityMemory interface {
	EntityStatistics(ctx context.Context) types.EntityStatistics
	SearchByEntity(ctx context.Context, name string) ([]*types.FileAnalysis, error)
	GetRelevantContext(ctx context.Context, content string, limit int) []types.RelatedDocument
	LoadEntityCache(ctx context.Context) error
}

// Embedder turns free text into a query vector.
type Embedder interface {
	Embed(ctx context.Context, content string) []float32
}

// parseInt returns the integer value of s, or defaultValue when s is empty
// or malformed.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent.
		log.Warnw("handlers: failed to encode JSON response", "error", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}
