package handlers

import (
	"net/http"
	"strings"

	"github.com/scrypster/fileflow/pkg/types"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

// SearchHandler serves semantic search over stored document vectors.
type SearchHandler struct {
	embedder Embedder
	vectors  VectorIndex
}

// NewSearchHandler creates a new SearchHandler instance.
func NewSearchHandler(embedder Embedder, vectors VectorIndex) *SearchHandler {
	return &SearchHandler{embedder: embedder, vectors: vectors}
}

// Search handles GET /api/search?q=&limit=. The query is embedded with the
// same model as documents; results are ordered by ascending distance.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "q is required", nil)
		return
	}
	limit := clamp(parseInt(r.URL.Query().Get("limit"), defaultSearchLimit), 1, maxSearchLimit)

	query := h.embedder.Embed(ctx, q)
	if isZeroVector(query) {
		// Embed degrades to a zero vector when intelligence is off or failing.
		respondError(w, http.StatusServiceUnavailable, "embedding service unavailable", nil)
		return
	}
	results := h.vectors.SearchSimilar(ctx, query, limit)
	if results == nil {
		results = []types.VectorMatch{}
	}
	respondJSON(w, http.StatusOK, SearchResponse{Query: q, Results: results, Total: len(results)})
}

func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
