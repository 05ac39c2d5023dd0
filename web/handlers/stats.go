package handlers

import (
	"context"
	"net/http"

	"github.com/scrypster/fileflow/pkg/types"
)

// StatsStore reports record store counts.
type StatsStore interface {
	GetDatabaseStats(ctx context.Context) types.DatabaseStats
}

// StatsHandler handles statistics endpoint requests.
type StatsHandler struct {
	store   StatsStore
	vectors VectorIndex
}

// NewStatsHandler creates a new StatsHandler instance.
func NewStatsHandler(store StatsStore, vectors VectorIndex) *StatsHandler {
	return &StatsHandler{store: store, vectors: vectors}
}

// GetStats handles GET /api/stats. Both sources degrade to zero counts, so
// the endpoint never fails.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	respondJSON(w, http.StatusOK, StatsResponse{
		DatabaseStats:   h.store.GetDatabaseStats(ctx),
		TotalEmbeddings: h.vectors.TotalEmbeddings(ctx),
		VectorBackend:   h.vectors.Backend(),
		VectorDimension: h.vectors.Dimension(),
	})
}
