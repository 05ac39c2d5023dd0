package handlers

import (
	"net/http"
	"strings"

	"github.com/scrypster/fileflow/pkg/types"
)

const (
	defaultContextLimit = 5
	maxContextLimit     = 50
)

// EntityHandler serves entity statistics, search-by-entity and relevant
// context lookups from context memory.
type EntityHandler struct {
	memory EntityMemory
}

// NewEntityHandler creates an EntityHandler.
func NewEntityHandler(memory EntityMemory) *EntityHandler {
	return &EntityHandler{memory: memory}
}

// Statistics handles GET /api/entities.
func (h *EntityHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.memory.EntityStatistics(r.Context()))
}

// Search handles GET /api/entities/search?name=. Lookups never create
// entities.
func (h *EntityHandler) Search(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	docs, err := h.memory.SearchByEntity(r.Context(), name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to search documents", err)
		return
	}
	if docs == nil {
		docs = []*types.FileAnalysis{}
	}
	respondJSON(w, http.StatusOK, EntitySearchResponse{Entity: name, Documents: docs})
}

// Context handles GET /api/context?q=&limit=.
func (h *EntityHandler) Context(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "q is required", nil)
		return
	}
	limit := clamp(parseInt(r.URL.Query().Get("limit"), defaultContextLimit), 1, maxContextLimit)
	related := h.memory.GetRelevantContext(r.Context(), q, limit)
	if related == nil {
		related = []types.RelatedDocument{}
	}
	respondJSON(w, http.StatusOK, ContextResponse{Query: q, Related: related})
}
