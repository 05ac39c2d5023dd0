package handlers

import (
	"context"
	"net/http"

	"github.com/scrypster/fileflow/pkg/types"
)

// Activity window bounds in days.
const (
	defaultActivityDays = 7
	maxActivityDays     = 365
)

// ActivityStore reads the activity log.
type ActivityStore interface {
	GetActivityTimeline(ctx context.Context, days int) ([]*types.ActivityEntry, error)
}

// ActivityHandler handles the /api/activity endpoint.
type ActivityHandler struct {
	store ActivityStore
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(store ActivityStore) *ActivityHandler {
	return &ActivityHandler{store: store}
}

// GetActivity handles GET /api/activity?days=N and returns the entries of the
// trailing window, newest first.
func (h *ActivityHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	days := clamp(parseInt(r.URL.Query().Get("days"), defaultActivityDays), 1, maxActivityDays)

	entries, err := h.store.GetActivityTimeline(r.Context(), days)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load activity", err)
		return
	}
	if entries == nil {
		entries = []*types.ActivityEntry{}
	}
	respondJSON(w, http.StatusOK, ActivityResponse{Activities: entries, Days: days})
}
