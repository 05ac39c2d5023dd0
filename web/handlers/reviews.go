package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/pkg/types"
)

// ReviewStore is the record store surface of the review queue.
type ReviewStore interface {
	GetPendingReviews(ctx context.Context) ([]*types.FileAnalysis, error)
	GetFileAnalysis(ctx context.Context, id int64) (*types.FileAnalysis, error)
	ApproveFileRename(ctx context.Context, id int64, approvedName string) error
	RejectFileRename(ctx context.Context, id int64) error
}

// ReviewHandler serves the pending review queue and its decisions.
type ReviewHandler struct {
	store ReviewStore
}

// NewReviewHandler creates a ReviewHandler.
func NewReviewHandler(store ReviewStore) *ReviewHandler {
	return &ReviewHandler{store: store}
}

// List handles GET /api/reviews.
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.store.GetPendingReviews(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list reviews", err)
		return
	}
	if reviews == nil {
		reviews = []*types.FileAnalysis{}
	}
	respondJSON(w, http.StatusOK, ReviewsResponse{Reviews: reviews, Total: len(reviews)})
}

// Approve handles POST /api/reviews/{id}/approve with an optional
// {"name": "..."} body.
func (h *ReviewHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if r.Body != nil {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}
	h.decide(w, r, types.StatusApproved, func(ctx context.Context, id int64) error {
		return h.store.ApproveFileRename(ctx, id, req.Name)
	})
}

// Reject handles POST /api/reviews/{id}/reject.
func (h *ReviewHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, types.StatusRejected, h.store.RejectFileRename)
}

// decide validates the transition before applying it so that unknown ids
// and terminal records are reported instead of silently ignored.
func (h *ReviewHandler) decide(w http.ResponseWriter, r *http.Request, next types.ReviewStatus, apply func(context.Context, int64) error) {
	ctx := r.Context()
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid review id", err)
		return
	}

	current, err := h.store.GetFileAnalysis(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "review not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load review", err)
		return
	}
	if !types.IsValidReviewTransition(current.Status, next) {
		respondError(w, http.StatusConflict,
			fmt.Sprintf("review %d is already %s", id, current.Status), nil)
		return
	}

	if err := apply(ctx, id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to record decision", err)
		return
	}

	updated, err := h.store.GetFileAnalysis(ctx, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to reload review", err)
		return
	}
	respondJSON(w, http.StatusOK, ReviewResponse{Review: updated})
}
