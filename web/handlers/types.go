package handlers

import (
	"github.com/scrypster/fileflow/internal/backup"
	"github.com/scrypster/fileflow/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ReviewsResponse is the response format for GET /api/reviews.
type ReviewsResponse struct {
	Reviews []*types.FileAnalysis `json:"reviews"`
	Total   int                   `json:"total"`
}

// ApproveRequest is the optional body of POST /api/reviews/{id}/approve.
// A non-empty Name replaces the suggested name.
type ApproveRequest struct {
	Name string `json:"name"`
}

// ReviewResponse reports the record after a review decision.
type ReviewResponse struct {
	Review *types.FileAnalysis `json:"review"`
}

// StatsResponse is the response format for GET /api/stats.
type StatsResponse struct {
	types.DatabaseStats
	TotalEmbeddings int    `json:"total_embeddings"`
	VectorBackend   string `json:"vector_backend"`
	VectorDimension int    `json:"vector_dimension"`
}

// ActivityResponse is the response format for GET /api/activity.
type ActivityResponse struct {
	Activities []*types.ActivityEntry `json:"activities"`
	Days       int                    `json:"days"`
}

// EntitySearchResponse is the response format for GET /api/entities/search.
type EntitySearchResponse struct {
	Entity    string                `json:"entity"`
	Documents []*types.FileAnalysis `json:"documents"`
}

// ContextResponse is the response format for GET /api/context.
type ContextResponse struct {
	Query   string                  `json:"query"`
	Related []types.RelatedDocument `json:"related"`
}

// SearchResponse is the response format for GET /api/search.
type SearchResponse struct {
	Query   string              `json:"query"`
	Results []types.VectorMatch `json:"results"`
	Total   int                 `json:"total"`
}

// MaintenanceResponse reports the outcome of a maintenance action.
type MaintenanceResponse struct {
	Action  string       `json:"action"`
	Status  string       `json:"status"`
	Deleted int64        `json:"deleted,omitempty"`
	Backup  *backup.Info `json:"backup,omitempty"`
}

// BackupsResponse is the response format for GET /api/backups.
type BackupsResponse struct {
	Backups []backup.Info `json:"backups"`
	Total   int           `json:"total"`
}
