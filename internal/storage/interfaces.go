// Package storage provides composable storage interfaces for FileFlow.
//
// The relational side is split into small interfaces (analyses, entities,
// document contexts, activity) that a single RecordStore implements. The
// vector side is a VectorBackend strategy with one implementation per
// similarity-search engine.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/fileflow/pkg/types"
)

// AnalysisStore persists FileAnalysis records and drives the review queue.
type AnalysisStore interface {
	// StoreFileAnalysis upserts by file path. An existing record for the same
	// path is replaced by a new pending record with a new ID. Usage counts of
	// every entity in a.Entities are incremented.
	StoreFileAnalysis(ctx context.Context, a *types.FileAnalysis) error

	// GetFileAnalysis returns ErrNotFound when id is unknown.
	GetFileAnalysis(ctx context.Context, id int64) (*types.FileAnalysis, error)

	// GetFileAnalysisByPath returns ErrNotFound when path was never processed.
	GetFileAnalysisByPath(ctx context.Context, path string) (*types.FileAnalysis, error)

	// GetPendingReviews returns pending records, newest first.
	GetPendingReviews(ctx context.Context) ([]*types.FileAnalysis, error)

	// ApproveFileRename moves a pending record to approved. A non-empty
	// approvedName replaces the suggested name. Unknown ids are a no-op.
	ApproveFileRename(ctx context.Context, id int64, approvedName string) error

	// RejectFileRename moves a pending record to rejected. Unknown ids are a no-op.
	RejectFileRename(ctx context.Context, id int64) error

	// IsFileRecentlyProcessed reports whether path was processed within the
	// window. It returns false on any storage error.
	IsFileRecentlyProcessed(ctx context.Context, path string, within time.Duration) bool

	// SearchDocumentsByEntity returns analyses mentioning the entity, newest first.
	SearchDocumentsByEntity(ctx context.Context, entity string) ([]*types.FileAnalysis, error)

	// ExportAnalyses returns every analysis, newest first.
	ExportAnalyses(ctx context.Context) ([]*types.FileAnalysis, error)
}

// EntityStore persists canonical entities and their variations.
type EntityStore interface {
	// StoreEntity creates the entity or merges variations into it.
	StoreEntity(ctx context.Context, name string, variations []string) error

	// AddEntityVariation appends a variation; adding a known one is a no-op.
	AddEntityVariation(ctx context.Context, canonical, variation string) error

	// ListEntities returns all entities ordered by usage, highest first.
	ListEntities(ctx context.Context) ([]*types.Entity, error)

	TopEntities(ctx context.Context, limit int) ([]types.EntityUsage, error)
	RecentEntities(ctx context.Context, limit int) ([]types.EntityUsage, error)
}

// ContextStore persists document contexts used for relevance lookups.
type ContextStore interface {
	StoreDocumentContext(ctx context.Context, dc *types.DocumentContext) error

	// SearchRelatedDocuments matches the first three keywords against stored
	// contexts. SimilarityScore is matches / len(keywords).
	SearchRelatedDocuments(ctx context.Context, keywords []string, limit int) ([]types.RelatedDocument, error)
}

// ActivityLog is the append-only audit trail.
type ActivityLog interface {
	LogActivity(ctx context.Context, activityType, description string, metadata map[string]interface{}) error

	// GetActivityTimeline returns entries of the trailing window, newest first.
	GetActivityTimeline(ctx context.Context, days int) ([]*types.ActivityEntry, error)

	// PurgeActivity deletes entries older than the given number of days.
	PurgeActivity(ctx context.Context, olderThanDays int) (int64, error)
}

// RecordStore is the full relational store.
type RecordStore interface {
	AnalysisStore
	EntityStore
	ContextStore
	ActivityLog

	// GetDatabaseStats degrades to zero counts on error.
	GetDatabaseStats(ctx context.Context) types.DatabaseStats

	// ClearAllData truncates every table. Operator action only.
	ClearAllData(ctx context.Context) error

	Close() error
}

// VectorBackend is one similarity-search strategy behind the vector store.
// Implementations must return matches in ascending Distance order.
type VectorBackend interface {
	// Name identifies the backend in logs and stats ("qdrant", "pgvector", "sqlite").
	Name() string

	Store(ctx context.Context, rec *types.VectorRecord) error
	Search(ctx context.Context, query []float32, limit int) ([]types.VectorMatch, error)
	Count(ctx context.Context) (int, error)

	// Clear drops and recreates the backing structure. Safe on empty storage.
	Clear(ctx context.Context) error

	// RebuildIndex reconstructs an ANN index from its backing table. Backends
	// without such an index implement it as a no-op.
	RebuildIndex(ctx context.Context) error

	Close() error
}
