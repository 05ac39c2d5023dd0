// Package types defines the records shared across FileFlow: file analyses,
// entities, document contexts, activity entries and vector records.
package types

import "time"

// Event types recorded on a FileAnalysis.
const (
	EventCreated  = "created"
	EventModified = "modified"
	EventMoved    = "moved"
	EventExisting = "existing"
)

// FileMetadata describes the file an analysis was produced from.
type FileMetadata struct {
	FileName     string    `json:"file_name" yaml:"file_name"`
	Extension    string    `json:"extension" yaml:"extension"`
	SizeBytes    int64     `json:"size_bytes" yaml:"size_bytes"`
	CreatedTime  time.Time `json:"created_time" yaml:"created_time"`
	ModifiedTime time.Time `json:"modified_time" yaml:"modified_time"`
}

// FileAnalysis is the stored result of processing one file path.
// FilePath is unique across all analyses.
type FileAnalysis struct {
	ID            int64        `json:"id" yaml:"id"`
	FilePath      string       `json:"file_path" yaml:"file_path"`
	OriginalName  string       `json:"original_name" yaml:"original_name"`
	SuggestedName string       `json:"suggested_name" yaml:"suggested_name"`
	Content       string       `json:"content,omitempty" yaml:"-"`
	Metadata      FileMetadata `json:"metadata" yaml:"metadata"`
	Entities      []string     `json:"entities" yaml:"entities"`
	Confidence    float64      `json:"confidence" yaml:"confidence"`
	Reasoning     string       `json:"reasoning" yaml:"reasoning"`
	VectorID      string       `json:"vector_id" yaml:"vector_id"`
	EventType     string       `json:"event_type" yaml:"event_type"`
	ContentHash   string       `json:"content_hash,omitempty" yaml:"content_hash,omitempty"`
	Status        ReviewStatus `json:"status" yaml:"status"`
	CreatedAt     time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" yaml:"updated_at"`
}

// Entity is the canonical name of a recurring real-world subject together
// with every spelling that has been mapped to it.
type Entity struct {
	Name       string    `json:"name"`
	Variations []string  `json:"variations"`
	UsageCount int       `json:"usage_count"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

// DocumentContext links a file to the entities and keywords found in it.
// A file may have several contexts, one per processing run.
type DocumentContext struct {
	ID             int64     `json:"id"`
	FilePath       string    `json:"file_path"`
	Entities       []string  `json:"entities"`
	ContentSummary string    `json:"content_summary"`
	Keywords       []string  `json:"keywords"`
	CreatedAt      time.Time `json:"created_at"`
}

// RelatedDocument is a previously processed file that shares keywords with
// new content.
type RelatedDocument struct {
	FilePath        string   `json:"file_path"`
	Entities        []string `json:"entities"`
	SuggestedName   string   `json:"suggested_name"`
	SimilarityScore float64  `json:"similarity_score"`
}

// EntityUsage is a compact entity row for statistics.
type EntityUsage struct {
	Name       string    `json:"name"`
	UsageCount int       `json:"usage_count"`
	LastSeen   time.Time `json:"last_seen"`
}

// EntityStatistics summarises the entity table.
type EntityStatistics struct {
	TotalEntities  int           `json:"total_entities"`
	TopEntities    []EntityUsage `json:"top_entities"`
	RecentEntities []EntityUsage `json:"recent_entities"`
}

// DatabaseStats holds row counts for the record store.
type DatabaseStats struct {
	TotalFiles      int `json:"total_files"`
	PendingReviews  int `json:"pending_reviews"`
	ApprovedReviews int `json:"approved_reviews"`
	RejectedReviews int `json:"rejected_reviews"`
	TotalEntities   int `json:"total_entities"`
	TotalContexts   int `json:"total_contexts"`
	TotalActivities int `json:"total_activities"`
}
