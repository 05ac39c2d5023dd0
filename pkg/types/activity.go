package types

import "time"

// Activity types written by the pipeline and the stores. The set is open;
// these are the tags FileFlow itself emits.
const (
	ActivityFileProcessed   = "file_processed"
	ActivityFileSkipped     = "file_skipped"
	ActivityProcessingError = "file_processing_error"
	ActivityContextUpdated  = "context_updated"
	ActivityEntityCreated   = "entity_created"
	ActivityReviewApproved  = "review_approved"
	ActivityReviewRejected  = "review_rejected"
	ActivityMonitorStarted  = "monitoring_started"
	ActivityMonitorStopped  = "monitoring_stopped"
	ActivityDatabaseCleared = "database_cleared"
	ActivityVectorsCleared  = "vectors_cleared"
	ActivityIndexRebuilt    = "vector_index_rebuilt"
	ActivityBackupCreated   = "backup_created"
	ActivityError           = "error"
)

// ActivityEntry is one append-only audit record.
type ActivityEntry struct {
	ID           int64                  `json:"id" yaml:"id"`
	ActivityType string                 `json:"activity_type" yaml:"activity_type"`
	Description  string                 `json:"description" yaml:"description"`
	Metadata     map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Timestamp    time.Time              `json:"timestamp" yaml:"timestamp"`
}
