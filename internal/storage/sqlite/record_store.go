package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/pkg/log"
	"github.com/scrypster/fileflow/pkg/types"
)

// RecordStore implements storage.RecordStore using SQLite.
//
// Writes hold writeMu only for the duration of the statement or transaction.
type RecordStore struct {
	db      *sql.DB
	writeMu sync.Mutex
	now     func() time.Time

	listenerMu sync.RWMutex
	listener   func(types.ActivityEntry)
}

// Option configures a RecordStore.
type Option func(*RecordStore)

// WithClock overrides the time source used for every timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *RecordStore) { s.now = now }
}

// NewRecordStore opens (or creates) the record store at dsn.
// Use ":memory:" for an ephemeral store.
func NewRecordStore(dsn string, opts ...Option) (*RecordStore, error) {
	db, err := openDB(dsn, Schema)
	if err != nil {
		return nil, err
	}
	s := &RecordStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *RecordStore) Close() error {
	return s.db.Close()
}

// OnActivity registers fn to be called after every activity entry is written.
func (s *RecordStore) OnActivity(fn func(types.ActivityEntry)) {
	s.listenerMu.Lock()
	s.listener = fn
	s.listenerMu.Unlock()
}

// withTx runs fn inside a write transaction under the writer lock.
// The transaction is finished before withTx returns.
func (s *RecordStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// fail logs a write failure, records it in the activity log and returns err.
func (s *RecordStore) fail(ctx context.Context, op string, err error, metadata map[string]interface{}) error {
	log.Error("record store: "+op+" failed", err)

	meta := map[string]interface{}{"operation": op, "error": err.Error()}
	for k, v := range metadata {
		meta[k] = v
	}
	if logErr := s.LogActivity(context.WithoutCancel(ctx), types.ActivityError,
		fmt.Sprintf("Error in %s: %v", op, err), meta); logErr != nil {
		log.Error("record store: failed to record error activity", logErr)
	}
	return err
}

// StoreFileAnalysis upserts an analysis by file path. INSERT OR REPLACE
// deletes a conflicting row, so a reprocessed file gets a fresh ID and
// returns to pending.
func (s *RecordStore) StoreFileAnalysis(ctx context.Context, a *types.FileAnalysis) error {
	if a == nil {
		return storage.ErrInvalidInput
	}
	if a.FilePath == "" {
		return fmt.Errorf("%w: file path is required", storage.ErrInvalidInput)
	}
	if a.SuggestedName == "" {
		return fmt.Errorf("%w: suggested name is required", storage.ErrInvalidInput)
	}

	now := s.now().UTC()
	metaJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	entities := a.Entities
	if entities == nil {
		entities = []string{}
	}
	entitiesJSON, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("failed to marshal entities: %w", err)
	}
	if a.ContentHash == "" {
		a.ContentHash = storage.ContentHash(a.Content)
	}
	confidence := types.ClampConfidence(a.Confidence)
	ts := storage.FormatTime(now)

	var id int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO file_analysis
				(file_path, original_name, suggested_name, content, metadata, entities,
				 confidence, reasoning, vector_id, event_type, content_hash, status,
				 created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.FilePath, a.OriginalName, a.SuggestedName, a.Content, string(metaJSON),
			string(entitiesJSON), confidence, a.Reasoning, a.VectorID, a.EventType,
			a.ContentHash, string(types.StatusPending), ts, ts)
		if err != nil {
			return fmt.Errorf("failed to store file analysis: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read analysis id: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO processing_history (file_path, file_hash, last_processed)
			VALUES (?, ?, ?)`, a.FilePath, a.ContentHash, ts); err != nil {
			return fmt.Errorf("failed to record processing history: %w", err)
		}

		for _, name := range entities {
			if strings.TrimSpace(name) == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO entities (entity_name, variations, usage_count, first_seen, last_seen)
				VALUES (?, '[]', 1, ?, ?)
				ON CONFLICT(entity_name) DO UPDATE SET
					usage_count = usage_count + 1,
					last_seen = excluded.last_seen`, name, ts, ts); err != nil {
				return fmt.Errorf("failed to update entity usage for %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return s.fail(ctx, "store_file_analysis", err, map[string]interface{}{"file_path": a.FilePath})
	}

	a.ID = id
	a.Status = types.StatusPending
	a.Confidence = confidence
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

const analysisColumns = `id, file_path, original_name, suggested_name, content, metadata, entities,
	confidence, reasoning, vector_id, event_type, content_hash, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(row rowScanner) (*types.FileAnalysis, error) {
	var (
		a                                    types.FileAnalysis
		content, metaJSON, entitiesJSON      sql.NullString
		reasoning, vectorID, eventType, hash sql.NullString
		confidence                           sql.NullFloat64
		status, createdAt, updatedAt         string
	)
	if err := row.Scan(&a.ID, &a.FilePath, &a.OriginalName, &a.SuggestedName, &content,
		&metaJSON, &entitiesJSON, &confidence, &reasoning, &vectorID, &eventType, &hash,
		&status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	a.Content = content.String
	a.Confidence = confidence.Float64
	a.Reasoning = reasoning.String
	a.VectorID = vectorID.String
	a.EventType = eventType.String
	a.ContentHash = hash.String
	a.Status = types.ReviewStatus(status)
	a.CreatedAt = storage.ParseTime(createdAt)
	a.UpdatedAt = storage.ParseTime(updatedAt)

	if metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &a.Metadata); err != nil {
			log.Warnw("record store: malformed metadata column", "id", a.ID, "error", err)
			a.Metadata = types.FileMetadata{}
		}
	}
	a.Entities = decodeStringList(entitiesJSON.String, "entities", a.ID)
	return &a, nil
}

// decodeStringList decodes a JSON string array column. Malformed data is
// logged and read as empty.
func decodeStringList(raw, column string, id int64) []string {
	list := []string{}
	if raw == "" {
		return list
	}
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		log.Warnw("record store: malformed list column", "column", column, "id", id, "error", err)
		return []string{}
	}
	return list
}

func (s *RecordStore) queryAnalyses(ctx context.Context, query string, args ...interface{}) ([]*types.FileAnalysis, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	results := []*types.FileAnalysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analyses: %w", err)
	}
	return results, nil
}

// GetFileAnalysis retrieves an analysis by ID.
func (s *RecordStore) GetFileAnalysis(ctx context.Context, id int64) (*types.FileAnalysis, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM file_analysis WHERE id = ?`, id)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return a, nil
}

// GetFileAnalysisByPath retrieves the current analysis of a file path.
func (s *RecordStore) GetFileAnalysisByPath(ctx context.Context, path string) (*types.FileAnalysis, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM file_analysis WHERE file_path = ?`, path)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return a, nil
}

// GetPendingReviews returns pending analyses, newest first.
func (s *RecordStore) GetPendingReviews(ctx context.Context) ([]*types.FileAnalysis, error) {
	return s.queryAnalyses(ctx, `SELECT `+analysisColumns+` FROM file_analysis
		WHERE status = ? ORDER BY created_at DESC, id DESC`, string(types.StatusPending))
}

// ApproveFileRename approves a pending analysis.
func (s *RecordStore) ApproveFileRename(ctx context.Context, id int64, approvedName string) error {
	return s.review(ctx, id, types.StatusApproved, strings.TrimSpace(approvedName))
}

// RejectFileRename rejects a pending analysis.
func (s *RecordStore) RejectFileRename(ctx context.Context, id int64) error {
	return s.review(ctx, id, types.StatusRejected, "")
}

// review applies a review decision. Only pending rows are updated, so
// unknown ids and already terminal records are left untouched.
func (s *RecordStore) review(ctx context.Context, id int64, status types.ReviewStatus, name string) error {
	ts := storage.FormatTime(s.now())
	var affected int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var res sql.Result
		var err error
		if name != "" {
			res, err = tx.ExecContext(ctx, `UPDATE file_analysis
				SET status = ?, suggested_name = ?, updated_at = ?
				WHERE id = ? AND status = ?`, string(status), name, ts, id, string(types.StatusPending))
		} else {
			res, err = tx.ExecContext(ctx, `UPDATE file_analysis
				SET status = ?, updated_at = ?
				WHERE id = ? AND status = ?`, string(status), ts, id, string(types.StatusPending))
		}
		if err != nil {
			return fmt.Errorf("failed to update review status: %w", err)
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return s.fail(ctx, "review_"+string(status), err, map[string]interface{}{"id": id})
	}
	if affected == 0 {
		log.Debugw("record store: review decision ignored", "id", id, "status", status)
		return nil
	}

	activity := types.ActivityReviewApproved
	if status == types.StatusRejected {
		activity = types.ActivityReviewRejected
	}
	meta := map[string]interface{}{"id": id}
	if name != "" {
		meta["approved_name"] = name
	}
	if err := s.LogActivity(ctx, activity, fmt.Sprintf("Review %d %s", id, status), meta); err != nil {
		log.Error("record store: failed to log review activity", err)
	}
	return nil
}

// IsFileRecentlyProcessed reports whether path has a processing record
// within the window.
func (s *RecordStore) IsFileRecentlyProcessed(ctx context.Context, path string, within time.Duration) bool {
	cutoff := storage.FormatTime(s.now().Add(-within))
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processing_history
		WHERE file_path = ? AND last_processed >= ?`, path, cutoff).Scan(&count)
	if err != nil {
		log.Warnw("record store: recency check failed", "path", path, "error", err)
		return false
	}
	return count > 0
}

// SearchDocumentsByEntity returns analyses whose entity list contains entity,
// compared case-insensitively.
func (s *RecordStore) SearchDocumentsByEntity(ctx context.Context, entity string) ([]*types.FileAnalysis, error) {
	return s.queryAnalyses(ctx, `SELECT `+analysisColumns+` FROM file_analysis fa
		WHERE EXISTS (
			SELECT 1 FROM json_each(CASE WHEN json_valid(fa.entities) THEN fa.entities ELSE '[]' END) je
			WHERE lower(je.value) = lower(?)
		)
		ORDER BY created_at DESC, id DESC`, entity)
}

// ExportAnalyses returns every analysis, newest first.
func (s *RecordStore) ExportAnalyses(ctx context.Context) ([]*types.FileAnalysis, error) {
	return s.queryAnalyses(ctx, `SELECT `+analysisColumns+` FROM file_analysis
		ORDER BY created_at DESC, id DESC`)
}

// GetDatabaseStats returns row counts. Failing counts read as zero.
func (s *RecordStore) GetDatabaseStats(ctx context.Context) types.DatabaseStats {
	count := func(query string, args ...interface{}) int {
		var n int
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
			log.Warnw("record store: stats query failed", "query", query, "error", err)
			return 0
		}
		return n
	}

	return types.DatabaseStats{
		TotalFiles:      count(`SELECT COUNT(*) FROM file_analysis`),
		PendingReviews:  count(`SELECT COUNT(*) FROM file_analysis WHERE status = ?`, string(types.StatusPending)),
		ApprovedReviews: count(`SELECT COUNT(*) FROM file_analysis WHERE status = ?`, string(types.StatusApproved)),
		RejectedReviews: count(`SELECT COUNT(*) FROM file_analysis WHERE status = ?`, string(types.StatusRejected)),
		TotalEntities:   count(`SELECT COUNT(*) FROM entities`),
		TotalContexts:   count(`SELECT COUNT(*) FROM document_context`),
		TotalActivities: count(`SELECT COUNT(*) FROM activity_log`),
	}
}

// ClearAllData deletes every row of every table.
func (s *RecordStore) ClearAllData(ctx context.Context) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range coreTables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return s.fail(ctx, "clear_all_data", err, nil)
	}
	if err := s.LogActivity(ctx, types.ActivityDatabaseCleared, "All database data cleared", nil); err != nil {
		log.Error("record store: failed to log clear activity", err)
	}
	return nil
}

// Compile-time assertion.
var _ storage.RecordStore = (*RecordStore)(nil)
