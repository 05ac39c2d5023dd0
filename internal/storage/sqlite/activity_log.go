package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/pkg/log"
	"github.com/scrypster/fileflow/pkg/types"
)

// DefaultTimelineDays is the window used when GetActivityTimeline gets days <= 0.
const DefaultTimelineDays = 7

// LogActivity appends an activity entry and notifies the listener.
func (s *RecordStore) LogActivity(ctx context.Context, activityType, description string, metadata map[string]interface{}) error {
	if activityType == "" {
		return fmt.Errorf("%w: activity type is required", storage.ErrInvalidInput)
	}
	metaJSON, err := storage.EncodeMetadata(metadata)
	if err != nil {
		return err
	}
	now := s.now().UTC()

	s.writeMu.Lock()
	res, err := s.db.ExecContext(ctx, `INSERT INTO activity_log (activity_type, description, metadata, timestamp)
		VALUES (?, ?, ?, ?)`, activityType, description, metaJSON, storage.FormatTime(now))
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	id, _ := res.LastInsertId()

	s.listenerMu.RLock()
	listener := s.listener
	s.listenerMu.RUnlock()
	if listener != nil {
		listener(types.ActivityEntry{
			ID:           id,
			ActivityType: activityType,
			Description:  description,
			Metadata:     metadata,
			Timestamp:    now,
		})
	}
	return nil
}

// GetActivityTimeline returns entries from the trailing number of days, newest first.
func (s *RecordStore) GetActivityTimeline(ctx context.Context, days int) ([]*types.ActivityEntry, error) {
	if days <= 0 {
		days = DefaultTimelineDays
	}
	cutoff := storage.FormatTime(s.now().AddDate(0, 0, -days))

	rows, err := s.db.QueryContext(ctx, `SELECT id, activity_type, description, metadata, timestamp
		FROM activity_log WHERE timestamp >= ? ORDER BY timestamp DESC, id DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity timeline: %w", err)
	}
	defer rows.Close()

	entries := []*types.ActivityEntry{}
	for rows.Next() {
		var (
			e        types.ActivityEntry
			metaJSON sql.NullString
			ts       string
		)
		if err := rows.Scan(&e.ID, &e.ActivityType, &e.Description, &metaJSON, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		meta, err := storage.DecodeMetadata(metaJSON.String)
		if err != nil {
			log.Warnw("record store: malformed activity metadata", "id", e.ID, "error", err)
		}
		e.Metadata = meta
		e.Timestamp = storage.ParseTime(ts)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity: %w", err)
	}
	return entries, nil
}

// PurgeActivity deletes entries older than olderThanDays and returns how many
// were removed. This is the only path that deletes activity rows.
func (s *RecordStore) PurgeActivity(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("%w: retention must be at least one day", storage.ErrInvalidInput)
	}
	cutoff := storage.FormatTime(s.now().AddDate(0, 0, -olderThanDays))

	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM activity_log WHERE timestamp < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("failed to purge activity: %w", err)
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, s.fail(ctx, "purge_activity", err, map[string]interface{}{"older_than_days": olderThanDays})
	}
	return removed, nil
}
