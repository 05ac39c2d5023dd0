package sqlite

import (
	"context"
	"fmt"
)

// BackupTo writes a consistent copy of the record store to destPath with
// VACUUM INTO. destPath must not exist.
func (s *RecordStore) BackupTo(ctx context.Context, destPath string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("failed to back up database: %w", err)
	}
	return nil
}
