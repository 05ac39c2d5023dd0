package postgres

import (
	"context"
	"fmt"
)

// DropForTest removes the backend's table so integration runs leave no trace.
func (b *VectorBackend) DropForTest(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, b.table))
	return err
}
