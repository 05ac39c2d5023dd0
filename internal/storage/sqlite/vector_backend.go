package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/pkg/log"
	"github.com/scrypster/fileflow/pkg/types"
)

// VectorSchema creates the linear-scan vector table.
const VectorSchema = `
CREATE TABLE IF NOT EXISTS vectors (
	vector_id  TEXT PRIMARY KEY,
	embedding  TEXT NOT NULL,
	content    TEXT,
	metadata   TEXT,
	created_at TEXT NOT NULL
);
`

// VectorBackend is the linear-scan fallback: embeddings are stored as text
// and every search computes cosine distance against all rows.
type VectorBackend struct {
	db *sql.DB
}

// NewVectorBackend opens the vector table at dsn.
func NewVectorBackend(dsn string) (*VectorBackend, error) {
	db, err := openDB(dsn, VectorSchema)
	if err != nil {
		return nil, err
	}
	return &VectorBackend{db: db}, nil
}

// Name implements storage.VectorBackend.
func (b *VectorBackend) Name() string { return "sqlite" }

// Store inserts a vector record.
func (b *VectorBackend) Store(ctx context.Context, rec *types.VectorRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: vector id is required", storage.ErrInvalidInput)
	}
	embedding, err := storage.EncodeVector(rec.Embedding)
	if err != nil {
		return err
	}
	meta, err := storage.EncodeMetadata(rec.Metadata)
	if err != nil {
		return err
	}

	_, err = b.db.ExecContext(ctx, `INSERT INTO vectors (vector_id, embedding, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)`, rec.ID, embedding, rec.Content, meta, storage.FormatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to store vector: %w", err)
	}
	return nil
}

// Search scans every stored vector and returns the closest by cosine distance.
func (b *VectorBackend) Search(ctx context.Context, query []float32, limit int) ([]types.VectorMatch, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT vector_id, embedding, content, metadata FROM vectors`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	matches := []types.VectorMatch{}
	for rows.Next() {
		var id, embedding string
		var content, meta sql.NullString
		if err := rows.Scan(&id, &embedding, &content, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan vector: %w", err)
		}
		vec, err := storage.DecodeVector(embedding)
		if err != nil {
			log.Warnw("sqlite vectors: skipping undecodable embedding", "vector_id", id, "error", err)
			continue
		}
		metadata, err := storage.DecodeMetadata(meta.String)
		if err != nil {
			log.Warnw("sqlite vectors: malformed metadata", "vector_id", id, "error", err)
		}
		matches = append(matches, types.VectorMatch{
			ID:       id,
			Content:  content.String,
			Metadata: metadata,
			Distance: storage.CosineDistance(query, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vectors: %w", err)
	}
	return storage.SortMatches(matches, limit), nil
}

// Count returns the number of stored vectors.
func (b *VectorBackend) Count(ctx context.Context) (int, error) {
	var n int
	if err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return n, nil
}

// Clear drops and recreates the vector table.
func (b *VectorBackend) Clear(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DROP TABLE IF EXISTS vectors`); err != nil {
		return fmt.Errorf("failed to drop vectors: %w", err)
	}
	if _, err := b.db.ExecContext(ctx, VectorSchema); err != nil {
		return fmt.Errorf("failed to recreate vectors: %w", err)
	}
	return nil
}

// RebuildIndex is a no-op: a linear scan has no index.
func (b *VectorBackend) RebuildIndex(context.Context) error { return nil }

// Close closes the database.
func (b *VectorBackend) Close() error { return b.db.Close() }

// Compile-time assertion.
var _ storage.VectorBackend = (*VectorBackend)(nil)
