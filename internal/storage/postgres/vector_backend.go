// Package postgres provides the pgvector-backed approximate nearest neighbour
// vector backend.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/pkg/log"
	"github.com/scrypster/fileflow/pkg/types"
)

// DefaultTable is the vector table name used when none is configured.
const DefaultTable = "fileflow_vectors"

var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// VectorBackend stores embeddings in PostgreSQL. With the pgvector extension
// each row also carries a vector column covered by an HNSW cosine index.
// Without it, or when a vector insert fails, rows keep only the serialized
// text vector and are served by linear scan.
type VectorBackend struct {
	db                *sql.DB
	table             string
	dimension         int
	pgvectorAvailable bool
}

// NewVectorBackend connects to dsn, probes for pgvector and creates the table.
func NewVectorBackend(ctx context.Context, dsn, table string, dimension int) (*VectorBackend, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identifierRe.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", storage.ErrInvalidInput, table)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", storage.ErrInvalidInput)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	b := &VectorBackend{db: db, table: table, dimension: dimension}

	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		log.Warnw("postgres: pgvector extension not available, vectors stored as text", "error", err)
	} else {
		b.pgvectorAvailable = true
	}

	if err := b.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *VectorBackend) indexName() string { return b.table + "_embedding_hnsw" }

func (b *VectorBackend) ensureSchema(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			vector_id      TEXT PRIMARY KEY,
			embedding_text TEXT NOT NULL,
			content        TEXT,
			metadata       JSONB,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, b.table)); err != nil {
		return fmt.Errorf("postgres: failed to create vector table: %w", err)
	}

	if !b.pgvectorAvailable {
		return nil
	}
	if _, err := b.db.ExecContext(ctx, fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN IF NOT EXISTS embedding_vec vector(%d)`, b.table, b.dimension)); err != nil {
		log.Warnw("postgres: failed to add vector column, vectors stored as text", "error", err)
		b.pgvectorAvailable = false
		return nil
	}
	if err := b.createIndex(ctx); err != nil {
		log.Warnw("postgres: failed to create HNSW index, searches fall back to sequential scan", "error", err)
	}
	return nil
}

func (b *VectorBackend) createIndex(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding_vec vector_cosine_ops)`,
		b.indexName(), b.table))
	return err
}

// Name implements storage.VectorBackend.
func (b *VectorBackend) Name() string { return "pgvector" }

// PgvectorAvailable reports whether the vector column is in use.
func (b *VectorBackend) PgvectorAvailable() bool { return b.pgvectorAvailable }

// Store inserts a record. The text vector is always written; the pgvector
// column is written when available, and a failure there degrades the row to
// text only instead of failing the caller.
func (b *VectorBackend) Store(ctx context.Context, rec *types.VectorRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: vector id is required", storage.ErrInvalidInput)
	}
	text, err := storage.EncodeVector(rec.Embedding)
	if err != nil {
		return err
	}
	meta, err := storage.EncodeMetadata(rec.Metadata)
	if err != nil {
		return err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if b.pgvectorAvailable {
		_, err := b.db.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (vector_id, embedding_text, content, metadata, created_at, embedding_vec)
			VALUES ($1, $2, $3, $4::jsonb, $5, $6)`, b.table),
			rec.ID, text, rec.Content, meta, createdAt, pgvector.NewVector(rec.Embedding))
		if err == nil {
			return nil
		}
		log.Warnw("postgres: vector insert failed, storing text vector only", "vector_id", rec.ID, "error", err)
	}
	return b.insertText(ctx, rec, text, meta, createdAt)
}

// insertText writes a row without the pgvector column.
func (b *VectorBackend) insertText(ctx context.Context, rec *types.VectorRecord, text, meta string, createdAt time.Time) error {
	if _, err := b.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (vector_id, embedding_text, content, metadata, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)`, b.table),
		rec.ID, text, rec.Content, meta, createdAt); err != nil {
		return fmt.Errorf("postgres: failed to store vector: %w", err)
	}
	return nil
}

// Search merges index hits with a linear scan over rows that only have a
// text vector.
func (b *VectorBackend) Search(ctx context.Context, query []float32, limit int) ([]types.VectorMatch, error) {
	matches := []types.VectorMatch{}

	scanWhere := ""
	if b.pgvectorAvailable {
		indexed, err := b.searchIndexed(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		matches = append(matches, indexed...)
		scanWhere = " WHERE embedding_vec IS NULL"
	}

	scanned, err := b.searchText(ctx, query, scanWhere)
	if err != nil {
		return nil, err
	}
	matches = append(matches, scanned...)
	return storage.SortMatches(matches, limit), nil
}

func (b *VectorBackend) searchIndexed(ctx context.Context, query []float32, limit int) ([]types.VectorMatch, error) {
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT vector_id, COALESCE(content, ''), COALESCE(metadata::text, '{}'), embedding_vec <=> $1 AS distance
		FROM %s
		WHERE embedding_vec IS NOT NULL
		ORDER BY embedding_vec <=> $1
		LIMIT $2`, b.table), pgvector.NewVector(query), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search failed: %w", err)
	}
	defer rows.Close()

	var out []types.VectorMatch
	for rows.Next() {
		var m types.VectorMatch
		var meta string
		var distance sql.NullFloat64
		if err := rows.Scan(&m.ID, &m.Content, &meta, &distance); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan match: %w", err)
		}
		// <=> yields NaN for zero vectors.
		m.Distance = 1
		if distance.Valid && !math.IsNaN(distance.Float64) {
			m.Distance = distance.Float64
		}
		m.Metadata = decodeMeta(m.ID, meta)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (b *VectorBackend) searchText(ctx context.Context, query []float32, where string) ([]types.VectorMatch, error) {
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT vector_id, embedding_text, COALESCE(content, ''), COALESCE(metadata::text, '{}')
		FROM %s%s`, b.table, where))
	if err != nil {
		return nil, fmt.Errorf("postgres: text vector scan failed: %w", err)
	}
	defer rows.Close()

	var out []types.VectorMatch
	for rows.Next() {
		var m types.VectorMatch
		var text, meta string
		if err := rows.Scan(&m.ID, &text, &m.Content, &meta); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan text vector: %w", err)
		}
		vec, err := storage.DecodeVector(text)
		if err != nil {
			log.Warnw("postgres: skipping undecodable text vector", "vector_id", m.ID, "error", err)
			continue
		}
		m.Distance = storage.CosineDistance(query, vec)
		m.Metadata = decodeMeta(m.ID, meta)
		out = append(out, m)
	}
	return out, rows.Err()
}

func decodeMeta(id, raw string) map[string]interface{} {
	meta, err := storage.DecodeMetadata(raw)
	if err != nil {
		log.Warnw("postgres: malformed vector metadata", "vector_id", id, "error", err)
	}
	return meta
}

// Count returns the number of stored vectors.
func (b *VectorBackend) Count(ctx context.Context) (int, error) {
	var n int
	if err := b.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, b.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: failed to count vectors: %w", err)
	}
	return n, nil
}

// Clear drops and recreates the vector table and its index.
func (b *VectorBackend) Clear(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, b.table)); err != nil {
		return fmt.Errorf("postgres: failed to drop vector table: %w", err)
	}
	return b.ensureSchema(ctx)
}

// RebuildIndex drops the HNSW index, backfills the vector column from the
// text vectors and recreates the index. Without pgvector it does nothing.
func (b *VectorBackend) RebuildIndex(ctx context.Context) error {
	if !b.pgvectorAvailable {
		return nil
	}
	if _, err := b.db.ExecContext(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS %s`, b.indexName())); err != nil {
		return fmt.Errorf("postgres: failed to drop index: %w", err)
	}
	res, err := b.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET embedding_vec = embedding_text::vector
		WHERE embedding_vec IS NULL AND json_array_length(embedding_text::json) = $1`, b.table), b.dimension)
	if err != nil {
		return fmt.Errorf("postgres: failed to backfill vectors: %w", err)
	}
	if err := b.createIndex(ctx); err != nil {
		return fmt.Errorf("postgres: failed to create index: %w", err)
	}
	backfilled, _ := res.RowsAffected()
	log.Infow("postgres: vector index rebuilt", "table", b.table, "backfilled", backfilled)
	return nil
}

// Close closes the connection pool.
func (b *VectorBackend) Close() error { return b.db.Close() }

// Compile-time assertion.
var _ storage.VectorBackend = (*VectorBackend)(nil)
