// Package vectorstore fronts the configured vector backend with the
// operations the pipeline uses: id assignment, content truncation, dimension
// checks and error-tolerant search.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/pkg/log"
	"github.com/scrypster/fileflow/pkg/types"
)

// MaxContentChars bounds the content stored alongside a vector.
const MaxContentChars = 1000

// ErrDimensionMismatch is returned when an embedding's length differs from
// the store's configured dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Store wraps a single storage.VectorBackend.
type Store struct {
	backend   storage.VectorBackend
	dimension int
	writeMu   sync.Mutex
	now       func() time.Time
}

// New returns a Store over backend. A non-positive dimension selects
// types.DefaultEmbeddingDimension.
func New(backend storage.VectorBackend, dimension int) *Store {
	if dimension <= 0 {
		dimension = types.DefaultEmbeddingDimension
	}
	return &Store{backend: backend, dimension: dimension, now: time.Now}
}

// Dimension returns the fixed embedding length.
func (s *Store) Dimension() int { return s.dimension }

// Backend returns the name of the active backend.
func (s *Store) Backend() string { return s.backend.Name() }

// StoreEmbedding persists an embedding and returns its new time-ordered id.
func (s *Store) StoreEmbedding(ctx context.Context, embedding []float32, content string, metadata map[string]interface{}) (string, error) {
	if len(embedding) != s.dimension {
		return "", fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, s.dimension, len(embedding))
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("vectorstore: failed to generate id: %w", err)
	}

	rec := &types.VectorRecord{
		ID:        id.String(),
		Embedding: embedding,
		Content:   storage.Truncate(content, MaxContentChars),
		Metadata:  metadata,
		CreatedAt: s.now().UTC(),
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.backend.Store(ctx, rec); err != nil {
		return "", fmt.Errorf("vectorstore: %s store failed: %w", s.backend.Name(), err)
	}
	return rec.ID, nil
}

// SearchSimilar returns up to limit matches by ascending distance. Any backend
// failure yields an empty result.
func (s *Store) SearchSimilar(ctx context.Context, query []float32, limit int) []types.VectorMatch {
	if limit <= 0 || len(query) == 0 {
		return []types.VectorMatch{}
	}
	matches, err := s.backend.Search(ctx, query, limit)
	if err != nil {
		log.Warnw("vectorstore: search failed", "backend", s.backend.Name(), "error", err)
		return []types.VectorMatch{}
	}
	if matches == nil {
		return []types.VectorMatch{}
	}
	return matches
}

// TotalEmbeddings returns the number of stored vectors, or 0 on failure.
func (s *Store) TotalEmbeddings(ctx context.Context) int {
	n, err := s.backend.Count(ctx)
	if err != nil {
		log.Warnw("vectorstore: count failed", "backend", s.backend.Name(), "error", err)
		return 0
	}
	return n
}

// ClearAllVectors removes every stored vector.
func (s *Store) ClearAllVectors(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.backend.Clear(ctx)
}

// RebuildIndex rebuilds the backend's similarity index where it keeps one.
func (s *Store) RebuildIndex(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.backend.RebuildIndex(ctx)
}

// Close releases the backend.
func (s *Store) Close() error { return s.backend.Close() }
