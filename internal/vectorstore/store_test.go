package vectorstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/internal/storage/sqlite"
	"github.com/scrypster/fileflow/pkg/types"
)

// fakeBackend is an in-memory backend with injectable failures.
type fakeBackend struct {
	mu        sync.Mutex
	name      string
	records   []*types.VectorRecord
	searchErr error
	storeErr  error
	rebuilt   int
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Store(_ context.Context, rec *types.VectorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return f.storeErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeBackend) Search(_ context.Context, query []float32, limit int) ([]types.VectorMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	matches := make([]types.VectorMatch, 0, len(f.records))
	for _, r := range f.records {
		matches = append(matches, types.VectorMatch{ID: r.ID, Content: r.Content, Distance: storage.CosineDistance(query, r.Embedding)})
	}
	return storage.SortMatches(matches, limit), nil
}

func (f *fakeBackend) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records), nil
}

func (f *fakeBackend) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = nil
	return nil
}

func (f *fakeBackend) RebuildIndex(context.Context) error {
	f.rebuilt++
	return nil
}

func (f *fakeBackend) Close() error { return nil }

func TestStoreEmbeddingAssignsTimeOrderedIDs(t *testing.T) {
	fb := &fakeBackend{name: "fake"}
	s := New(fb, 3)
	ctx := context.Background()

	id1, err := s.StoreEmbedding(ctx, []float32{1, 0, 0}, "one", nil)
	require.NoError(t, err)
	id2, err := s.StoreEmbedding(ctx, []float32{0, 1, 0}, "two", nil)
	require.NoError(t, err)

	u, err := uuid.Parse(id1)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), u.Version())
	assert.Less(t, id1, id2)
	assert.Equal(t, 2, s.TotalEmbeddings(ctx))
	assert.Equal(t, "fake", s.Backend())
}

func TestStoreEmbeddingTruncatesContent(t *testing.T) {
	fb := &fakeBackend{name: "fake"}
	s := New(fb, 2)

	_, err := s.StoreEmbedding(context.Background(), []float32{1, 1}, strings.Repeat("x", 2500), nil)
	require.NoError(t, err)
	require.Len(t, fb.records, 1)
	assert.Len(t, fb.records[0].Content, MaxContentChars)
}

func TestStoreEmbeddingDimensionMismatch(t *testing.T) {
	s := New(&fakeBackend{name: "fake"}, 3)
	_, err := s.StoreEmbedding(context.Background(), []float32{1, 0}, "x", nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 0, s.TotalEmbeddings(context.Background()))
}

func TestStoreEmbeddingPropagatesBackendError(t *testing.T) {
	s := New(&fakeBackend{name: "fake", storeErr: errors.New("disk full")}, 1)
	_, err := s.StoreEmbedding(context.Background(), []float32{1}, "x", nil)
	assert.Error(t, err)
}

func TestSearchSimilarFailureYieldsEmpty(t *testing.T) {
	s := New(&fakeBackend{name: "fake", searchErr: errors.New("boom")}, 1)
	matches := s.SearchSimilar(context.Background(), []float32{1}, 5)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestNewDefaultsDimension(t *testing.T) {
	assert.Equal(t, types.DefaultEmbeddingDimension, New(&fakeBackend{}, 0).Dimension())
}

func TestStoreEmbeddingConcurrentWrites(t *testing.T) {
	s := New(&fakeBackend{name: "fake"}, 2)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.StoreEmbedding(ctx, []float32{1, 0}, "x", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, s.TotalEmbeddings(ctx))
}

// exerciseBackend runs the same scenario against any backend so results can
// be compared across implementations.
func exerciseBackend(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.ClearAllVectors(ctx))
	idA, err := s.StoreEmbedding(ctx, []float32{1, 0, 0}, "invoice acme", map[string]interface{}{"file_path": "/a"})
	require.NoError(t, err)
	_, err = s.StoreEmbedding(ctx, []float32{0.8, 0.2, 0}, "receipt", nil)
	require.NoError(t, err)
	_, err = s.StoreEmbedding(ctx, []float32{0, 0, 1}, "memo", nil)
	require.NoError(t, err)

	matches := s.SearchSimilar(ctx, []float32{1, 0, 0}, 2)
	require.Len(t, matches, 2)
	assert.Equal(t, idA, matches[0].ID)
	assert.InDelta(t, 0, matches[0].Distance, 1e-5)
	assert.Equal(t, "/a", matches[0].Metadata["file_path"])
	assert.LessOrEqual(t, matches[0].Distance, matches[1].Distance)

	assert.Equal(t, 3, s.TotalEmbeddings(ctx))
	require.NoError(t, s.RebuildIndex(ctx))
	require.NoError(t, s.ClearAllVectors(ctx))
	assert.Equal(t, 0, s.TotalEmbeddings(ctx))
}

func TestSQLiteBackendScenario(t *testing.T) {
	backend, err := sqlite.NewVectorBackend(":memory:")
	require.NoError(t, err)
	s := New(backend, 3)
	t.Cleanup(func() { _ = s.Close() })

	assert.Equal(t, "sqlite", s.Backend())
	exerciseBackend(t, s)
}
