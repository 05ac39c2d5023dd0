package qdrant

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/fileflow/pkg/types"
)

func qdrantTestAddr(t *testing.T) string {
	t.Helper()

	addr := os.Getenv("QDRANT_TEST_ADDR")
	if addr == "" {
		t.Skip("QDRANT_TEST_ADDR not set; skipping Qdrant integration tests")
	}
	return addr
}

func newTestBackend(t *testing.T) *VectorBackend {
	t.Helper()
	ctx := context.Background()

	collection := fmt.Sprintf("fileflow_test_%d", time.Now().UnixNano())
	b, err := NewVectorBackend(ctx, Options{Addr: qdrantTestAddr(t), Collection: collection}, 3)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = b.client.DeleteCollection(context.Background(), collection)
		_ = b.Close()
	})
	return b
}

func TestSplitAddr(t *testing.T) {
	host, port, err := splitAddr("qdrant.local:7000")
	require.NoError(t, err)
	assert.Equal(t, "qdrant.local", host)
	assert.Equal(t, 7000, port)

	host, port, err = splitAddr("localhost")
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)
	assert.Equal(t, DefaultPort, port)

	_, _, err = splitAddr("")
	assert.Error(t, err)
	_, _, err = splitAddr("host:abc")
	assert.Error(t, err)
}

func TestPointIDIsStable(t *testing.T) {
	id := uuid.NewString()
	assert.Equal(t, id, pointID(id).GetUuid())
	assert.Equal(t, pointID("v1").GetUuid(), pointID("v1").GetUuid())
	assert.NotEqual(t, pointID("v1").GetUuid(), pointID("v2").GetUuid())
}

func TestVectorBackendStoreAndSearch(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Store(ctx, &types.VectorRecord{
		ID: "v1", Embedding: []float32{1, 0, 0}, Content: "alpha",
		Metadata: map[string]interface{}{"file_path": "/a"},
	}))
	require.NoError(t, b.Store(ctx, &types.VectorRecord{ID: "v2", Embedding: []float32{0, 1, 0}, Content: "beta"}))

	matches, err := b.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "v1", matches[0].ID)
	assert.InDelta(t, 0, matches[0].Distance, 1e-5)
	assert.Equal(t, "alpha", matches[0].Content)
	assert.Equal(t, "/a", matches[0].Metadata["file_path"])

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestVectorBackendClear(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Store(ctx, &types.VectorRecord{ID: "v1", Embedding: []float32{1, 1, 1}}))
	require.NoError(t, b.Clear(ctx))

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, b.RebuildIndex(ctx))
}
