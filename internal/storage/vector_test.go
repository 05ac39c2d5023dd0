package storage

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/fileflow/pkg/types"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero norm query", []float32{0, 0}, []float32{1, 1}, 0},
		{"zero norm stored", []float32{1, 1}, []float32{0, 0}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCosineDistanceZeroNormIsOne(t *testing.T) {
	assert.Equal(t, 1.0, CosineDistance([]float32{0, 0, 0}, []float32{0.5, 0.1, 0.2}))
}

func TestEncodeDecodeVector(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	s, err := EncodeVector(in)
	require.NoError(t, err)
	assert.Equal(t, "[0.25,-1.5,3]", s)

	out, err := DecodeVector(s)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncodeVectorRejectsBadInput(t *testing.T) {
	_, err := EncodeVector(nil)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = EncodeVector([]float32{1, float32(math.NaN())})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestSortMatches(t *testing.T) {
	matches := []types.VectorMatch{
		{ID: "c", Distance: 0.5},
		{ID: "b", Distance: 0.1},
		{ID: "a", Distance: 0.5},
		{ID: "d", Distance: 0.9},
	}
	got := SortMatches(matches, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
}

func TestDecodeMetadataMalformed(t *testing.T) {
	m, err := DecodeMetadata("{not json")
	assert.Error(t, err)
	assert.NotNil(t, m)
	assert.Empty(t, m)

	m, err = DecodeMetadata("")
	assert.NoError(t, err)
	assert.Empty(t, m)
}

func TestTimeLayoutSortsLexically(t *testing.T) {
	base := time.Date(2024, 6, 19, 10, 0, 0, 100_000_000, time.UTC)
	later := base.Add(20 * time.Millisecond)
	assert.Less(t, FormatTime(base), FormatTime(later))
	assert.True(t, ParseTime(FormatTime(later)).Equal(later))
	assert.True(t, ParseTime("garbage").IsZero())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héll", Truncate("héllo", 4))
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "", Truncate("abc", 0))
}
