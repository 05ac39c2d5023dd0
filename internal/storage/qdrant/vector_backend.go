// Package qdrant provides the vector backend backed by a Qdrant collection.
package qdrant

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/pkg/log"
	"github.com/scrypster/fileflow/pkg/types"
)

// DefaultCollection is used when no collection name is configured.
const DefaultCollection = "fileflow_vectors"

// DefaultPort is the Qdrant gRPC port.
const DefaultPort = 6334

// Payload keys.
const (
	payloadVectorID  = "vector_id"
	payloadContent   = "content"
	payloadMetadata  = "metadata"
	payloadCreatedAt = "created_at"
)

// VectorBackend stores embeddings as points in a single cosine collection.
type VectorBackend struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// Options locate the Qdrant server and collection.
type Options struct {
	// Addr is host or host:port of the gRPC endpoint.
	Addr       string
	Collection string
	APIKey     string
	UseTLS     bool
}

// NewVectorBackend connects to the server, verifies it responds and creates
// the collection when missing.
func NewVectorBackend(ctx context.Context, opts Options, dimension int) (*VectorBackend, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", storage.ErrInvalidInput)
	}
	collection := opts.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	host, port, err := splitAddr(opts.Addr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: opts.APIKey,
		UseTLS: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	b := &VectorBackend{client: client, collection: collection, dimension: dimension}
	if err := b.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return b, nil
}

func splitAddr(addr string) (string, int, error) {
	if addr == "" {
		return "", 0, fmt.Errorf("%w: qdrant address is required", storage.ErrInvalidInput)
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, DefaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return "", 0, fmt.Errorf("%w: invalid qdrant port %q", storage.ErrInvalidInput, portStr)
	}
	return host, port, nil
}

func (b *VectorBackend) ensureCollection(ctx context.Context) error {
	existing, err := b.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("qdrant: failed to list collections: %w", err)
	}
	for _, name := range existing {
		if name == b.collection {
			return nil
		}
	}
	err = b.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: b.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(b.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %s: %w", b.collection, err)
	}
	return nil
}

// Name implements storage.VectorBackend.
func (b *VectorBackend) Name() string { return "qdrant" }

// pointID maps a vector id onto a Qdrant point id. Qdrant accepts only UUIDs
// and integers, so other ids are hashed into a stable name-based UUID.
func pointID(id string) *qdrant.PointId {
	if u, err := uuid.Parse(id); err == nil {
		return qdrant.NewID(u.String())
	}
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String())
}

// Store upserts a record as a point. The original id travels in the payload.
func (b *VectorBackend) Store(ctx context.Context, rec *types.VectorRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: vector id is required", storage.ErrInvalidInput)
	}
	if len(rec.Embedding) != b.dimension {
		return fmt.Errorf("%w: expected %d dimensions, got %d", storage.ErrInvalidInput, b.dimension, len(rec.Embedding))
	}
	meta, err := storage.EncodeMetadata(rec.Metadata)
	if err != nil {
		return err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	wait := true
	_, err = b.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: b.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      pointID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Embedding...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				payloadVectorID:  rec.ID,
				payloadContent:   rec.Content,
				payloadMetadata:  meta,
				payloadCreatedAt: storage.FormatTime(createdAt),
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to upsert point: %w", err)
	}
	return nil
}

// Search queries the collection. Qdrant reports cosine similarity, which is
// converted to distance as 1 - score.
func (b *VectorBackend) Search(ctx context.Context, query []float32, limit int) ([]types.VectorMatch, error) {
	if limit <= 0 {
		return []types.VectorMatch{}, nil
	}
	n := uint64(limit)
	hits, err := b.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: b.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &n,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: query failed: %w", err)
	}

	matches := make([]types.VectorMatch, 0, len(hits))
	for _, hit := range hits {
		payload := hit.GetPayload()
		m := types.VectorMatch{
			ID:       stringValue(payload[payloadVectorID]),
			Content:  stringValue(payload[payloadContent]),
			Distance: 1 - float64(hit.GetScore()),
		}
		if m.ID == "" {
			m.ID = hit.GetId().GetUuid()
		}
		meta, err := storage.DecodeMetadata(stringValue(payload[payloadMetadata]))
		if err != nil {
			log.Warnw("qdrant: malformed vector metadata", "vector_id", m.ID, "error", err)
		}
		m.Metadata = meta
		matches = append(matches, m)
	}
	return storage.SortMatches(matches, limit), nil
}

func stringValue(v *qdrant.Value) string {
	if v == nil {
		return ""
	}
	return v.GetStringValue()
}

// Count returns the exact number of points in the collection.
func (b *VectorBackend) Count(ctx context.Context) (int, error) {
	n, err := b.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: b.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: failed to count points: %w", err)
	}
	return int(n), nil
}

// Clear deletes and recreates the collection.
func (b *VectorBackend) Clear(ctx context.Context) error {
	if err := b.client.DeleteCollection(ctx, b.collection); err != nil {
		return fmt.Errorf("qdrant: failed to delete collection: %w", err)
	}
	return b.ensureCollection(ctx)
}

// RebuildIndex is a no-op; Qdrant maintains its HNSW graph itself.
func (b *VectorBackend) RebuildIndex(ctx context.Context) error { return nil }

// Close closes the gRPC connection.
func (b *VectorBackend) Close() error { return b.client.Close() }

// Compile-time assertion.
var _ storage.VectorBackend = (*VectorBackend)(nil)
