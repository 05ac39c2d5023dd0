package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/pkg/log"
	"github.com/scrypster/fileflow/pkg/types"
)

// ErrNoBackend is returned by Select when every candidate failed to open.
var ErrNoBackend = errors.New("no vector backend available")

// Candidate is one backend Select may try.
type Candidate struct {
	Name string
	Open func(ctx context.Context, dimension int) (storage.VectorBackend, error)
}

// Select opens candidates in order and returns a Store over the first one
// that succeeds. Failures are logged and the next candidate is tried.
func Select(ctx context.Context, dimension int, candidates ...Candidate) (*Store, error) {
	if dimension <= 0 {
		dimension = types.DefaultEmbeddingDimension
	}
	var errs []error
	for _, c := range candidates {
		if c.Open == nil {
			continue
		}
		backend, err := c.Open(ctx, dimension)
		if err != nil {
			log.Warnw("vectorstore: backend unavailable, trying next", "backend", c.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
			continue
		}
		log.Infow("vectorstore: backend selected", "backend", backend.Name(), "dimension", dimension)
		return New(backend, dimension), nil
	}
	if len(errs) == 0 {
		return nil, ErrNoBackend
	}
	return nil, fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
}
