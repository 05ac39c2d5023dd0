// Package intelligence suggests file names, extracts entities and embeds
// content through an OpenAI-compatible API. Its public operations never fail:
// errors degrade to a fallback analysis or a zero vector.
package intelligence

import (
	"context"
	"errors"
	"time"

	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/pkg/log"
	"github.com/scrypster/fileflow/pkg/types"
)

// ErrNotConfigured is reported in fallback reasoning when no client is set.
var ErrNotConfigured = errors.New("intelligence service not configured")

// Backend is the transport Service uses. *Client implements it.
type Backend interface {
	ChatJSON(ctx context.Context, system, user string) (string, error)
	Embedding(ctx context.Context, text string) ([]float32, error)
}

// Service wraps a Backend with prompt building, parsing and fallbacks.
type Service struct {
	backend   Backend
	dimension int
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for dates in prompts and names.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a Service. A nil backend makes every call fall back.
func NewService(backend Backend, dimension int, opts ...Option) *Service {
	if dimension <= 0 {
		dimension = types.DefaultEmbeddingDimension
	}
	s := &Service{backend: backend, dimension: dimension, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze returns a naming suggestion for content.
func (s *Service) Analyze(ctx context.Context, content string, meta types.FileMetadata, hints []types.RelatedDocument) types.Analysis {
	now := s.now()
	if s.backend == nil {
		return FallbackAnalysis(now, ErrNotConfigured)
	}

	reply, err := s.backend.ChatJSON(ctx, SystemPrompt, BuildAnalysisPrompt(content, meta, hints, now))
	if err != nil {
		log.Warnw("intelligence: analysis request failed", "file", meta.FileName, "error", err)
		return FallbackAnalysis(now, err)
	}
	analysis, err := ParseAnalysis(reply, now)
	if err != nil {
		log.Warnw("intelligence: unusable analysis reply", "file", meta.FileName, "error", err)
		return FallbackAnalysis(now, err)
	}
	log.Debugw("intelligence: analysis complete",
		"file", meta.FileName, "suggested_name", analysis.SuggestedName, "confidence", analysis.Confidence)
	return analysis
}

// Embed returns the embedding of content, or a zero vector of the configured
// dimension when the call fails or returns the wrong length.
func (s *Service) Embed(ctx context.Context, content string) []float32 {
	if s.backend == nil {
		return make([]float32, s.dimension)
	}
	vec, err := s.backend.Embedding(ctx, storage.Truncate(content, MaxEmbeddingContentChars))
	if err != nil {
		log.Warnw("intelligence: embedding request failed", "error", err)
		return make([]float32, s.dimension)
	}
	if len(vec) != s.dimension {
		log.Warnw("intelligence: embedding has wrong dimension", "got", len(vec), "want", s.dimension)
		return make([]float32, s.dimension)
	}
	return vec
}

// Dimension returns the embedding length Embed guarantees.
func (s *Service) Dimension() int { return s.dimension }
