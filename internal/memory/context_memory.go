// Package memory keeps naming consistent across documents. It maps every
// spelling of an entity ever seen onto one canonical name and answers which
// earlier documents are relevant to new content.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/pkg/log"
	"github.com/scrypster/fileflow/pkg/types"
)

// Store is the subset of the record store ContextMemory depends on.
type Store interface {
	storage.EntityStore
	storage.ContextStore
	storage.ActivityLog
	SearchDocumentsByEntity(ctx context.Context, entity string) ([]*types.FileAnalysis, error)
}

// Statistics limits.
const (
	topEntityLimit    = 10
	recentEntityLimit = 5
)

// ContextMemory caches lowercased variation -> canonical name. The store
// remains the source of truth; the cache can be rebuilt at any time with
// LoadEntityCache.
type ContextMemory struct {
	store Store

	mu    sync.Mutex
	cache map[string]string
	keys  []string // insertion order, so fuzzy matching is deterministic
}

// New returns a ContextMemory with its cache loaded from store. A failed load
// leaves an empty cache.
func New(ctx context.Context, store Store) *ContextMemory {
	m := &ContextMemory{store: store}
	if err := m.LoadEntityCache(ctx); err != nil {
		log.Warnw("memory: entity cache load failed, starting empty", "error", err)
	}
	return m
}

// LoadEntityCache rebuilds the cache from the store's entity table.
func (m *ContextMemory) LoadEntityCache(ctx context.Context) error {
	entities, err := m.store.ListEntities(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]string)
	m.keys = nil
	if err != nil {
		return fmt.Errorf("memory: failed to list entities: %w", err)
	}
	for _, e := range entities {
		m.put(strings.ToLower(e.Name), e.Name)
		for _, v := range e.Variations {
			m.put(strings.ToLower(strings.TrimSpace(v)), e.Name)
		}
	}
	log.Debugw("memory: entity cache loaded", "entities", len(entities), "keys", len(m.keys))
	return nil
}

// put must be called with mu held.
func (m *ContextMemory) put(key, canonical string) {
	if key == "" {
		return
	}
	if _, ok := m.cache[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.cache[key] = canonical
}

// CacheSize returns the number of cached variations.
func (m *ContextMemory) CacheSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

// NormalizeEntityName resolves raw to its canonical entity name, minting and
// persisting a new entity when nothing similar is known. Persistence failures
// are logged; the name is still returned so processing can continue.
func (m *ContextMemory) NormalizeEntityName(ctx context.Context, raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return strings.TrimSpace(raw)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if canonical, ok := m.cache[key]; ok {
		return canonical
	}

	for _, cached := range m.keys {
		if !similar(key, cached) {
			continue
		}
		canonical := m.cache[cached]
		m.put(key, canonical)
		if err := m.store.AddEntityVariation(ctx, canonical, raw); err != nil {
			log.Warnw("memory: failed to persist entity variation", "canonical", canonical, "variation", raw, "error", err)
		}
		return canonical
	}

	canonical := TitleCase(raw)
	m.put(key, canonical)
	if err := m.store.StoreEntity(ctx, canonical, []string{raw}); err != nil {
		log.Warnw("memory: failed to persist new entity", "canonical", canonical, "error", err)
		return canonical
	}
	_ = m.store.LogActivity(ctx, types.ActivityEntityCreated, "New entity: "+canonical,
		map[string]interface{}{"entity_name": canonical, "variation": raw})
	return canonical
}

// NormalizeEntities normalizes each name, dropping blanks and duplicates
// while keeping first-seen order.
func (m *ContextMemory) NormalizeEntities(ctx context.Context, names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		canonical := m.NormalizeEntityName(ctx, n)
		if canonical == "" {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

// UpdateContext records a document context for filePath with normalized
// entities, a bounded summary and the top keywords, then logs
// context_updated.
func (m *ContextMemory) UpdateContext(ctx context.Context, entities []string, content, filePath string) error {
	normalized := m.NormalizeEntities(ctx, entities)
	keywords := ExtractKeywords(content, storage.MaxContextKeywords)

	dc := &types.DocumentContext{
		FilePath:       filePath,
		Entities:       normalized,
		ContentSummary: storage.Truncate(content, storage.MaxSummaryChars),
		Keywords:       keywords,
	}
	if err := m.store.StoreDocumentContext(ctx, dc); err != nil {
		return fmt.Errorf("memory: failed to store document context: %w", err)
	}

	return m.store.LogActivity(ctx, types.ActivityContextUpdated, "Context updated for file: "+filePath,
		map[string]interface{}{
			"file_path":     filePath,
			"entities":      normalized,
			"keyword_count": len(keywords),
		})
}

// GetRelevantContext returns up to limit earlier documents sharing keywords
// with content. Failures yield an empty result.
func (m *ContextMemory) GetRelevantContext(ctx context.Context, content string, limit int) []types.RelatedDocument {
	keywords := ExtractKeywords(content, RelevanceKeywords)
	if len(keywords) == 0 {
		return []types.RelatedDocument{}
	}
	docs, err := m.store.SearchRelatedDocuments(ctx, keywords, limit)
	if err != nil {
		log.Warnw("memory: related document search failed", "error", err)
		return []types.RelatedDocument{}
	}
	return docs
}

// Resolve looks up the canonical form of raw without minting or persisting
// anything. Unknown names resolve to their title-cased form.
func (m *ContextMemory) Resolve(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if canonical, ok := m.cache[key]; ok {
		return canonical
	}
	for _, cached := range m.keys {
		if similar(key, cached) {
			return m.cache[cached]
		}
	}
	return TitleCase(raw)
}

// SearchByEntity returns analyses mentioning the canonical form of name.
// Searching never creates entities.
func (m *ContextMemory) SearchByEntity(ctx context.Context, name string) ([]*types.FileAnalysis, error) {
	canonical := m.Resolve(name)
	if canonical == "" {
		return []*types.FileAnalysis{}, nil
	}
	return m.store.SearchDocumentsByEntity(ctx, canonical)
}

// EntityStatistics summarises known entities. Store failures degrade to
// empty lists.
func (m *ContextMemory) EntityStatistics(ctx context.Context) types.EntityStatistics {
	stats := types.EntityStatistics{
		TopEntities:    []types.EntityUsage{},
		RecentEntities: []types.EntityUsage{},
	}
	if entities, err := m.store.ListEntities(ctx); err == nil {
		stats.TotalEntities = len(entities)
	} else {
		log.Warnw("memory: failed to count entities", "error", err)
	}
	if top, err := m.store.TopEntities(ctx, topEntityLimit); err == nil {
		stats.TopEntities = top
	}
	if recent, err := m.store.RecentEntities(ctx, recentEntityLimit); err == nil {
		stats.RecentEntities = recent
	}
	return stats
}
