// Package monitor turns file-system events into reviewed naming suggestions.
//
// Every run follows the same pipeline: extract, analyze with context hints,
// normalize entities, embed, store the vector, store the analysis as pending,
// update context memory and record exactly one outcome activity. Runs are fed
// by an initial scan and an fsnotify watcher and executed on a worker pool.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/scrypster/fileflow/internal/extractor"
	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/pkg/log"
	"github.com/scrypster/fileflow/pkg/types"
)

// DefaultExtensions are the file types processed when none are configured.
var DefaultExtensions = []string{
	".pdf", ".docx", ".doc", ".txt", ".md",
	".jpg", ".jpeg", ".png", ".bmp", ".tiff",
}

// Defaults applied by New to zero Config fields.
const (
	DefaultRecencyWindow = time.Hour
	DefaultDebounce      = 500 * time.Millisecond
	DefaultWorkers       = 2
	DefaultQueueSize     = 100

	// contextHintLimit bounds the related documents passed to analysis.
	contextHintLimit = 5
)

// Skip reasons recorded on file_skipped activities.
const (
	ReasonUnsupported     = "unsupported_extension"
	ReasonRecent          = "recently_processed"
	ReasonNoContent       = "no_content"
	ReasonMissing         = "file_missing"
	ReasonAlreadyReviewed = "already_reviewed"
)

// Store is the part of the record store the pipeline writes to.
type Store interface {
	StoreFileAnalysis(ctx context.Context, a *types.FileAnalysis) error
	GetFileAnalysisByPath(ctx context.Context, path string) (*types.FileAnalysis, error)
	IsFileRecentlyProcessed(ctx context.Context, path string, within time.Duration) bool
	LogActivity(ctx context.Context, activityType, description string, metadata map[string]interface{}) error
}

// VectorStore stores one embedding per run.
type VectorStore interface {
	StoreEmbedding(ctx context.Context, embedding []float32, content string, metadata map[string]interface{}) (string, error)
}

// Memory is the context memory used for hints and entity normalization.
type Memory interface {
	GetRelevantContext(ctx context.Context, content string, limit int) []types.RelatedDocument
	NormalizeEntities(ctx context.Context, names []string) []string
	UpdateContext(ctx context.Context, entities []string, content, filePath string) error
}

// Analyzer produces naming suggestions and embeddings. Neither call fails;
// implementations fall back instead.
type Analyzer interface {
	Analyze(ctx context.Context, content string, meta types.FileMetadata, hints []types.RelatedDocument) types.Analysis
	Embed(ctx context.Context, content string) []float32
}

// Deps are the collaborators of a Monitor. All are required.
type Deps struct {
	Store     Store
	Vectors   VectorStore
	Memory    Memory
	Analyzer  Analyzer
	Extractor extractor.Extractor
}

// Config controls what is watched and how runs are scheduled.
type Config struct {
	// Dir is the watched folder.
	Dir string

	// Recursive also watches every subdirectory, including new ones.
	Recursive bool

	// Extensions is the set of processed extensions (with or without dot).
	Extensions []string

	// RecencyWindow is the dedup window passed to IsFileRecentlyProcessed.
	RecencyWindow time.Duration

	// Debounce coalesces bursts of events for one path into a single run.
	Debounce time.Duration

	// Workers is the number of concurrent runs.
	Workers int

	// QueueSize bounds the number of dispatched but unstarted runs.
	QueueSize int
}

// Outcome classifies a finished run.
type Outcome string

// Run outcomes.
const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Result describes one run of the pipeline.
type Result struct {
	Path     string
	Outcome  Outcome
	Reason   string
	Analysis *types.FileAnalysis
	Err      error
}

type job struct {
	path      string
	eventType string
}

// Monitor runs the file pipeline for a watched folder.
type Monitor struct {
	cfg        Config
	deps       Deps
	extensions map[string]struct{}
	locks      *pathLocks

	mu      sync.Mutex
	started bool
	stopped bool
	pending map[string]*pendingEvent
	renames []time.Time

	runCtx     context.Context
	watcher    *fsnotify.Watcher
	jobs       chan job
	stopCh     chan struct{}
	loopDone   chan struct{}
	workerWG   sync.WaitGroup
	dispatchWG sync.WaitGroup
	scanWG     sync.WaitGroup
}

// New validates deps and returns a Monitor. Zero config fields take defaults.
func New(cfg Config, deps Deps) (*Monitor, error) {
	if deps.Store == nil || deps.Vectors == nil || deps.Memory == nil || deps.Analyzer == nil || deps.Extractor == nil {
		return nil, fmt.Errorf("%w: monitor requires store, vectors, memory, analyzer and extractor", storage.ErrInvalidInput)
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	if cfg.RecencyWindow <= 0 {
		cfg.RecencyWindow = DefaultRecencyWindow
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	exts := make(map[string]struct{}, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}

	return &Monitor{
		cfg:        cfg,
		deps:       deps,
		extensions: exts,
		locks:      newPathLocks(),
		pending:    make(map[string]*pendingEvent),
	}, nil
}

// Supported reports whether path has a processed extension.
func (m *Monitor) Supported(path string) bool {
	_, ok := m.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ProcessFile runs the pipeline for path. Runs for the same path are
// serialized. Exactly one of file_processed, file_skipped or
// file_processing_error is logged per call.
func (m *Monitor) ProcessFile(ctx context.Context, path, eventType string) Result {
	unlock := m.locks.lock(path)
	defer unlock()

	res := m.process(ctx, path, eventType)
	m.record(ctx, res, eventType)
	return res
}

func (m *Monitor) process(ctx context.Context, path, eventType string) Result {
	skip := func(reason string) Result {
		return Result{Path: path, Outcome: OutcomeSkipped, Reason: reason}
	}
	failed := func(err error) Result {
		return Result{Path: path, Outcome: OutcomeFailed, Err: err}
	}

	if !m.Supported(path) {
		return skip(ReasonUnsupported)
	}
	if m.deps.Store.IsFileRecentlyProcessed(ctx, path, m.cfg.RecencyWindow) {
		return skip(ReasonRecent)
	}

	extracted, err := m.deps.Extractor.Extract(ctx, path)
	if errors.Is(err, fs.ErrNotExist) {
		return skip(ReasonMissing)
	}
	if err != nil {
		return failed(err)
	}
	if extracted == nil || strings.TrimSpace(extracted.Content) == "" {
		return skip(ReasonNoContent)
	}

	content := extracted.Content
	hash := storage.ContentHash(content)
	if prev, err := m.deps.Store.GetFileAnalysisByPath(ctx, path); err == nil {
		if prev.Status.IsTerminal() && prev.ContentHash == hash {
			return skip(ReasonAlreadyReviewed)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		log.Warnw("monitor: previous analysis lookup failed", "path", path, "error", err)
	}

	hints := m.deps.Memory.GetRelevantContext(ctx, content, contextHintLimit)
	analysis := m.deps.Analyzer.Analyze(ctx, content, extracted.Metadata, hints)
	entities := m.deps.Memory.NormalizeEntities(ctx, analysis.Entities)

	embedding := m.deps.Analyzer.Embed(ctx, content)

	originalName := filepath.Base(path)
	vectorID, err := m.deps.Vectors.StoreEmbedding(ctx, embedding, content, map[string]interface{}{
		"file_path":      path,
		"original_name":  originalName,
		"suggested_name": analysis.SuggestedName,
		"entities":       entities,
		"event_type":     eventType,
	})
	if err != nil {
		return failed(fmt.Errorf("failed to store embedding: %w", err))
	}

	record := &types.FileAnalysis{
		FilePath:      path,
		OriginalName:  originalName,
		SuggestedName: analysis.SuggestedName,
		Content:       content,
		Metadata:      extracted.Metadata,
		Entities:      entities,
		Confidence:    analysis.Confidence,
		Reasoning:     analysis.Reasoning,
		VectorID:      vectorID,
		EventType:     eventType,
		ContentHash:   hash,
	}
	if err := m.deps.Store.StoreFileAnalysis(ctx, record); err != nil {
		return failed(fmt.Errorf("failed to store analysis: %w", err))
	}

	if err := m.deps.Memory.UpdateContext(ctx, entities, content, path); err != nil {
		log.Warnw("monitor: context update failed", "path", path, "error", err)
	}

	return Result{Path: path, Outcome: OutcomeProcessed, Analysis: record}
}

// record writes the outcome activity for res.
func (m *Monitor) record(ctx context.Context, res Result, eventType string) {
	name := filepath.Base(res.Path)
	var err error
	switch res.Outcome {
	case OutcomeProcessed:
		log.Infow("monitor: file processed", "path", res.Path, "suggested_name", res.Analysis.SuggestedName)
		err = m.deps.Store.LogActivity(ctx, types.ActivityFileProcessed, "Processed file: "+name, map[string]interface{}{
			"file_path":      res.Path,
			"suggested_name": res.Analysis.SuggestedName,
			"entities":       res.Analysis.Entities,
			"event_type":     eventType,
			"analysis_id":    res.Analysis.ID,
			"vector_id":      res.Analysis.VectorID,
		})
	case OutcomeSkipped:
		log.Debugw("monitor: file skipped", "path", res.Path, "reason", res.Reason)
		err = m.deps.Store.LogActivity(ctx, types.ActivityFileSkipped, "Skipped file: "+name, map[string]interface{}{
			"file_path":  res.Path,
			"reason":     res.Reason,
			"event_type": eventType,
		})
	default:
		log.Error("monitor: file processing failed", res.Err, "path", res.Path)
		err = m.deps.Store.LogActivity(ctx, types.ActivityProcessingError,
			fmt.Sprintf("Error processing file %s: %v", res.Path, res.Err), map[string]interface{}{
				"file_path":  res.Path,
				"error":      res.Err.Error(),
				"event_type": eventType,
			})
	}
	if err != nil {
		log.Error("monitor: failed to record outcome", err, "path", res.Path)
	}
}

// pathLocks serializes runs per path.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

func (p *pathLocks) lock(path string) func() {
	p.mu.Lock()
	l, ok := p.locks[path]
	if !ok {
		l = &pathLock{}
		p.locks[path] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, path)
		}
		p.mu.Unlock()
	}
}
