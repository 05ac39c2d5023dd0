package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/fileflow/internal/extractor"
	"github.com/scrypster/fileflow/internal/intelligence"
	"github.com/scrypster/fileflow/internal/memory"
	"github.com/scrypster/fileflow/internal/storage/sqlite"
	"github.com/scrypster/fileflow/internal/vectorstore"
	"github.com/scrypster/fileflow/pkg/types"
)

const testDim = 4

const invoiceReply = `{"suggested_name":"2024-06-19_AcmeCorp_Invoice","entities":["Acme Corp"],"confidence":0.9,"reasoning":"invoice from Acme Corp","date":"2024-06-19"}`

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubBackend answers intelligence calls without a network.
type stubBackend struct {
	reply   string
	chatErr error
	embErr  error
}

func (b *stubBackend) ChatJSON(context.Context, string, string) (string, error) {
	return b.reply, b.chatErr
}

func (b *stubBackend) Embedding(context.Context, string) ([]float32, error) {
	if b.embErr != nil {
		return nil, b.embErr
	}
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

type failingVectors struct{}

func (failingVectors) StoreEmbedding(context.Context, []float32, string, map[string]interface{}) (string, error) {
	return "", errors.New("vector backend unavailable")
}

type harness struct {
	mon     *Monitor
	store   *sqlite.RecordStore
	vectors *vectorstore.Store
	clock   *clock
	dir     string
}

func newHarness(t *testing.T, backend intelligence.Backend, cfg Config) *harness {
	t.Helper()
	ctx := context.Background()
	c := &clock{now: time.Date(2024, 6, 19, 9, 0, 0, 0, time.UTC)}

	store, err := sqlite.NewRecordStore(":memory:", sqlite.WithClock(c.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	vb, err := sqlite.NewVectorBackend(":memory:")
	require.NoError(t, err)
	vectors := vectorstore.New(vb, testDim)
	t.Cleanup(func() { _ = vectors.Close() })

	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	mon, err := New(cfg, Deps{
		Store:     store,
		Vectors:   vectors,
		Memory:    memory.New(ctx, store),
		Analyzer:  intelligence.NewService(backend, testDim, intelligence.WithClock(c.Now)),
		Extractor: extractor.NewChain(extractor.PlainText{}, nil, nil, 0),
	})
	require.NoError(t, err)
	return &harness{mon: mon, store: store, vectors: vectors, clock: c, dir: cfg.Dir}
}

func (h *harness) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// activities returns the entries of the given type, newest first.
func (h *harness) activities(t *testing.T, activityType string) []*types.ActivityEntry {
	t.Helper()
	all, err := h.store.GetActivityTimeline(context.Background(), 1)
	require.NoError(t, err)
	var out []*types.ActivityEntry
	for _, a := range all {
		if a.ActivityType == activityType {
			out = append(out, a)
		}
	}
	return out
}

func TestProcessFileInvoiceEndToEnd(t *testing.T) {
	h := newHarness(t, &stubBackend{reply: invoiceReply}, Config{})
	ctx := context.Background()
	path := h.write(t, "scan001.txt", "Invoice for Acme Corp dated 2024-06-19")

	res := h.mon.ProcessFile(ctx, path, types.EventCreated)
	require.Equal(t, OutcomeProcessed, res.Outcome, "err: %v", res.Err)

	pending, err := h.store.GetPendingReviews(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	rec := pending[0]
	assert.Equal(t, path, rec.FilePath)
	assert.Equal(t, "scan001.txt", rec.OriginalName)
	assert.Equal(t, "2024-06-19_AcmeCorp_Invoice", rec.SuggestedName)
	assert.Equal(t, []string{"Acme Corp"}, rec.Entities)
	assert.Equal(t, types.EventCreated, rec.EventType)
	assert.Equal(t, types.StatusPending, rec.Status)
	assert.NotEmpty(t, rec.VectorID)

	entities, err := h.store.ListEntities(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "Acme Corp", entities[0].Name)
	assert.Equal(t, 1, entities[0].UsageCount)

	assert.Equal(t, 1, h.vectors.TotalEmbeddings(ctx))
	matches := h.vectors.SearchSimilar(ctx, []float32{0.1, 0.2, 0.3, 0.4}, 1)
	require.Len(t, matches, 1)
	assert.Equal(t, rec.VectorID, matches[0].ID)
	assert.Equal(t, path, matches[0].Metadata["file_path"])

	processed := h.activities(t, types.ActivityFileProcessed)
	require.Len(t, processed, 1)
	assert.Equal(t, path, processed[0].Metadata["file_path"])
	assert.Equal(t, "2024-06-19_AcmeCorp_Invoice", processed[0].Metadata["suggested_name"])
	assert.Len(t, h.activities(t, types.ActivityContextUpdated), 1)
}

func TestProcessFileDedupWindow(t *testing.T) {
	h := newHarness(t, &stubBackend{reply: invoiceReply}, Config{RecencyWindow: time.Hour})
	ctx := context.Background()
	path := h.write(t, "invoice.txt", "Invoice for Acme Corp")

	first := h.mon.ProcessFile(ctx, path, types.EventCreated)
	require.Equal(t, OutcomeProcessed, first.Outcome)

	again := h.mon.ProcessFile(ctx, path, types.EventModified)
	assert.Equal(t, OutcomeSkipped, again.Outcome)
	assert.Equal(t, ReasonRecent, again.Reason)

	stats := h.store.GetDatabaseStats(ctx)
	assert.Equal(t, 1, stats.TotalFiles)

	h.clock.Advance(2 * time.Hour)
	later := h.mon.ProcessFile(ctx, path, types.EventModified)
	require.Equal(t, OutcomeProcessed, later.Outcome)
	assert.NotEqual(t, first.Analysis.ID, later.Analysis.ID)
	assert.Equal(t, 2, h.vectors.TotalEmbeddings(ctx))

	skipped := h.activities(t, types.ActivityFileSkipped)
	require.Len(t, skipped, 1)
	assert.Equal(t, ReasonRecent, skipped[0].Metadata["reason"])
}

func TestProcessFileSkips(t *testing.T) {
	h := newHarness(t, &stubBackend{reply: invoiceReply}, Config{})
	ctx := context.Background()

	tests := []struct {
		name   string
		path   string
		reason string
	}{
		{"unsupported extension", h.write(t, "setup.exe", "binary"), ReasonUnsupported},
		{"blank file", h.write(t, "empty.txt", "  \n\t "), ReasonNoContent},
		{"binary without extractor", h.write(t, "photo.jpg", "jpeg bytes"), ReasonNoContent},
		{"missing file", filepath.Join(h.dir, "gone.txt"), ReasonMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.mon.ProcessFile(ctx, tt.path, types.EventCreated)
			assert.Equal(t, OutcomeSkipped, res.Outcome)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}

	assert.Len(t, h.activities(t, types.ActivityFileSkipped), len(tests))
	assert.Empty(t, h.activities(t, types.ActivityFileProcessed))
	assert.Equal(t, 0, h.vectors.TotalEmbeddings(ctx))
}

func TestProcessFileFallsBackWhenIntelligenceFails(t *testing.T) {
	backend := &stubBackend{chatErr: errors.New("model down"), embErr: errors.New("model down")}
	h := newHarness(t, backend, Config{})
	ctx := context.Background()
	path := h.write(t, "notes.md", "meeting notes")

	res := h.mon.ProcessFile(ctx, path, types.EventCreated)
	require.Equal(t, OutcomeProcessed, res.Outcome)
	assert.Equal(t, "2024-06-19_Unknown_Document", res.Analysis.SuggestedName)
	assert.Equal(t, 0.1, res.Analysis.Confidence)
	assert.Empty(t, res.Analysis.Entities)

	matches := h.vectors.SearchSimilar(ctx, make([]float32, testDim), 1)
	require.Len(t, matches, 1)
	assert.Equal(t, res.Analysis.VectorID, matches[0].ID)
}

func TestProcessFileSkipsReviewedUnchangedContent(t *testing.T) {
	h := newHarness(t, &stubBackend{reply: invoiceReply}, Config{RecencyWindow: time.Minute})
	ctx := context.Background()
	path := h.write(t, "invoice.txt", "Invoice for Acme Corp")

	first := h.mon.ProcessFile(ctx, path, types.EventCreated)
	require.Equal(t, OutcomeProcessed, first.Outcome)
	require.NoError(t, h.store.ApproveFileRename(ctx, first.Analysis.ID, ""))

	h.clock.Advance(time.Hour)
	res := h.mon.ProcessFile(ctx, path, types.EventModified)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, ReasonAlreadyReviewed, res.Reason)

	h.write(t, "invoice.txt", "Revised invoice for Acme Corp")
	res = h.mon.ProcessFile(ctx, path, types.EventModified)
	require.Equal(t, OutcomeProcessed, res.Outcome)

	rec, err := h.store.GetFileAnalysisByPath(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, rec.Status)
}

func TestProcessFileVectorFailureAbortsRun(t *testing.T) {
	h := newHarness(t, &stubBackend{reply: invoiceReply}, Config{})
	h.mon.deps.Vectors = failingVectors{}
	ctx := context.Background()
	path := h.write(t, "invoice.txt", "Invoice for Acme Corp")

	res := h.mon.ProcessFile(ctx, path, types.EventCreated)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.Error(t, res.Err)

	stats := h.store.GetDatabaseStats(ctx)
	assert.Equal(t, 0, stats.TotalFiles)
	errs := h.activities(t, types.ActivityProcessingError)
	require.Len(t, errs, 1)
	assert.Equal(t, path, errs[0].Metadata["file_path"])
	assert.Contains(t, errs[0].Metadata["error"], "vector backend unavailable")
	assert.Empty(t, h.activities(t, types.ActivityFileProcessed))
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Config{Dir: t.TempDir()}, Deps{})
	assert.Error(t, err)
}

func TestMonitorProcessesExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existing.txt"), []byte("Invoice for Acme Corp"), 0o644))

	h := newHarness(t, &stubBackend{reply: invoiceReply}, Config{
		Dir:       dir,
		Recursive: true,
		Debounce:  20 * time.Millisecond,
		Workers:   2,
	})
	ctx := context.Background()
	require.NoError(t, h.mon.Start(ctx))
	assert.ErrorIs(t, h.mon.Start(ctx), ErrAlreadyStarted)

	existing := filepath.Join(dir, "existing.txt")
	assert.Eventually(t, func() bool {
		rec, err := h.store.GetFileAnalysisByPath(ctx, existing)
		return err == nil && rec.EventType == types.EventExisting
	}, 5*time.Second, 20*time.Millisecond)

	sub := filepath.Join(dir, "2024", "june")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	created := filepath.Join(sub, "receipt.txt")
	require.NoError(t, os.WriteFile(created, []byte("Receipt from Acme Corp"), 0o644))

	assert.Eventually(t, func() bool {
		_, err := h.store.GetFileAnalysisByPath(ctx, created)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	h.mon.Stop()
	h.mon.Stop()

	assert.Len(t, h.activities(t, types.ActivityMonitorStarted), 1)
	assert.Len(t, h.activities(t, types.ActivityMonitorStopped), 1)
	assert.Equal(t, 2, h.store.GetDatabaseStats(ctx).TotalFiles)
}

func TestSupportedNormalizesExtensions(t *testing.T) {
	h := newHarness(t, &stubBackend{}, Config{Extensions: []string{"TXT", " .Md "}})
	assert.True(t, h.mon.Supported("/a/b.txt"))
	assert.True(t, h.mon.Supported("/a/B.MD"))
	assert.False(t, h.mon.Supported("/a/b.pdf"))
}

func TestTakeRenameMatchesOnlyOlderFiles(t *testing.T) {
	h := newHarness(t, &stubBackend{}, Config{Debounce: time.Minute})
	now := time.Now()
	h.mon.renames = []time.Time{now}

	assert.False(t, h.mon.takeRename(now), "freshly written file is not a move")
	assert.True(t, h.mon.takeRename(now.Add(-time.Hour)))
	assert.False(t, h.mon.takeRename(now.Add(-time.Hour)), "each rename pairs with one create")

	h.mon.renames = []time.Time{now.Add(-2 * time.Minute)}
	assert.False(t, h.mon.takeRename(now.Add(-time.Hour)), "renames expire after the debounce window")
	assert.Empty(t, h.mon.renames)
}

func TestMonitorDetectsMoves(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "inbox", "report.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "archive"), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("Invoice for Acme Corp"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(src, old, old))

	h := newHarness(t, &stubBackend{reply: invoiceReply}, Config{
		Dir:       dir,
		Recursive: true,
		Debounce:  200 * time.Millisecond,
	})
	ctx := context.Background()
	require.NoError(t, h.mon.Start(ctx))
	defer h.mon.Stop()

	assert.Eventually(t, func() bool {
		_, err := h.store.GetFileAnalysisByPath(ctx, src)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	dst := filepath.Join(dir, "archive", "report.txt")
	require.NoError(t, os.Rename(src, dst))

	var got *types.FileAnalysis
	require.Eventually(t, func() bool {
		rec, err := h.store.GetFileAnalysisByPath(ctx, dst)
		got = rec
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, types.EventMoved, got.EventType)
}

func TestMonitorUnrelatedRenameKeepsNewFileCreated(t *testing.T) {
	dir := t.TempDir()
	scratch := filepath.Join(dir, "scratch.log")
	require.NoError(t, os.WriteFile(scratch, []byte("build output"), 0o644))

	h := newHarness(t, &stubBackend{reply: invoiceReply}, Config{
		Dir:      dir,
		Debounce: 200 * time.Millisecond,
	})
	ctx := context.Background()
	require.NoError(t, h.mon.Start(ctx))
	defer h.mon.Stop()

	require.NoError(t, os.Rename(scratch, filepath.Join(t.TempDir(), "scratch.log")))
	fresh := filepath.Join(dir, "brand_new.txt")
	require.NoError(t, os.WriteFile(fresh, []byte("Receipt from Acme Corp"), 0o644))

	var got *types.FileAnalysis
	require.Eventually(t, func() bool {
		rec, err := h.store.GetFileAnalysisByPath(ctx, fresh)
		got = rec
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, types.EventCreated, got.EventType)
}
