package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/fileflow/internal/storage"
	"github.com/scrypster/fileflow/pkg/types"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Export kinds.
const (
	kindAnalyses = "analyses"
	kindActivity = "activity"
)

// ExportStore reads the records that can be exported.
type ExportStore interface {
	ExportAnalyses(ctx context.Context) ([]*types.FileAnalysis, error)
	GetActivityTimeline(ctx context.Context, days int) ([]*types.ActivityEntry, error)
}

// ExportHandler streams analyses or activity as CSV, JSON or YAML downloads.
type ExportHandler struct {
	store ExportStore
	now   func() time.Time
}

// NewExportHandler creates an ExportHandler.
func NewExportHandler(store ExportStore) *ExportHandler {
	return &ExportHandler{store: store, now: time.Now}
}

var analysisCSVHeader = []string{
	"id", "file_path", "original_name", "suggested_name", "status", "confidence",
	"entities", "event_type", "vector_id", "reasoning", "created_at", "updated_at",
}

var activityCSVHeader = []string{"id", "timestamp", "activity_type", "description", "metadata"}

// Export handles GET /api/export?format=csv|json|yaml&kind=analyses|activity&days=N.
// days only applies to activity.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := strings.ToLower(q.Get("format"))
	if format == "" {
		format = FormatJSON
	}
	if format != FormatCSV && format != FormatJSON && format != FormatYAML {
		respondError(w, http.StatusBadRequest, "format must be csv, json or yaml", nil)
		return
	}
	kind := strings.ToLower(q.Get("kind"))
	if kind == "" {
		kind = kindAnalyses
	}

	var (
		records interface{}
		rows    [][]string
		header  []string
	)
	switch kind {
	case kindAnalyses:
		analyses, err := h.store.ExportAnalyses(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to export analyses", err)
			return
		}
		if analyses == nil {
			analyses = []*types.FileAnalysis{}
		}
		for _, a := range analyses {
			// Exports carry references, not document bodies.
			a.Content = ""
		}
		records, header = analyses, analysisCSVHeader
		if format == FormatCSV {
			rows = analysisRows(analyses)
		}
	case kindActivity:
		days := clamp(parseInt(q.Get("days"), defaultActivityDays), 1, maxActivityDays)
		entries, err := h.store.GetActivityTimeline(r.Context(), days)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to export activity", err)
			return
		}
		if entries == nil {
			entries = []*types.ActivityEntry{}
		}
		records, header = entries, activityCSVHeader
		if format == FormatCSV {
			rows = activityRows(entries)
		}
	default:
		respondError(w, http.StatusBadRequest, "kind must be analyses or activity", nil)
		return
	}

	filename := fmt.Sprintf("fileflow_%s_%s.%s", kind, h.now().UTC().Format("20060102_150405"), format)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	switch format {
	case FormatCSV:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		cw := csv.NewWriter(w)
		_ = cw.Write(header)
		_ = cw.WriteAll(rows)
	case FormatYAML:
		out, err := yaml.Marshal(records)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to encode yaml", err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	default:
		respondJSON(w, http.StatusOK, records)
	}
}

func analysisRows(analyses []*types.FileAnalysis) [][]string {
	rows := make([][]string, 0, len(analyses))
	for _, a := range analyses {
		rows = append(rows, []string{
			strconv.FormatInt(a.ID, 10),
			a.FilePath,
			a.OriginalName,
			a.SuggestedName,
			string(a.Status),
			strconv.FormatFloat(a.Confidence, 'f', 2, 64),
			strings.Join(a.Entities, "; "),
			a.EventType,
			a.VectorID,
			a.Reasoning,
			storage.FormatTime(a.CreatedAt),
			storage.FormatTime(a.UpdatedAt),
		})
	}
	return rows
}

func activityRows(entries []*types.ActivityEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		meta := ""
		if len(e.Metadata) > 0 {
			if b, err := json.Marshal(e.Metadata); err == nil {
				meta = string(b)
			}
		}
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			storage.FormatTime(e.Timestamp),
			e.ActivityType,
			e.Description,
			meta,
		})
	}
	return rows
}
