package handlers

import (
	"context"
	"net/http"

	"github.com/scrypster/fileflow/internal/backup"
	"github.com/scrypster/fileflow/pkg/log"
	"github.com/scrypster/fileflow/pkg/types"
)

// Maintenance actions accepted by POST /api/maintenance/{action}.
const (
	ActionClearData     = "clear-data"
	ActionClearVectors  = "clear-vectors"
	ActionRebuildIndex  = "rebuild-index"
	ActionPurgeActivity = "purge-activity"
	ActionBackup        = "backup"
)

// Backuper snapshots the record store.
type Backuper interface {
	BackupNow(ctx context.Context) (*backup.Info, error)
	List() ([]backup.Info, error)
}

// MaintenanceStore is the record store surface of operator actions.
type MaintenanceStore interface {
	ClearAllData(ctx context.Context) error
	PurgeActivity(ctx context.Context, olderThanDays int) (int64, error)
	LogActivity(ctx context.Context, activityType, description string, metadata map[string]interface{}) error
}

// MaintenanceHandler runs operator maintenance actions.
type MaintenanceHandler struct {
	store         MaintenanceStore
	vectors       VectorIndex
	memory        EntityMemory
	retentionDays int
	backups       Backuper
}

// NewMaintenanceHandler creates a MaintenanceHandler. retentionDays is the
// purge-activity default.
func NewMaintenanceHandler(store MaintenanceStore, vectors VectorIndex, memory EntityMemory, retentionDays int) *MaintenanceHandler {
	return &MaintenanceHandler{store: store, vectors: vectors, memory: memory, retentionDays: retentionDays}
}

// WithBackups enables the backup action.
func (h *MaintenanceHandler) WithBackups(b Backuper) *MaintenanceHandler {
	h.backups = b
	return h
}

// Run handles POST /api/maintenance/{action}.
func (h *MaintenanceHandler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	action := r.PathValue("action")
	resp := MaintenanceResponse{Action: action, Status: "ok"}

	switch action {
	case ActionClearData:
		if err := h.store.ClearAllData(ctx); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to clear data", err)
			return
		}
		// The entity cache would otherwise keep resolving deleted entities.
		if err := h.memory.LoadEntityCache(ctx); err != nil {
			log.Warnw("maintenance: entity cache reload failed", "error", err)
		}

	case ActionClearVectors:
		if err := h.vectors.ClearAllVectors(ctx); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to clear vectors", err)
			return
		}
		h.logActivity(ctx, types.ActivityVectorsCleared, "All vectors cleared")

	case ActionRebuildIndex:
		if err := h.vectors.RebuildIndex(ctx); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to rebuild index", err)
			return
		}
		h.logActivity(ctx, types.ActivityIndexRebuilt, "Vector index rebuilt")

	case ActionPurgeActivity:
		days := parseInt(r.URL.Query().Get("days"), h.retentionDays)
		if days <= 0 {
			respondError(w, http.StatusBadRequest, "days must be positive", nil)
			return
		}
		deleted, err := h.store.PurgeActivity(ctx, days)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to purge activity", err)
			return
		}
		resp.Deleted = deleted

	case ActionBackup:
		if h.backups == nil {
			respondError(w, http.StatusServiceUnavailable, "backups are not configured", nil)
			return
		}
		info, err := h.backups.BackupNow(ctx)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to back up database", err)
			return
		}
		resp.Backup = info
		if err := h.store.LogActivity(ctx, types.ActivityBackupCreated, "Database backup created",
			map[string]interface{}{"path": info.Path, "size": info.Size}); err != nil {
			log.Error("maintenance: failed to record activity", err)
		}

	default:
		respondError(w, http.StatusNotFound, "unknown maintenance action: "+action, nil)
		return
	}

	log.Infow("maintenance: action completed", "action", action, "deleted", resp.Deleted)
	respondJSON(w, http.StatusOK, resp)
}

// Backups handles GET /api/backups, newest first.
func (h *MaintenanceHandler) Backups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		respondError(w, http.StatusServiceUnavailable, "backups are not configured", nil)
		return
	}
	list, err := h.backups.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list backups", err)
		return
	}
	respondJSON(w, http.StatusOK, BackupsResponse{Backups: list, Total: len(list)})
}

func (h *MaintenanceHandler) logActivity(ctx context.Context, activityType, description string) {
	meta := map[string]interface{}{"backend": h.vectors.Backend()}
	if err := h.store.LogActivity(ctx, activityType, description, meta); err != nil {
		log.Error("maintenance: failed to record activity", err)
	}
}
