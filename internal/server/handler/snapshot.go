package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/amby/internal/domain"
)

// SnapshotLister lists archived ledger snapshots.
type SnapshotLister interface {
	List(ctx context.Context, prefix string) ([]domain.BlobInfo, error)
}

// SnapshotHandler exposes the snapshot archive.
type SnapshotHandler struct {
	blobs    SnapshotLister
	archiver domain.Archiver
	prefix   string
	logger   *slog.Logger
}

// NewSnapshotHandler creates a SnapshotHandler. archiver may be nil, in
// which case on-demand snapshots are unavailable.
func NewSnapshotHandler(blobs SnapshotLister, archiver domain.Archiver, prefix string, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{blobs: blobs, archiver: archiver, prefix: prefix, logger: logger.With(slog.String("handler", "snapshot"))}
}

// List returns archived snapshot objects.
// GET /api/snapshots
func (h *SnapshotHandler) List(w http.ResponseWriter, r *http.Request) {
	objects, err := h.blobs.List(r.Context(), h.prefix)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to list snapshots")
		return
	}
	if objects == nil {
		objects = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": objects})
}

// Create exports a snapshot now.
// POST /api/snapshots
func (h *SnapshotHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "archiving is disabled")
		return
	}
	path, n, err := h.archiver.ArchiveLedger(r.Context(), time.Now().UTC())
	if err != nil {
		writeDomainError(w, r, h.logger, err, "failed to archive ledger")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"path": path, "records": n})
}
