package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/alanyoungcy/amby/internal/domain"
)

// OwnerReader reads the bootstrap owner.
type OwnerReader interface {
	Owner(ctx context.Context) (domain.Account, error)
}

// StatusHandler reports static runtime facts for dashboards.
type StatusHandler struct {
	mode      string
	asset     string
	startedAt time.Time
	owner     OwnerReader
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, asset string, owner OwnerReader) *StatusHandler {
	return &StatusHandler{mode: mode, asset: asset, startedAt: time.Now().UTC(), owner: owner}
}

// GetStatus returns mode, accepted asset, owner and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.mode,
		"asset":          h.asset,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}
	if h.owner != nil {
		if owner, err := h.owner.Owner(r.Context()); err == nil {
			resp["owner"] = owner.Hex()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
