package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/holdings/internal/domain"
)

// AuditReader lists audit rows.
type AuditReader interface {
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)
}

// AuditHandler serves the audit trail of a position.
type AuditHandler struct {
	audit  AuditReader
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit AuditReader, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

type auditResponse struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListPositionAudit returns a position's audit rows, newest first.
// GET /api/positions/{id}/audit?event=...&limit=50&offset=0
func (h *AuditHandler) ListPositionAudit(w http.ResponseWriter, r *http.Request) {
	filter := domain.AuditFilter{
		Event:      r.URL.Query().Get("event"),
		PositionID: pathParam(r, "id"),
		ListOpts:   parseListOpts(r),
	}
	rows, err := h.audit.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, h.logger, "list audit", err)
		return
	}

	out := make([]auditResponse, len(rows))
	for i, row := range rows {
		out[i] = auditResponse{ID: row.ID, Event: row.Event, Detail: row.Detail, CreatedAt: row.CreatedAt}
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit": out})
}
