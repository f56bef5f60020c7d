package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskflow-api/internal/api/shared"
	"github.com/phrazzld/taskflow-api/internal/redact"
	"github.com/phrazzld/taskflow-api/internal/service/audit"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// AuditHandler handles the audit trail read endpoint.
type AuditHandler struct {
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(recorder *audit.Recorder, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		recorder: recorder,
		logger:   logger.With(slog.String("component", "audit_handler")),
	}
}

// List handles GET /api/audit with optional task_id, from, to, page, and
// page_size query parameters.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := store.AuditQuery{
		Page:     intQueryParam(r, "page", 0),
		PageSize: intQueryParam(r, "page_size", 0),
	}

	if raw := q.Get("task_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task_id parameter")
			return
		}
		query.TaskID = &id
	}
	for name, dst := range map[string]**time.Time{"from": &query.From, "to": &query.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid "+name+" timestamp")
			return
		}
		*dst = &t
	}

	entries, total, err := h.recorder.Query(r.Context(), shared.GetOwnerID(r.Context()), query)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit query failed",
			slog.String("trace_id", shared.GetTraceID(r.Context())),
			slog.String("error", redact.Error(err)))
		shared.RespondWithError(w, r, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	query.Normalize()
	resp := AuditListResponse{
		Entries:  make([]AuditEntryResponse, 0, len(entries)),
		Total:    total,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, entryToResponse(entry))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
