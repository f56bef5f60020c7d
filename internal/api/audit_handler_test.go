package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskflow-api/internal/api/middleware"
	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/events"
	"github.com/phrazzld/taskflow-api/internal/platform/bus"
	"github.com/phrazzld/taskflow-api/internal/platform/memory"
	"github.com/phrazzld/taskflow-api/internal/service/audit"
)

func newAuditRouter(t *testing.T) (http.Handler, *audit.Recorder) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder, err := audit.NewRecorder(memory.NewAuditStore(), memory.NewDedupStore(), logger)
	require.NoError(t, err)
	handler := NewAuditHandler(recorder, logger)

	r := chi.NewRouter()
	r.Use(middleware.Trace, middleware.Identity)
	r.Get("/api/audit", handler.List)
	return r, recorder
}

func deliverEvent(t *testing.T, recorder *audit.Recorder, kind events.Kind, task *domain.Task) {
	t.Helper()
	ev := events.NewLifecycleEvent(kind, task)
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, recorder.HandleEvent(context.Background(), bus.Delivery{
		Key:     task.ID.String(),
		Payload: payload,
		Attempt: 1,
	}))
}

func auditTestTask(t *testing.T, ownerID, title string) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(ownerID, domain.TaskSpec{Title: title})
	require.NoError(t, err)
	return task
}

func TestAuditListEndpoint(t *testing.T) {
	router, recorder := newAuditRouter(t)
	task := auditTestTask(t, "user-1", "Audited")
	deliverEvent(t, recorder, events.KindCreated, task)

	req := httptest.NewRequest(http.MethodGet, "/api/audit", nil)
	req.Header.Set("Authorization", "Bearer user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AuditListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, task.ID.String(), resp.Entries[0].TaskID)
	assert.Equal(t, "created", resp.Entries[0].Action)
}

func TestAuditListFiltersByTask(t *testing.T) {
	router, recorder := newAuditRouter(t)
	first := auditTestTask(t, "user-1", "First")
	second := auditTestTask(t, "user-1", "Second")
	deliverEvent(t, recorder, events.KindCreated, first)
	deliverEvent(t, recorder, events.KindCreated, second)

	req := httptest.NewRequest(http.MethodGet, "/api/audit?task_id="+first.ID.String(), nil)
	req.Header.Set("Authorization", "Bearer user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AuditListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, first.ID.String(), resp.Entries[0].TaskID)
}

func TestAuditListRejectsBadTaskID(t *testing.T) {
	router, _ := newAuditRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/audit?task_id=not-a-uuid", nil)
	req.Header.Set("Authorization", "Bearer user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditListScopedToOwner(t *testing.T) {
	router, recorder := newAuditRouter(t)
	deliverEvent(t, recorder, events.KindCreated, auditTestTask(t, "user-1", "Mine"))

	req := httptest.NewRequest(http.MethodGet, "/api/audit", nil)
	req.Header.Set("Authorization", "Bearer someone-else")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AuditListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Entries)
	assert.Zero(t, resp.Total)
}
