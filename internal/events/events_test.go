package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskflow-api/internal/domain"
)

func newTestTask(t *testing.T) *domain.Task {
	t.Helper()
	due := time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC)
	remind := due.Add(-time.Hour)
	task, err := domain.NewTask("user-1", domain.TaskSpec{
		Title:    "Buy groceries",
		DueAt:    &due,
		RemindAt: &remind,
	})
	require.NoError(t, err)
	return task
}

func TestNewLifecycleEvent(t *testing.T) {
	task := newTestTask(t)
	ev := NewLifecycleEvent(KindCreated, task)

	assert.NotEqual(t, uuid.Nil, ev.ID)
	assert.Equal(t, task.ID, ev.TaskID)
	assert.Equal(t, "user-1", ev.OwnerID)
	assert.Equal(t, KindCreated, ev.Kind)
	assert.Equal(t, task.Version, ev.Version)
	assert.WithinDuration(t, time.Now(), ev.ProducedAt, 2*time.Second)

	// The snapshot is decoupled from the live task.
	task.Title = "mutated"
	assert.Equal(t, "Buy groceries", ev.Task.Title)
}

func TestLifecycleEventRoundTrip(t *testing.T) {
	task := newTestTask(t)
	ev := NewLifecycleEvent(KindCompleted, task)

	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	decoded, err := DecodeLifecycleEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, decoded.ID)
	assert.Equal(t, ev.Kind, decoded.Kind)
	assert.Equal(t, ev.Version, decoded.Version)
	require.NotNil(t, decoded.Task)
	assert.Equal(t, task.Title, decoded.Task.Title)
}

func TestDecodeLifecycleEventRejectsGarbage(t *testing.T) {
	_, err := DecodeLifecycleEvent([]byte("not json"))
	assert.Error(t, err)
}

func TestNewReminderEvent(t *testing.T) {
	task := newTestTask(t)
	ev := NewReminderEvent(task)

	assert.Equal(t, task.ID, ev.TaskID)
	assert.Equal(t, "user-1", ev.OwnerID)
	assert.Equal(t, "Buy groceries", ev.Title)
	require.NotNil(t, ev.DueAt)
	assert.True(t, ev.RemindAt.Equal(*task.RemindAt))
}
