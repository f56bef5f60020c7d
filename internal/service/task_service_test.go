package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/events"
	"github.com/phrazzld/taskflow-api/internal/platform/memory"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// recordingPublisher captures published lifecycle events in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.LifecycleEvent
}

func (p *recordingPublisher) PublishLifecycle(_ context.Context, ev *events.LifecycleEvent) uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return ev.ID
}

func (p *recordingPublisher) published() []*events.LifecycleEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*events.LifecycleEvent, len(p.events))
	copy(out, p.events)
	return out
}

// fakeReminders records Sync/Cancel calls and optionally fails Sync.
type fakeReminders struct {
	mu      sync.Mutex
	syncs   []uuid.UUID
	cancels []uuid.UUID
	syncErr error
}

func (f *fakeReminders) Sync(_ context.Context, task *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.syncErr != nil {
		return f.syncErr
	}
	f.syncs = append(f.syncs, task.ID)
	return nil
}

func (f *fakeReminders) Cancel(_ context.Context, _ string, taskID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, taskID)
	return nil
}

func newTestService(t *testing.T) (*TaskService, *memory.TaskStore, *recordingPublisher, *fakeReminders) {
	t.Helper()
	tasks := memory.NewTaskStore()
	pub := &recordingPublisher{}
	rem := &fakeReminders{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := NewTaskService(tasks, pub, rem, logger)
	require.NoError(t, err)
	return svc, tasks, pub, rem
}

func TestCreatePublishesCreatedEvent(t *testing.T) {
	svc, _, pub, _ := newTestService(t)

	task, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "Write report"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), task.Version)
	assert.Equal(t, domain.StatusPending, task.Status)

	evs := pub.published()
	require.Len(t, evs, 1)
	assert.Equal(t, events.KindCreated, evs[0].Kind)
	assert.Equal(t, task.ID, evs[0].TaskID)
	assert.Equal(t, int64(1), evs[0].Version)
}

func TestCreateWithReminderSchedulesJob(t *testing.T) {
	svc, _, _, rem := newTestService(t)

	remindAt := time.Now().Add(time.Hour).UTC()
	task, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{
		Title:    "Call dentist",
		RemindAt: &remindAt,
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{task.ID}, rem.syncs)
}

func TestCreateSchedulerDownReturnsRetryableError(t *testing.T) {
	svc, tasks, _, rem := newTestService(t)
	rem.syncErr = assert.AnError

	remindAt := time.Now().Add(time.Hour).UTC()
	task, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{
		Title:    "Call dentist",
		RemindAt: &remindAt,
	})
	require.ErrorIs(t, err, ErrReminderUnavailable)
	// The task itself is durably created before the scheduler is consulted.
	require.NotNil(t, task)
	_, getErr := tasks.Get(context.Background(), "user-1", task.ID)
	assert.NoError(t, getErr)
}

func TestUpdateBumpsVersionAndPublishes(t *testing.T) {
	svc, _, pub, _ := newTestService(t)

	task, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "Draft"})
	require.NoError(t, err)

	title := "Final draft"
	updated, err := svc.Update(context.Background(), "user-1", task.ID, 1, TaskPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Final draft", updated.Title)
	assert.Equal(t, int64(2), updated.Version)

	evs := pub.published()
	require.Len(t, evs, 2)
	assert.Equal(t, events.KindUpdated, evs[1].Kind)
	assert.Equal(t, int64(2), evs[1].Version)
}

func TestUpdateStaleVersionConflicts(t *testing.T) {
	svc, _, pub, _ := newTestService(t)

	task, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "Draft"})
	require.NoError(t, err)

	title := "First wins"
	_, err = svc.Update(context.Background(), "user-1", task.ID, 1, TaskPatch{Title: &title})
	require.NoError(t, err)

	stale := "Second loses"
	_, err = svc.Update(context.Background(), "user-1", task.ID, 1, TaskPatch{Title: &stale})
	require.ErrorIs(t, err, store.ErrVersionConflict)

	// Losing update publishes nothing.
	assert.Len(t, pub.published(), 2)
}

func TestUpdateClearReminderSyncs(t *testing.T) {
	svc, _, _, rem := newTestService(t)

	remindAt := time.Now().Add(time.Hour).UTC()
	task, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "Call", RemindAt: &remindAt})
	require.NoError(t, err)
	require.Len(t, rem.syncs, 1)

	updated, err := svc.Update(context.Background(), "user-1", task.ID, 1, TaskPatch{ClearRemindAt: true})
	require.NoError(t, err)
	assert.Nil(t, updated.RemindAt)
	assert.Len(t, rem.syncs, 2)
}

func TestUpdateWithoutReminderChangeSkipsSync(t *testing.T) {
	svc, _, _, rem := newTestService(t)

	task, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "Draft"})
	require.NoError(t, err)

	title := "Renamed"
	_, err = svc.Update(context.Background(), "user-1", task.ID, 1, TaskPatch{Title: &title})
	require.NoError(t, err)
	assert.Empty(t, rem.syncs)
}

func TestCompleteEmitsEventAndCancelsReminder(t *testing.T) {
	svc, _, pub, rem := newTestService(t)

	task, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "Ship it"})
	require.NoError(t, err)

	done, err := svc.Complete(context.Background(), "user-1", task.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, int64(2), done.Version)

	evs := pub.published()
	require.Len(t, evs, 2)
	assert.Equal(t, events.KindCompleted, evs[1].Kind)
	assert.Equal(t, []uuid.UUID{task.ID}, rem.cancels)
}

func TestCompleteTwiceIsIdempotent(t *testing.T) {
	svc, _, pub, _ := newTestService(t)

	task, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "Ship it"})
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), "user-1", task.ID, 1)
	require.NoError(t, err)

	again, err := svc.Complete(context.Background(), "user-1", task.ID, 2)
	require.ErrorIs(t, err, ErrAlreadyCompleted)
	require.NotNil(t, again)
	assert.Equal(t, domain.StatusCompleted, again.Status)

	// No second completed event.
	assert.Len(t, pub.published(), 2)
}

func TestCompletedTaskRejectsUpdates(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	task, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "Ship it"})
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), "user-1", task.ID, 1)
	require.NoError(t, err)

	title := "Too late"
	_, err = svc.Update(context.Background(), "user-1", task.ID, 2, TaskPatch{Title: &title})
	require.ErrorIs(t, err, domain.ErrTaskCompleted)
}

func TestCompletedTaskRejectsTagMutations(t *testing.T) {
	svc, _, pub, _ := newTestService(t)

	task, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "Ship it"})
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), "user-1", task.ID, 1)
	require.NoError(t, err)

	_, err = svc.AddTags(context.Background(), "user-1", task.ID, 2, []string{"late"})
	require.ErrorIs(t, err, domain.ErrTaskCompleted)
	_, err = svc.RemoveTags(context.Background(), "user-1", task.ID, 2, []string{"late"})
	require.ErrorIs(t, err, domain.ErrTaskCompleted)

	// create + completed only; the rejected mutations emitted nothing.
	assert.Len(t, pub.published(), 2)
}

func TestCreateWithoutReminderSkipsScheduler(t *testing.T) {
	svc, _, _, rem := newTestService(t)
	// A down scheduler must not affect tasks that carry no reminder.
	rem.syncErr = assert.AnError

	_, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "No reminder"})
	require.NoError(t, err)
	assert.Empty(t, rem.syncs)
}

func TestDeletePublishesFinalSnapshot(t *testing.T) {
	svc, tasks, pub, rem := newTestService(t)

	task, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "Obsolete"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "user-1", task.ID, 1))

	_, err = tasks.Get(context.Background(), "user-1", task.ID)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)

	evs := pub.published()
	require.Len(t, evs, 2)
	assert.Equal(t, events.KindDeleted, evs[1].Kind)
	require.NotNil(t, evs[1].Task)
	assert.Equal(t, "Obsolete", evs[1].Task.Title)
	assert.Equal(t, []uuid.UUID{task.ID}, rem.cancels)
}

func TestDeleteStaleVersionConflicts(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	task, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "Keep"})
	require.NoError(t, err)

	title := "Renamed"
	_, err = svc.Update(context.Background(), "user-1", task.ID, 1, TaskPatch{Title: &title})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), "user-1", task.ID, 1)
	assert.ErrorIs(t, err, store.ErrVersionConflict)
}

func TestGetScopedToOwner(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	task, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "Private"})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "user-2", task.ID)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestAddAndRemoveTags(t *testing.T) {
	svc, _, pub, _ := newTestService(t)

	task, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "Tagged", Tags: []string{"home"}})
	require.NoError(t, err)

	tagged, err := svc.AddTags(context.Background(), "user-1", task.ID, 1, []string{"urgent", "home"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"home", "urgent"}, tagged.Tags)
	assert.Equal(t, int64(2), tagged.Version)

	untagged, err := svc.RemoveTags(context.Background(), "user-1", task.ID, 2, []string{"home", "missing"})
	require.NoError(t, err)
	assert.Equal(t, []string{"urgent"}, untagged.Tags)
	assert.Equal(t, int64(3), untagged.Version)

	evs := pub.published()
	require.Len(t, evs, 3)
	assert.Equal(t, events.KindUpdated, evs[1].Kind)
	assert.Equal(t, events.KindUpdated, evs[2].Kind)
}

func TestListFiltersByStatus(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	a, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "Open one"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "Open two"})
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), "user-1", a.ID, 1)
	require.NoError(t, err)

	got, total, err := svc.List(context.Background(), "user-1", store.TaskQuery{Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, "Open two", got[0].Title)
}

func TestSearchMatchesTitleAndDescription(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "Buy groceries"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "user-1", domain.TaskSpec{
		Title:       "Weekend plans",
		Description: "grocery run and laundry",
	})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "user-1", domain.TaskSpec{Title: "File taxes"})
	require.NoError(t, err)

	got, total, err := svc.Search(context.Background(), "user-1", "grocer", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, got, 2)
}
