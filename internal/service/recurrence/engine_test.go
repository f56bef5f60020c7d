package recurrence

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/events"
	"github.com/phrazzld/taskflow-api/internal/platform/bus"
	"github.com/phrazzld/taskflow-api/internal/platform/memory"
	"github.com/phrazzld/taskflow-api/internal/service"
)

// fakeCreator records created specs and can fail on demand.
type fakeCreator struct {
	mu      sync.Mutex
	created []domain.TaskSpec
	err     error
	errTask *domain.Task
}

func (f *fakeCreator) Create(_ context.Context, ownerID string, spec domain.TaskSpec) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.errTask, f.err
	}
	f.created = append(f.created, spec)
	task, err := domain.NewTask(ownerID, spec)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (f *fakeCreator) specs() []domain.TaskSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TaskSpec, len(f.created))
	copy(out, f.created)
	return out
}

func newTestEngine(t *testing.T) (*Engine, *fakeCreator, *memory.DedupStore) {
	t.Helper()
	creator := &fakeCreator{}
	dedup := memory.NewDedupStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := NewEngine(creator, dedup, logger)
	require.NoError(t, err)
	return e, creator, dedup
}

func completedTask(t *testing.T, pattern domain.RecurrencePattern, due, remind *time.Time, until *time.Time) *domain.Task {
	t.Helper()
	task, err := domain.NewTask("user-1", domain.TaskSpec{
		Title:    "Water the plants",
		Priority: domain.PriorityLow,
		Tags:     []string{"home"},
		DueAt:    due,
		RemindAt: remind,
		Recurrence: &domain.Recurrence{
			Pattern: pattern,
			Until:   until,
		},
	})
	require.NoError(t, err)
	require.NoError(t, task.MarkCompleted(time.Now().UTC()))
	task.Version = 2
	return task
}

func deliveryFor(t *testing.T, ev *events.LifecycleEvent) bus.Delivery {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return bus.Delivery{Key: ev.TaskID.String(), Payload: payload, Attempt: 1}
}

func TestWeeklyCompletionCreatesNextOccurrence(t *testing.T) {
	e, creator, _ := newTestEngine(t)

	due := time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC)
	remind := time.Date(2025, 3, 1, 16, 0, 0, 0, time.UTC)
	task := completedTask(t, domain.RecurWeekly, &due, &remind, nil)

	ev := events.NewLifecycleEvent(events.KindCompleted, task)
	require.NoError(t, e.HandleEvent(context.Background(), deliveryFor(t, ev)))

	specs := creator.specs()
	require.Len(t, specs, 1)
	next := specs[0]
	assert.Equal(t, "Water the plants", next.Title)
	assert.Equal(t, domain.PriorityLow, next.Priority)
	assert.Equal(t, []string{"home"}, next.Tags)
	require.NotNil(t, next.DueAt)
	assert.True(t, next.DueAt.Equal(time.Date(2025, 3, 8, 17, 0, 0, 0, time.UTC)))
	require.NotNil(t, next.RemindAt)
	assert.True(t, next.RemindAt.Equal(time.Date(2025, 3, 8, 16, 0, 0, 0, time.UTC)))
	require.NotNil(t, next.Recurrence)
	assert.Equal(t, domain.RecurWeekly, next.Recurrence.Pattern)
}

func TestRedeliveredCompletionCreatesOnlyOneSuccessor(t *testing.T) {
	e, creator, _ := newTestEngine(t)

	due := time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC)
	task := completedTask(t, domain.RecurDaily, &due, nil, nil)
	d := deliveryFor(t, events.NewLifecycleEvent(events.KindCompleted, task))

	require.NoError(t, e.HandleEvent(context.Background(), d))
	d.Attempt = 2
	require.NoError(t, e.HandleEvent(context.Background(), d))

	assert.Len(t, creator.specs(), 1)
}

func TestSeriesEndsAtUntil(t *testing.T) {
	e, creator, _ := newTestEngine(t)

	due := time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC)
	until := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	task := completedTask(t, domain.RecurWeekly, &due, nil, &until)

	require.NoError(t, e.HandleEvent(context.Background(), deliveryFor(t, events.NewLifecycleEvent(events.KindCompleted, task))))
	assert.Empty(t, creator.specs())
}

func TestNonCompletedEventsIgnored(t *testing.T) {
	e, creator, _ := newTestEngine(t)

	due := time.Now().Add(24 * time.Hour).UTC()
	task, err := domain.NewTask("user-1", domain.TaskSpec{
		Title:      "Recurring",
		DueAt:      &due,
		Recurrence: &domain.Recurrence{Pattern: domain.RecurDaily},
	})
	require.NoError(t, err)

	require.NoError(t, e.HandleEvent(context.Background(), deliveryFor(t, events.NewLifecycleEvent(events.KindCreated, task))))
	require.NoError(t, e.HandleEvent(context.Background(), deliveryFor(t, events.NewLifecycleEvent(events.KindUpdated, task))))
	assert.Empty(t, creator.specs())
}

func TestNonRecurringCompletionIgnored(t *testing.T) {
	e, creator, _ := newTestEngine(t)

	task, err := domain.NewTask("user-1", domain.TaskSpec{Title: "One-off"})
	require.NoError(t, err)
	require.NoError(t, task.MarkCompleted(time.Now().UTC()))
	task.Version = 2

	require.NoError(t, e.HandleEvent(context.Background(), deliveryFor(t, events.NewLifecycleEvent(events.KindCompleted, task))))
	assert.Empty(t, creator.specs())
}

func TestCreateFailureRequestsRedelivery(t *testing.T) {
	e, creator, dedup := newTestEngine(t)
	creator.err = errors.New("store down")

	due := time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC)
	task := completedTask(t, domain.RecurDaily, &due, nil, nil)
	d := deliveryFor(t, events.NewLifecycleEvent(events.KindCompleted, task))

	require.Error(t, e.HandleEvent(context.Background(), d))

	// The dedup key is not recorded, so the retry still goes through.
	seen, err := dedup.Seen(context.Background(), "recurrence", task.ID.String()+":2")
	require.NoError(t, err)
	assert.False(t, seen)

	creator.err = nil
	d.Attempt = 2
	require.NoError(t, e.HandleEvent(context.Background(), d))
	assert.Len(t, creator.specs(), 1)
}

func TestReminderUnavailableDoesNotDuplicateSuccessor(t *testing.T) {
	e, creator, _ := newTestEngine(t)

	due := time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC)
	remind := time.Date(2025, 3, 1, 16, 0, 0, 0, time.UTC)
	task := completedTask(t, domain.RecurDaily, &due, &remind, nil)

	successor, err := domain.NewTask("user-1", domain.TaskSpec{Title: "Water the plants"})
	require.NoError(t, err)
	creator.err = service.ErrReminderUnavailable
	creator.errTask = successor

	d := deliveryFor(t, events.NewLifecycleEvent(events.KindCompleted, task))
	require.NoError(t, e.HandleEvent(context.Background(), d))

	// Redelivery is a no-op: the successor already exists.
	d.Attempt = 2
	require.NoError(t, e.HandleEvent(context.Background(), d))
	assert.Empty(t, creator.specs())
}

func TestMonthEndClampAcrossFebruary(t *testing.T) {
	e, creator, _ := newTestEngine(t)

	due := time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC)
	task := completedTask(t, domain.RecurMonthly, &due, nil, nil)

	require.NoError(t, e.HandleEvent(context.Background(), deliveryFor(t, events.NewLifecycleEvent(events.KindCompleted, task))))

	specs := creator.specs()
	require.Len(t, specs, 1)
	require.NotNil(t, specs[0].DueAt)
	assert.True(t, specs[0].DueAt.Equal(time.Date(2025, 2, 28, 9, 0, 0, 0, time.UTC)))
}
