package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// TaskStore is an in-memory store.TaskStore guarded by a single RWMutex.
// Version checks happen under the lock, so concurrent mutations to the same
// task serialize exactly like a per-key compare-and-swap.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task
}

// NewTaskStore creates an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

var _ store.TaskStore = (*TaskStore)(nil)

// Create implements store.TaskStore.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("%w: task %s", store.ErrDuplicateID, task.ID)
	}
	s.tasks[task.ID] = task.Clone()
	return nil
}

// Get implements store.TaskStore.
func (s *TaskStore) Get(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok || task.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: task %s", store.ErrTaskNotFound, id)
	}
	return task.Clone(), nil
}

// Update implements store.TaskStore.
func (s *TaskStore) Update(ctx context.Context, task *domain.Task, expectedVersion int64) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[task.ID]
	if !ok || current.OwnerID != task.OwnerID {
		return fmt.Errorf("%w: task %s", store.ErrTaskNotFound, task.ID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: task %s at version %d, expected %d",
			store.ErrVersionConflict, task.ID, current.Version, expectedVersion)
	}
	s.tasks[task.ID] = task.Clone()
	return nil
}

// Delete implements store.TaskStore.
func (s *TaskStore) Delete(ctx context.Context, ownerID string, id uuid.UUID, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[id]
	if !ok || current.OwnerID != ownerID {
		return fmt.Errorf("%w: task %s", store.ErrTaskNotFound, id)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: task %s at version %d, expected %d",
			store.ErrVersionConflict, id, current.Version, expectedVersion)
	}
	delete(s.tasks, id)
	return nil
}

// List implements store.TaskStore.
func (s *TaskStore) List(ctx context.Context, ownerID string, query store.TaskQuery) ([]*domain.Task, int, error) {
	query.Normalize()

	s.mu.RLock()
	var matched []*domain.Task
	for _, task := range s.tasks {
		if task.OwnerID != ownerID {
			continue
		}
		if matchesQuery(task, query) {
			matched = append(matched, task.Clone())
		}
	}
	s.mu.RUnlock()

	sortTasks(matched, query.SortBy, query.SortOrder)

	total := len(matched)
	start := (query.Page - 1) * query.PageSize
	if start >= total {
		return []*domain.Task{}, total, nil
	}
	end := start + query.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func matchesQuery(task *domain.Task, q store.TaskQuery) bool {
	if q.Status != "" && task.Status != q.Status {
		return false
	}
	if q.Priority != "" && task.Priority != q.Priority {
		return false
	}
	if q.DueBefore != nil && (task.DueAt == nil || !task.DueAt.Before(*q.DueBefore)) {
		return false
	}
	if q.DueAfter != nil && (task.DueAt == nil || !task.DueAt.After(*q.DueAfter)) {
		return false
	}
	if len(q.Tags) > 0 && !hasAnyTag(task.Tags, q.Tags) {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(task.Title), needle) &&
			!strings.Contains(strings.ToLower(task.Description), needle) {
			return false
		}
	}
	return true
}

func hasAnyTag(taskTags, wanted []string) bool {
	for _, w := range wanted {
		for _, t := range taskTags {
			if t == w {
				return true
			}
		}
	}
	return false
}

// priorityRank orders priorities high > medium > low for sorting.
func priorityRank(p domain.Priority) int {
	switch p {
	case domain.PriorityHigh:
		return 0
	case domain.PriorityMedium:
		return 1
	default:
		return 2
	}
}

func sortTasks(tasks []*domain.Task, sortBy string, order store.SortOrder) {
	less := func(a, b *domain.Task) bool {
		switch sortBy {
		case "due_at":
			// Tasks without a due date sort last regardless of order.
			switch {
			case a.DueAt == nil && b.DueAt == nil:
				return a.CreatedAt.Before(b.CreatedAt)
			case a.DueAt == nil:
				return false
			case b.DueAt == nil:
				return true
			default:
				return a.DueAt.Before(*b.DueAt)
			}
		case "priority":
			return priorityRank(a.Priority) < priorityRank(b.Priority)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if order == store.SortDesc {
			return less(tasks[j], tasks[i])
		}
		return less(tasks[i], tasks[j])
	})
}
