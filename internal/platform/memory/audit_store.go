package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// AuditStore is an in-memory append-only store.AuditStore.
type AuditStore struct {
	mu      sync.RWMutex
	entries []*domain.AuditEntry
	byID    map[uuid.UUID]struct{}
}

// NewAuditStore creates an empty in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{byID: make(map[uuid.UUID]struct{})}
}

var _ store.AuditStore = (*AuditStore)(nil)

// Append implements store.AuditStore.
func (s *AuditStore) Append(ctx context.Context, entry *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[entry.ID]; exists {
		return fmt.Errorf("%w: audit entry %s", store.ErrDuplicateID, entry.ID)
	}
	s.byID[entry.ID] = struct{}{}

	clone := *entry
	if entry.Snapshot != nil {
		clone.Snapshot = entry.Snapshot.Clone()
	}
	clone.Changed = append([]string(nil), entry.Changed...)
	s.entries = append(s.entries, &clone)
	return nil
}

// Query implements store.AuditStore.
func (s *AuditStore) Query(ctx context.Context, ownerID string, query store.AuditQuery) ([]*domain.AuditEntry, int, error) {
	query.Normalize()

	s.mu.RLock()
	var matched []*domain.AuditEntry
	for _, e := range s.entries {
		if e.OwnerID != ownerID {
			continue
		}
		if query.TaskID != nil && e.TaskID != *query.TaskID {
			continue
		}
		if query.From != nil && e.Timestamp.Before(*query.From) {
			continue
		}
		if query.To != nil && e.Timestamp.After(*query.To) {
			continue
		}
		matched = append(matched, e)
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	total := len(matched)
	start := (query.Page - 1) * query.PageSize
	if start >= total {
		return []*domain.AuditEntry{}, total, nil
	}
	end := start + query.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// LastSnapshot implements store.AuditStore.
func (s *AuditStore) LastSnapshot(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.AuditEntry
	for _, e := range s.entries {
		if e.TaskID != taskID || e.Snapshot == nil {
			continue
		}
		if latest == nil || e.Snapshot.Version > latest.Snapshot.Version {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	return latest.Snapshot.Clone(), nil
}
