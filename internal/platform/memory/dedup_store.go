package memory

import (
	"context"
	"sync"
	"time"

	"github.com/phrazzld/taskflow-api/internal/store"
)

// DedupStore is an in-memory store.DedupStore with explicit pruning.
type DedupStore struct {
	mu   sync.RWMutex
	keys map[string]time.Time // namespace + "\x00" + key -> marked at
}

// NewDedupStore creates an empty in-memory dedup store.
func NewDedupStore() *DedupStore {
	return &DedupStore{keys: make(map[string]time.Time)}
}

var _ store.DedupStore = (*DedupStore)(nil)

func dedupKey(namespace, key string) string {
	return namespace + "\x00" + key
}

// Seen implements store.DedupStore.
func (s *DedupStore) Seen(ctx context.Context, namespace, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[dedupKey(namespace, key)]
	return ok, nil
}

// Mark implements store.DedupStore.
func (s *DedupStore) Mark(ctx context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[dedupKey(namespace, key)] = time.Now().UTC()
	return nil
}

// PruneBefore implements store.DedupStore.
func (s *DedupStore) PruneBefore(ctx context.Context, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, markedAt := range s.keys {
		if markedAt.Before(cutoff) {
			delete(s.keys, k)
		}
	}
	return nil
}
