// Package redis implements the dedup store on Redis. Keys expire via TTL,
// so retention is native and PruneBefore is a no-op.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/taskflow-api/internal/store"
)

// DefaultRetention is how long dedup keys live when no TTL is configured.
// It must comfortably exceed the bus's redelivery horizon.
const DefaultRetention = 7 * 24 * time.Hour

// DedupStore implements store.DedupStore on a Redis client.
type DedupStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewDedupStore creates a DedupStore. A non-positive retention falls back to
// DefaultRetention.
func NewDedupStore(client *redis.Client, retention time.Duration) (*DedupStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &DedupStore{client: client, retention: retention}, nil
}

var _ store.DedupStore = (*DedupStore)(nil)

func dedupKey(namespace, key string) string {
	return "dedup:" + namespace + ":" + key
}

// Seen implements store.DedupStore.
func (s *DedupStore) Seen(ctx context.Context, namespace, key string) (bool, error) {
	n, err := s.client.Exists(ctx, dedupKey(namespace, key)).Result()
	if err != nil {
		return false, fmt.Errorf("checking dedup key: %w", err)
	}
	return n > 0, nil
}

// Mark implements store.DedupStore. SET NX keeps the original expiry when
// the key already exists.
func (s *DedupStore) Mark(ctx context.Context, namespace, key string) error {
	if err := s.client.SetNX(ctx, dedupKey(namespace, key), "1", s.retention).Err(); err != nil {
		return fmt.Errorf("marking dedup key: %w", err)
	}
	return nil
}

// PruneBefore implements store.DedupStore. Expiry is handled by Redis TTLs.
func (s *DedupStore) PruneBefore(ctx context.Context, cutoff time.Time) error {
	return nil
}
