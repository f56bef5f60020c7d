package store

import (
	"context"
	"time"
)

// Dedup namespaces used by the event consumers. Each consumer keeps its own
// keyspace so redelivery detection in one never masks events for another.
const (
	DedupAudit      = "audit"
	DedupRecurrence = "recurrence"
)

// DedupStore is a small persisted set used by idempotent consumers to detect
// redelivered events. Keys are scoped by namespace and retained for a
// bounded window; pruning old keys is safe because the bus does not redeliver
// indefinitely.
type DedupStore interface {
	// Seen reports whether the key was already marked in the namespace.
	Seen(ctx context.Context, namespace, key string) (bool, error)

	// Mark records the key in the namespace. Marking an existing key is not
	// an error.
	Mark(ctx context.Context, namespace, key string) error

	// PruneBefore removes keys marked before the cutoff. Implementations
	// with native expiry may treat this as a no-op.
	PruneBefore(ctx context.Context, cutoff time.Time) error
}
