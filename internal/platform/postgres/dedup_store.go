package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/taskflow-api/internal/store"
)

// DedupStore implements store.DedupStore on PostgreSQL.
type DedupStore struct {
	db store.DBTX
}

// NewDedupStore creates a DedupStore.
func NewDedupStore(db store.DBTX) *DedupStore {
	return &DedupStore{db: db}
}

var _ store.DedupStore = (*DedupStore)(nil)

// Seen implements store.DedupStore.
func (s *DedupStore) Seen(ctx context.Context, namespace, key string) (bool, error) {
	var marked time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT marked_at FROM dedup_keys WHERE namespace = $1 AND key = $2`,
		namespace, key,
	).Scan(&marked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("checking dedup key: %w", err)
	}
	return true, nil
}

// Mark implements store.DedupStore. Re-marking an existing key is a no-op.
func (s *DedupStore) Mark(ctx context.Context, namespace, key string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dedup_keys (namespace, key, marked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (namespace, key) DO NOTHING
	`, namespace, key, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("marking dedup key: %w", err)
	}
	return nil
}

// PruneBefore implements store.DedupStore.
func (s *DedupStore) PruneBefore(ctx context.Context, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM dedup_keys WHERE marked_at < $1`, cutoff,
	)
	if err != nil {
		return fmt.Errorf("pruning dedup keys: %w", err)
	}
	return nil
}
