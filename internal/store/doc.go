// Package store defines the persistence interfaces for the application:
// the versioned task store, the append-only audit store, and the namespaced
// dedup store used by idempotent event consumers.
//
// Implementations live under internal/platform (memory, postgres, redis).
// The interfaces assume a key-value state store with per-key optimistic
// version checks; they never leak storage technology into callers.
package store
