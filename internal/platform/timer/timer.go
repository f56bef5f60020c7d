// Package timer defines the external timer/job service port used by the
// reminder scheduler, plus an in-process implementation.
//
// The service fires a callback identified by job ID at-or-after the
// requested time, at-least-once. Cancellation is idempotent and best-effort:
// a cancelled job may still fire late, so callers must re-validate state in
// the fire callback.
package timer

import (
	"context"
	"time"
)

// FireFunc is the callback invoked when a job fires. The payload is the
// opaque data supplied at scheduling time.
type FireFunc func(ctx context.Context, jobID string, payload []byte)

// Scheduler is the timer/job service port. At most one job exists per job
// ID: scheduling an existing ID replaces the previous job.
type Scheduler interface {
	// Schedule registers a job to fire at-or-after fireAt.
	Schedule(ctx context.Context, jobID string, fireAt time.Time, payload []byte) error

	// Cancel removes a job. Cancelling a non-existent job is not an error.
	Cancel(ctx context.Context, jobID string) error
}
