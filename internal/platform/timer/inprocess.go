package timer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// InProcess is a Scheduler backed by in-process time.Timer instances. Jobs
// do not survive a restart; durable reminders require an external timer
// service behind the same port.
type InProcess struct {
	fire   FireFunc
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]*time.Timer
}

// NewInProcess creates an in-process scheduler delivering fires to the given
// callback.
func NewInProcess(fire FireFunc, logger *slog.Logger) *InProcess {
	return &InProcess{
		fire:   fire,
		logger: logger.With("component", "inprocess_timer"),
		jobs:   make(map[string]*time.Timer),
	}
}

var _ Scheduler = (*InProcess)(nil)

// Schedule registers the job, replacing any existing job with the same ID.
// A fireAt in the past fires immediately.
func (s *InProcess) Schedule(ctx context.Context, jobID string, fireAt time.Time, payload []byte) error {
	body := append([]byte(nil), payload...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[jobID]; ok {
		existing.Stop()
	}

	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}

	var tm *time.Timer
	tm = time.AfterFunc(delay, func() {
		s.fireJob(jobID, tm, body)
	})
	s.jobs[jobID] = tm

	s.logger.Debug("job scheduled", "job_id", jobID, "fire_at", fireAt)
	return nil
}

// fireJob removes the job entry and invokes the fire callback. The entry is
// removed only if it still belongs to this timer: Stop on an already-firing
// timer cannot prevent its callback from running, so a replaced job's late
// callback must not evict its replacement.
func (s *InProcess) fireJob(jobID string, tm *time.Timer, body []byte) {
	s.mu.Lock()
	if s.jobs[jobID] == tm {
		delete(s.jobs, jobID)
	}
	s.mu.Unlock()

	s.logger.Debug("job fired", "job_id", jobID)
	s.fire(context.Background(), jobID, body)
}

// Cancel stops and removes the job. Unknown job IDs are ignored.
func (s *InProcess) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.jobs[jobID]; ok {
		t.Stop()
		delete(s.jobs, jobID)
		s.logger.Debug("job cancelled", "job_id", jobID)
	}
	return nil
}

// Stop cancels all outstanding jobs.
func (s *InProcess) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.jobs {
		t.Stop()
		delete(s.jobs, id)
	}
}
