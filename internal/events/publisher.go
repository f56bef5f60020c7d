package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskflow-api/internal/platform/bus"
)

// PublisherConfig bounds the publisher's retry behavior when the bus is
// unreachable.
type PublisherConfig struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// DefaultPublisherConfig returns a PublisherConfig with reasonable defaults.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		MaxRetries:     5,
		RetryBaseDelay: 100 * time.Millisecond,
	}
}

// ParkedEvent records an event that could not be delivered within the retry
// bound. Parked events are kept for operator visibility; the corresponding
// task mutation is already durable and is never rolled back.
type ParkedEvent struct {
	Topic    string
	Key      string
	EventID  uuid.UUID
	LastErr  error
	ParkedAt time.Time
}

// Publisher delivers lifecycle and reminder events to the event bus, keyed
// by task ID so per-task ordering is preserved across consumer groups.
//
// The mutation path is never blocked on bus availability: the first publish
// attempt is synchronous, and on failure delivery moves to a background
// drain with exponential backoff. While a key has undelivered events, later
// events for that key queue behind them rather than publishing directly, so
// retries never reorder a task's stream. The mutation favors availability
// over immediate event-stream consistency.
type Publisher struct {
	cfg    PublisherConfig
	bus    bus.Bus
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string][]pendingEvent
	parked  []ParkedEvent
	wg      sync.WaitGroup
}

// pendingEvent is an event waiting behind a failed delivery for its key.
type pendingEvent struct {
	topic   string
	eventID uuid.UUID
	payload []byte
}

// NewPublisher creates a Publisher on top of the given bus.
func NewPublisher(b bus.Bus, cfg PublisherConfig, logger *slog.Logger) *Publisher {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = DefaultPublisherConfig().MaxRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultPublisherConfig().RetryBaseDelay
	}
	return &Publisher{
		cfg:     cfg,
		bus:     b,
		logger:  logger.With("component", "event_publisher"),
		pending: make(map[string][]pendingEvent),
	}
}

// PublishLifecycle emits a lifecycle event for the task snapshot, returning
// the assigned event ID. Bus failures are retried in the background and do
// not surface to the caller.
func (p *Publisher) PublishLifecycle(ctx context.Context, ev *LifecycleEvent) uuid.UUID {
	payload, err := json.Marshal(ev)
	if err != nil {
		// Events are built from validated tasks; a marshal failure is a
		// programming error worth surfacing loudly, but it must not crash
		// the mutation path.
		p.logger.Error("failed to marshal lifecycle event",
			"event_id", ev.ID,
			"task_id", ev.TaskID,
			"error", err)
		return ev.ID
	}
	p.send(ctx, TopicLifecycle, ev.TaskID.String(), ev.ID, payload)
	return ev.ID
}

// PublishReminder emits a reminder-due event, keyed by task ID.
func (p *Publisher) PublishReminder(ctx context.Context, ev *ReminderEvent) uuid.UUID {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to marshal reminder event",
			"event_id", ev.ID,
			"task_id", ev.TaskID,
			"error", err)
		return ev.ID
	}
	p.send(ctx, TopicReminders, ev.TaskID.String(), ev.ID, payload)
	return ev.ID
}

// send tries one synchronous publish and falls back to the key's background
// drain. Events arriving while the key already has undelivered predecessors
// queue behind them without touching the bus.
func (p *Publisher) send(ctx context.Context, topic, key string, eventID uuid.UUID, payload []byte) {
	ev := pendingEvent{topic: topic, eventID: eventID, payload: payload}

	p.mu.Lock()
	if len(p.pending[key]) > 0 {
		p.pending[key] = append(p.pending[key], ev)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	err := p.bus.Publish(ctx, topic, key, payload)
	if err == nil {
		return
	}
	p.logger.Warn("bus publish failed, retrying in background",
		"topic", topic,
		"event_id", eventID,
		"error", err)

	p.mu.Lock()
	p.pending[key] = append(p.pending[key], ev)
	startDrain := len(p.pending[key]) == 1
	p.mu.Unlock()

	if startDrain {
		p.wg.Add(1)
		go p.drain(key)
	}
}

// drain retries the key's queued events in order until the queue empties.
// A head that exhausts its retry budget is parked so the rest of the key's
// stream can keep flowing.
func (p *Publisher) drain(key string) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		queue := p.pending[key]
		if len(queue) == 0 {
			delete(p.pending, key)
			p.mu.Unlock()
			return
		}
		head := queue[0]
		p.mu.Unlock()

		delay := p.cfg.RetryBaseDelay
		var lastErr error
		delivered := false
		for attempt := 1; attempt <= p.cfg.MaxRetries; attempt++ {
			time.Sleep(delay)
			delay *= 2

			if lastErr = p.bus.Publish(context.Background(), head.topic, key, head.payload); lastErr == nil {
				p.logger.Info("event delivered after retry",
					"topic", head.topic,
					"event_id", head.eventID,
					"attempt", attempt)
				delivered = true
				break
			}
		}
		if !delivered {
			p.park(ParkedEvent{
				Topic:    head.topic,
				Key:      key,
				EventID:  head.eventID,
				LastErr:  lastErr,
				ParkedAt: time.Now().UTC(),
			})
		}

		p.mu.Lock()
		p.pending[key] = p.pending[key][1:]
		p.mu.Unlock()
	}
}

func (p *Publisher) park(ev ParkedEvent) {
	p.mu.Lock()
	p.parked = append(p.parked, ev)
	p.mu.Unlock()

	p.logger.Error("event parked after exhausting retries",
		"topic", ev.Topic,
		"event_id", ev.EventID,
		"error", ev.LastErr)
}

// Parked returns the events that exhausted their retry budget.
func (p *Publisher) Parked() []ParkedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ParkedEvent(nil), p.parked...)
}

// Wait blocks until all background retry loops finish. Intended for
// shutdown and tests.
func (p *Publisher) Wait() {
	p.wg.Wait()
}

var _ fmt.Stringer = Kind("")

// String implements fmt.Stringer for log readability.
func (k Kind) String() string { return string(k) }
