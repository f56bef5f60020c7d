package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MemoryConfig holds tuning for the in-process bus.
type MemoryConfig struct {
	// MaxAttempts bounds redelivery of a message whose handler keeps
	// failing. After the bound the message is parked (logged and dropped).
	MaxAttempts int

	// RetryBaseDelay is the initial redelivery backoff; it doubles per
	// attempt.
	RetryBaseDelay time.Duration
}

// DefaultMemoryConfig returns a MemoryConfig with reasonable defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxAttempts:    5,
		RetryBaseDelay: 50 * time.Millisecond,
	}
}

// Memory is an in-process Bus used by tests and single-node deployments.
// Each (topic, group) subscriber drains a FIFO queue per key, which gives
// per-key ordering; handler errors trigger redelivery with exponential
// backoff up to the configured bound.
type Memory struct {
	cfg    MemoryConfig
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]map[string]*memorySub // topic -> group -> subscriber
}

// NewMemory creates an in-process bus.
func NewMemory(cfg MemoryConfig, logger *slog.Logger) *Memory {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMemoryConfig().MaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultMemoryConfig().RetryBaseDelay
	}
	return &Memory{
		cfg:    cfg,
		logger: logger.With("component", "memory_bus"),
		subs:   make(map[string]map[string]*memorySub),
	}
}

var _ Bus = (*Memory)(nil)

// Publish delivers the message to every group subscribed to the topic.
func (m *Memory) Publish(ctx context.Context, topic, key string, payload []byte) error {
	body := append([]byte(nil), payload...)

	m.mu.Lock()
	groups := make([]*memorySub, 0, len(m.subs[topic]))
	for _, sub := range m.subs[topic] {
		groups = append(groups, sub)
	}
	m.mu.Unlock()

	for _, sub := range groups {
		sub.enqueue(Delivery{Key: key, Payload: body})
	}
	return nil
}

// Subscribe attaches a handler for the consumer group. Only one subscriber
// per (topic, group) is allowed; per-key ordering could not be preserved
// across competing subscribers in the same process.
func (m *Memory) Subscribe(ctx context.Context, topic, group string, handler Handler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subs[topic] == nil {
		m.subs[topic] = make(map[string]*memorySub)
	}
	if _, exists := m.subs[topic][group]; exists {
		return nil, fmt.Errorf("group %q already subscribed to topic %q", group, topic)
	}

	sub := &memorySub{
		parent:  m,
		topic:   topic,
		group:   group,
		handler: handler,
		queues:  make(map[string]*keyQueue),
		logger:  m.logger.With("topic", topic, "group", group),
	}
	m.subs[topic][group] = sub
	return sub, nil
}

func (m *Memory) remove(topic, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if groups, ok := m.subs[topic]; ok {
		delete(groups, group)
	}
}

type memorySub struct {
	parent  *Memory
	topic   string
	group   string
	handler Handler
	logger  *slog.Logger

	mu     sync.Mutex
	queues map[string]*keyQueue
	closed bool
	wg     sync.WaitGroup
}

type keyQueue struct {
	items   []Delivery
	running bool
}

// Close detaches the subscriber and waits for in-flight handlers.
func (s *memorySub) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.parent.remove(s.topic, s.group)
	s.wg.Wait()
	return nil
}

func (s *memorySub) enqueue(d Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	q := s.queues[d.Key]
	if q == nil {
		q = &keyQueue{}
		s.queues[d.Key] = q
	}
	q.items = append(q.items, d)

	// One drainer per key keeps same-key deliveries strictly ordered while
	// distinct keys proceed in parallel.
	if !q.running {
		q.running = true
		s.wg.Add(1)
		go s.drain(q)
	}
}

func (s *memorySub) drain(q *keyQueue) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if s.closed || len(q.items) == 0 {
			q.running = false
			s.mu.Unlock()
			return
		}
		d := q.items[0]
		q.items = q.items[1:]
		s.mu.Unlock()

		s.deliver(d)
	}
}

func (s *memorySub) deliver(d Delivery) {
	delay := s.parent.cfg.RetryBaseDelay
	for attempt := 1; attempt <= s.parent.cfg.MaxAttempts; attempt++ {
		d.Attempt = attempt
		err := s.handler(context.Background(), d)
		if err == nil {
			return
		}

		s.logger.Warn("handler failed, message will be redelivered",
			"key", d.Key,
			"attempt", attempt,
			"error", err)

		if attempt < s.parent.cfg.MaxAttempts {
			time.Sleep(delay)
			delay *= 2
		}
	}

	// Parked, not silently dropped: the operator sees every message that
	// exhausted its redelivery budget.
	s.logger.Error("message parked after exhausting redelivery attempts",
		"key", d.Key,
		"attempts", s.parent.cfg.MaxAttempts)
}
