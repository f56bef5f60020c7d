package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSConfig holds connection and delivery settings for the JetStream bus.
type NATSConfig struct {
	URL             string
	MaxDeliverCount int
	AckWait         time.Duration
}

// DefaultNATSConfig returns the default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:             nats.DefaultURL,
		MaxDeliverCount: 5,
		AckWait:         30 * time.Second,
	}
}

// NATS is a Bus backed by NATS JetStream. Each topic maps to one stream
// whose subjects embed the partition key (topic.<key>), so JetStream's
// per-subject ordering carries the per-key ordering guarantee. Consumer
// groups map to durable consumers with explicit acks.
type NATS struct {
	cfg    NATSConfig
	logger *slog.Logger
	nc     *nats.Conn
	js     jetstream.JetStream

	mu      sync.Mutex
	streams map[string]jetstream.Stream
}

// NewNATS connects to the NATS server and sets up the JetStream context.
func NewNATS(ctx context.Context, cfg NATSConfig, logger *slog.Logger) (*NATS, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.MaxDeliverCount < 1 {
		cfg.MaxDeliverCount = DefaultNATSConfig().MaxDeliverCount
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = DefaultNATSConfig().AckWait
	}

	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NATS{
		cfg:     cfg,
		logger:  logger.With("component", "nats_bus"),
		nc:      nc,
		js:      js,
		streams: make(map[string]jetstream.Stream),
	}, nil
}

var _ Bus = (*NATS)(nil)

// Close drains the underlying connection.
func (n *NATS) Close() error {
	return n.nc.Drain()
}

// Publish sends the message to subject topic.<key>, creating the topic's
// stream on first use.
func (n *NATS) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if _, err := n.ensureStream(ctx, topic); err != nil {
		return err
	}
	subject := topic + "." + sanitizeToken(key)
	if _, err := n.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe creates (or resumes) a durable consumer for the group and starts
// delivering messages. Handler errors NAK the message for redelivery; after
// MaxDeliverCount the server stops redelivering and the message is parked.
func (n *NATS) Subscribe(ctx context.Context, topic, group string, handler Handler) (Subscription, error) {
	stream, err := n.ensureStream(ctx, topic)
	if err != nil {
		return nil, err
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:       group,
		Durable:    group,
		AckPolicy:  jetstream.AckExplicitPolicy,
		AckWait:    n.cfg.AckWait,
		MaxDeliver: n.cfg.MaxDeliverCount,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %q on %q: %w", group, topic, err)
	}

	logger := n.logger.With("topic", topic, "group", group)
	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		d := Delivery{
			Key:     subjectKey(msg.Subject()),
			Payload: msg.Data(),
			Attempt: 1,
		}
		if meta, metaErr := msg.Metadata(); metaErr == nil {
			d.Attempt = int(meta.NumDelivered)
		}

		if err := handler(context.Background(), d); err != nil {
			logger.Warn("handler failed, message will be redelivered",
				"key", d.Key,
				"attempt", d.Attempt,
				"error", err)
			if nakErr := msg.Nak(); nakErr != nil {
				logger.Error("failed to NAK message", "error", nakErr)
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			logger.Error("failed to ACK message", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("start consuming %q: %w", topic, err)
	}

	return &natsSubscription{ctx: consumeCtx}, nil
}

// ensureStream creates the topic's stream on first use and caches the
// handle, so the steady-state publish path skips the management API.
func (n *NATS) ensureStream(ctx context.Context, topic string) (jetstream.Stream, error) {
	n.mu.Lock()
	if stream, ok := n.streams[topic]; ok {
		n.mu.Unlock()
		return stream, nil
	}
	n.mu.Unlock()

	stream, err := n.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName(topic),
		Subjects:  []string{topic + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
		Replicas:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream for topic %q: %w", topic, err)
	}

	n.mu.Lock()
	n.streams[topic] = stream
	n.mu.Unlock()
	return stream, nil
}

type natsSubscription struct {
	ctx jetstream.ConsumeContext
}

func (s *natsSubscription) Close() error {
	s.ctx.Drain()
	return nil
}

// streamName derives a JetStream-legal stream name from a topic.
func streamName(topic string) string {
	return strings.ToUpper(strings.ReplaceAll(topic, ".", "_"))
}

// sanitizeToken makes a partition key safe for use as a subject token.
func sanitizeToken(key string) string {
	replacer := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return replacer.Replace(key)
}

// subjectKey extracts the partition key (final token) from a subject.
func subjectKey(subject string) string {
	if i := strings.LastIndex(subject, "."); i >= 0 {
		return subject[i+1:]
	}
	return subject
}
