// Package bus defines the event bus port and its in-process and NATS
// JetStream implementations.
//
// The bus guarantees at-least-once delivery and per-key ordering: messages
// published with the same key reach each consumer group in publish order.
// There is no global ordering across keys and no exactly-once delivery; a
// handler error triggers redelivery, so handlers must be idempotent.
package bus

import "context"

// Delivery is a single message handed to a subscriber.
type Delivery struct {
	// Key is the partition/ordering key the message was published with.
	Key string

	// Payload is the opaque message body.
	Payload []byte

	// Attempt is 1 for the first delivery and increments on each redelivery.
	Attempt int
}

// Handler processes one delivery. Returning nil acknowledges the message;
// returning an error triggers redelivery up to the bus's attempt bound.
type Handler func(ctx context.Context, d Delivery) error

// Subscription is a live consumer-group membership.
type Subscription interface {
	// Close stops delivery to this subscriber. In-flight handlers run to
	// completion.
	Close() error
}

// Bus is the event transport port. Each (topic, group) pair receives every
// message on the topic independently of other groups.
type Bus interface {
	// Publish sends a message to the topic. Messages sharing a key are
	// delivered to each group in publish order.
	Publish(ctx context.Context, topic, key string, payload []byte) error

	// Subscribe attaches a handler to the topic as part of the named
	// consumer group.
	Subscribe(ctx context.Context, topic, group string, handler Handler) (Subscription, error)
}
