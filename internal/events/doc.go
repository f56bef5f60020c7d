// Package events defines the immutable lifecycle and reminder event types
// and the publisher that delivers them to the event bus.
//
// Every successful task mutation produces exactly one LifecycleEvent, keyed
// by task ID so the bus preserves per-task ordering across all consumer
// groups. Delivery is at-least-once; consumers are responsible for their own
// redelivery detection.
package events
