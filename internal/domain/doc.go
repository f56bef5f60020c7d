// Package domain defines the core business entities of the task lifecycle:
// tasks, recurrence rules, and audit entries, along with their validation
// rules and state transitions. Entities here have no knowledge of storage,
// transport, or the event bus.
package domain
