// Package bus provides the pub/sub channel that task events travel on.
//
// # Available Implementations
//
//   - NATSBus: core NATS, for fanning events out to other processes
//   - MemoryBus: in-process, the default when no NATS URL is configured
//
// Both accept NATS-style wildcard subscriptions:
//
//	sub, _ := b.Subscribe("tasks.>")
//	for msg := range sub.Messages() {
//	    // msg.Subject is e.g. "tasks.claimed"
//	}
//
// Publishing never blocks on slow subscribers. Each subscription has a
// bounded buffer and drops messages once it is full.
package bus
