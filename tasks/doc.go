// Package tasks holds the task lifecycle: the closed status set, the
// transition table, and the Board that owns task records and runs the
// lease-based claim queue.
//
// # Statuses
//
// A task moves through the following states:
//
//	open        → assigned
//	assigned    → in_progress, blocked, delivered
//	in_progress → blocked, review, delivered
//	blocked     → in_progress, review
//	review      → in_progress, delivered
//
// failed is reached only through Fail, from assigned or in_progress, by
// the worker holding the task. Reopen moves a failed task back to open.
//
// The legacy encoding "delivered: <summary>" is accepted anywhere a status
// string is parsed and normalizes to delivered.
//
// # Claiming
//
// Workers pull work with Claim. The board scans tasks in insertion order
// and hands out the first one that is open or assigned and whose lease is
// absent or expired:
//
//	board := tasks.NewBoard()
//	id := board.Intake("p1", "Fix bug", "desc")
//	task, ok := board.Claim("w1")
//	// ... do work ...
//	err := board.Complete(id, "w1", "fixed it")
//
// A claim holds the task for the lease duration (five minutes by default).
// Nothing revokes an expired lease proactively; the next Claim simply
// treats the task as available again.
//
// # Thread Safety
//
// Board is not safe for concurrent use. The owning service serializes all
// access behind one lock, which is what makes claims mutually exclusive.
package tasks
