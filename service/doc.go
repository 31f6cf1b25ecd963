// Package service is the orchestrator's single authoritative store.
//
// A Service owns the task board and the identity registry behind one mutex.
// Every operation, reads included, runs inside that region, and every
// mutation is followed by a synchronous snapshot write before the lock is
// released. Snapshot failures are logged and counted but never returned:
// memory stays authoritative.
//
// Mutations also publish a JSON Event on the bus under tasks.<type>, update
// the search index, record metrics, and produce a span named task.<op>.
//
// Errors returned by operations are *errors.Error values whose codes are
// NOT_FOUND, ILLEGAL_TRANSITION, OWNERSHIP_MISMATCH or INVALID_INPUT.
package service
