// Package errors defines the coded errors the orchestrator returns.
//
// Lower layers (tasks, registry, state) use plain sentinel errors. The
// service layer converts them into *Error values with one of the codes
// below, and the HTTP layer maps each code to a status.
//
// # Error Codes
//
//   - NOT_FOUND: task or record does not exist
//   - ILLEGAL_TRANSITION: status change not permitted
//   - OWNERSHIP_MISMATCH: caller is not the task's assignee
//   - UNAUTHORIZED: missing or wrong API key
//   - INVALID_INPUT: malformed request
//   - PERSISTENCE, UNAVAILABLE, TIMEOUT: transient failures
//   - RATE_LIMITED: claim throttled
//   - PANIC: a handler panicked
//   - INTERNAL: anything else
//
// # Usage
//
//	err := errors.OwnershipMismatch(taskID, workerID)
//	if errors.Is(err, errors.ErrCodeOwnership) {
//	    // 403
//	}
//
// HTTPStatus and CodeForStatus translate between codes and response
// statuses; the API uses the first, the worker client the second.
package errors
