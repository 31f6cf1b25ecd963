package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: storage hiccups, timeouts, an unreachable orchestrator.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: unknown task, illegal transition, wrong worker.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates throttling or exhaustion.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors or bugs.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes surfaced by the orchestrator.
const (
	// Permanent errors
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"          // Task or record does not exist
	ErrCodeIllegalTransition ErrorCode = "ILLEGAL_TRANSITION" // Status change not permitted
	ErrCodeOwnership         ErrorCode = "OWNERSHIP_MISMATCH" // Caller is not the assignee
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"       // Missing or wrong API key
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"      // Malformed or invalid input
	ErrCodeCanceled          ErrorCode = "CANCELED"           // Operation was canceled

	// Transient errors
	ErrCodePersistence ErrorCode = "PERSISTENCE" // Snapshot storage failed
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // Dependency temporarily unavailable
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // Operation timed out

	// Resource errors
	ErrCodeRateLimit ErrorCode = "RATE_LIMITED" // Rate limit exceeded

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL" // Unexpected internal error
	ErrCodePanic    ErrorCode = "PANIC"    // Recovered from panic
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeNotFound, ErrCodeIllegalTransition, ErrCodeOwnership,
		ErrCodeUnauthorized, ErrCodeInvalidInput, ErrCodeCanceled:
		return CategoryPermanent
	case ErrCodePersistence, ErrCodeUnavailable, ErrCodeTimeout:
		return CategoryTransient
	case ErrCodeRateLimit:
		return CategoryResource
	default:
		return CategoryInternal
	}
}
