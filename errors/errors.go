package errors

import "fmt"

// Error is a coded error carried from the service layer to the API and,
// through the response body, to workers.
type Error struct {
	code     ErrorCode
	category ErrorCategory
	message  string
	cause    error
	metadata map[string]string
	taskID   string
	workerID string
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode { return e.code }

// Category returns the category derived from the code.
func (e *Error) Category() ErrorCategory { return e.category }

// Message returns the message without the cause.
func (e *Error) Message() string { return e.message }

// Retryable reports whether the same request may succeed later.
func (e *Error) Retryable() bool { return e.category.IsRetryable() }

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	out := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		out[k] = v
	}
	return out
}

func (e *Error) Unwrap() error { return e.cause }

// TaskID returns the related task ID, if set.
func (e *Error) TaskID() string { return e.taskID }

// WorkerID returns the worker or bot involved, if set.
func (e *Error) WorkerID() string { return e.workerID }

// Option configures an Error.
type Option func(*Error)

// WithMetadata adds a key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithTaskID sets the related task ID.
func WithTaskID(id string) Option {
	return func(e *Error) { e.taskID = id }
}

// WithWorkerID sets the worker or bot involved.
func WithWorkerID(id string) Option {
	return func(e *Error) { e.workerID = id }
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) { e.cause = cause }
}

// New creates an Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{code: code, category: code.DefaultCategory(), message: message}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NotFound reports an unknown task or record.
func NotFound(message string, opts ...Option) *Error {
	return New(ErrCodeNotFound, message, opts...)
}

// IllegalTransition reports a status change the lifecycle forbids.
func IllegalTransition(message string, opts ...Option) *Error {
	return New(ErrCodeIllegalTransition, message, opts...)
}

// OwnershipMismatch reports a task held by someone other than workerID.
func OwnershipMismatch(taskID, workerID string, opts ...Option) *Error {
	opts = append([]Option{WithTaskID(taskID), WithWorkerID(workerID)}, opts...)
	return New(ErrCodeOwnership, fmt.Sprintf("task %s is not held by %s", taskID, workerID), opts...)
}

func Unauthorized(message string, opts ...Option) *Error {
	return New(ErrCodeUnauthorized, message, opts...)
}

func InvalidInput(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidInput, message, opts...)
}

func RateLimited(message string, opts ...Option) *Error {
	return New(ErrCodeRateLimit, message, opts...)
}

func Unavailable(message string, opts ...Option) *Error {
	return New(ErrCodeUnavailable, message, opts...)
}
