package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap adds context to err. A coded err keeps its code and identifiers;
// context errors become TIMEOUT or CANCELED; anything else is INTERNAL.
// Wrap(nil, ...) is nil.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	if coded := As(err); coded != nil {
		w := &Error{
			code:     coded.code,
			category: coded.category,
			message:  message,
			cause:    err,
			metadata: coded.Metadata(),
			taskID:   coded.taskID,
			workerID: coded.workerID,
		}
		for _, opt := range opts {
			opt(w)
		}
		return w
	}

	code := ErrCodeInternal
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		code = ErrCodeCanceled
	}
	return New(code, message, append(opts, WithCause(err))...)
}

// WrapWithCode wraps err under an explicit code, discarding any code err
// already carries.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	return New(code, message, append(opts, WithCause(err))...)
}

// As returns the first *Error in the chain, or nil.
func As(err error) *Error {
	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}
	return nil
}

// Is reports whether the first *Error in the chain has code.
func Is(err error, code ErrorCode) bool {
	coded := As(err)
	return coded != nil && coded.code == code
}

// IsRetryable reports whether err is coded and retryable.
func IsRetryable(err error) bool {
	coded := As(err)
	return coded != nil && coded.Retryable()
}

// Code returns the code of the first *Error in the chain, or "".
func Code(err error) ErrorCode {
	if coded := As(err); coded != nil {
		return coded.code
	}
	return ""
}

// RecoverPanic converts a recovered value into a PANIC error. It returns
// nil when nothing was recovered.
func RecoverPanic(recovered interface{}) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprint(v)
	}
	return New(ErrCodePanic, message, WithMetadata("panic_value", fmt.Sprintf("%T", recovered)))
}
