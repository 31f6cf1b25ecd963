package errors

import "net/http"

// HTTPStatus returns the response status for a code.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeIllegalTransition:
		return http.StatusConflict
	case ErrCodeOwnership:
		return http.StatusForbidden
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// CodeForStatus guesses a code for a response that carried none, such as a
// proxy error page.
func CodeForStatus(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case status == http.StatusForbidden:
		return ErrCodeOwnership
	case status == http.StatusNotFound:
		return ErrCodeNotFound
	case status == http.StatusConflict:
		return ErrCodeIllegalTransition
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case status == http.StatusGatewayTimeout:
		return ErrCodeTimeout
	case status >= 500:
		return ErrCodeUnavailable
	default:
		return ErrCodeInvalidInput
	}
}
