package llm

import "fmt"

// ClientError is the base error type for this package.
type ClientError struct {
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// APIError represents a structured error body returned by the provider.
type APIError struct {
	ClientError
	StatusCode int
	ErrorType  string
	Retryable  bool
	RetryAfter *float64 // seconds, from the Retry-After header when present
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status=%d, type=%s, retryable=%v)", e.Message, e.StatusCode, e.ErrorType, e.Retryable)
}

// Concrete provider error types.

type AuthenticationError struct{ APIError }
type PermissionError struct{ APIError }
type NotFoundError struct{ APIError }
type InvalidRequestError struct{ APIError }
type RateLimitError struct{ APIError }
type ServerError struct{ APIError }
type OverloadedError struct{ APIError }
type ContextLengthError struct{ APIError }

// Non-provider errors.

type RequestTimeoutError struct{ ClientError }
type NetworkError struct{ ClientError }
type AbortError struct{ ClientError }
type ConfigurationError struct{ ClientError }

// ErrorFromStatusCode maps an HTTP status code from the messages API to the
// appropriate typed error. Rate limits and 5xx are retryable; other 4xx are
// not.
func ErrorFromStatusCode(statusCode int, errorType, message string, retryAfter *float64) error {
	ae := APIError{
		ClientError: ClientError{Message: message},
		StatusCode:  statusCode,
		ErrorType:   errorType,
		RetryAfter:  retryAfter,
	}

	switch statusCode {
	case 400, 422:
		return &InvalidRequestError{APIError: ae}
	case 401:
		return &AuthenticationError{APIError: ae}
	case 403:
		return &PermissionError{APIError: ae}
	case 404:
		return &NotFoundError{APIError: ae}
	case 408:
		return &RequestTimeoutError{ClientError: ClientError{Message: message}}
	case 413:
		return &ContextLengthError{APIError: ae}
	case 429:
		ae.Retryable = true
		return &RateLimitError{APIError: ae}
	case 529:
		ae.Retryable = true
		return &OverloadedError{APIError: ae}
	case 500, 502, 503, 504:
		ae.Retryable = true
		return &ServerError{APIError: ae}
	default:
		// Unknown statuses default to retryable.
		ae.Retryable = true
		return &ae
	}
}

// IsRetryable reports whether the error is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *APIError:
		return e.Retryable
	case *AuthenticationError, *PermissionError, *NotFoundError,
		*InvalidRequestError, *ContextLengthError, *ConfigurationError,
		*AbortError:
		return false
	case *RateLimitError, *ServerError, *OverloadedError,
		*NetworkError, *RequestTimeoutError:
		return true
	default:
		// Unknown errors (raw transport failures and the like) default to
		// retryable.
		return true
	}
}
