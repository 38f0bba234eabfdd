package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType indicates which part of the provider setup a failure points
// at, so callers can tell a bad key from a bad base URL.
type ErrorType string

const (
	ErrorTypeEndpoint  ErrorType = "endpoint"
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeModel     ErrorType = "model"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error is a classified provider failure.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int    // HTTP status if one was recognized
	Model      string // set by the client that saw the failure
	Endpoint   string
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements retry.RetryableError, letting the retry
// package honor the classification without importing this one.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a classified provider error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// ClassifyError turns an arbitrary transport failure into a classified
// Error. Classification is by message text since the wire libraries
// expose failures inconsistently.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var clsErr *Error
	if errors.As(err, &clsErr) {
		return clsErr
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504} {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	classified := func(errType ErrorType, message string, retryable bool) *Error {
		e := NewError(errType, message, retryable, err)
		e.StatusCode = statusCode
		return e
	}

	// Bad credentials: retrying cannot help.
	if strings.Contains(errStr, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") {
		return classified(ErrorTypeAuth, "authentication failed", false)
	}

	// Wrong model name: needs a config change, not a retry.
	if strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")) {
		return classified(ErrorTypeModel, "model not found", false)
	}

	// Wrong base URL.
	if strings.Contains(errStr, "404") {
		return classified(ErrorTypeEndpoint, "endpoint not found", false)
	}

	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") {
		return classified(ErrorTypeEndpoint, "connection failed", true)
	}

	// A canceled context is the caller giving up, not a fault to retry.
	if strings.Contains(lower, "context canceled") {
		return classified(ErrorTypeEndpoint, "request canceled", false)
	}

	if strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") {
		return classified(ErrorTypeEndpoint, "request timeout", true)
	}

	if strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit") {
		return classified(ErrorTypeRateLimit, "rate limited", true)
	}

	// Local serving stacks surface GPU faults; they usually clear.
	if strings.Contains(lower, "cuda error") || strings.Contains(lower, "gpu error") ||
		strings.Contains(lower, "out of memory") {
		return classified(ErrorTypeEndpoint, "backend compute error", true)
	}

	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") {
		return classified(ErrorTypeEndpoint, "server error", true)
	}

	return classified(ErrorTypeUnknown, "provider error", false)
}

// IsRetryable reports whether err is a classified retryable failure.
func IsRetryable(err error) bool {
	var clsErr *Error
	if errors.As(err, &clsErr) {
		return clsErr.Retryable
	}
	return false
}

// GetErrorType extracts the classification from an error, defaulting to
// unknown for unclassified errors.
func GetErrorType(err error) ErrorType {
	var clsErr *Error
	if errors.As(err, &clsErr) {
		return clsErr.Type
	}
	return ErrorTypeUnknown
}
