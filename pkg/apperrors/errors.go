package apperrors

import (
	"errors"
	"fmt"
)

// Base error classes. Every error produced by this module wraps exactly one
// of these, so callers can branch with errors.Is without importing the
// package that produced the error.
var (
	// ErrValidation marks malformed input or an invariant violation.
	// Recoverable: the caller can fix the input and retry.
	ErrValidation = errors.New("validation error")

	// ErrSecurity marks a policy violation: denied access, forbidden
	// keyword, injection pattern, complexity ceiling. Terminal for the
	// request and never retried.
	ErrSecurity = errors.New("security error")

	// ErrConfiguration marks malformed permission or config setup.
	// Fatal at startup.
	ErrConfiguration = errors.New("configuration error")
)

// Validationf returns a validation error with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Configurationf returns a configuration error with a formatted message.
func Configurationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// SecurityError separates the categorical reason, which is safe to return to
// callers, from internal detail such as the offending fragment. Detail must
// only reach server-side logs.
type SecurityError struct {
	Reason string
	Detail string
}

func (e *SecurityError) Error() string { return e.Reason }

func (e *SecurityError) Unwrap() error { return ErrSecurity }

// NewSecurityError builds a security error. Reason must be categorical
// ("forbidden keyword detected", "query too complex"); detail may carry the
// raw fragment for auditing.
func NewSecurityError(reason, detail string) *SecurityError {
	return &SecurityError{Reason: reason, Detail: detail}
}

// SecurityDetail extracts the internal detail from err if it is a
// SecurityError, for audit logging. Returns "" otherwise.
func SecurityDetail(err error) string {
	var se *SecurityError
	if errors.As(err, &se) {
		return se.Detail
	}
	return ""
}
