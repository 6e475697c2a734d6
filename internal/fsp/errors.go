package fsp

import (
	"errors"
	"fmt"
	"strings"
)

// APIError is a single error entry returned by a provider API.
type APIError struct {
	Code        string
	Description string
	Field       string
}

func (e APIError) String() string {
	return fmt.Sprintf("%s: %s Field: %s", e.Code, e.Description, e.Field)
}

// RemoteValidationError means the provider rejected the request as invalid.
// Retrying the same payload will fail the same way.
type RemoteValidationError struct {
	Errors []APIError
}

func (e *RemoteValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "provider rejected request"
	}
	lines := make([]string, 0, len(e.Errors))
	for _, apiErr := range e.Errors {
		lines = append(lines, apiErr.String())
	}
	return strings.Join(lines, "\n")
}

// RemoteUnavailableError means the provider could not be reached or answered
// with a server-side failure. The same request may succeed later.
type RemoteUnavailableError struct {
	StatusCode int
	Err        error
}

func (e *RemoteUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider unavailable: %v", e.Err)
	}
	return fmt.Sprintf("provider unavailable: status %d", e.StatusCode)
}

func (e *RemoteUnavailableError) Unwrap() error { return e.Err }

// LocalConsistencyError means local state contradicts itself or the provider
// and a human needs to look before any retry. Err optionally carries the
// domain sentinel behind the contradiction.
type LocalConsistencyError struct {
	Message string
	Err     error
}

func (e *LocalConsistencyError) Error() string { return e.Message }

func (e *LocalConsistencyError) Unwrap() error { return e.Err }

// ConfigurationError means required configuration (credentials, asset codes)
// is missing or malformed. No remote call was attempted.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// Retryable reports whether re-running the job could succeed. Only transient
// provider failures qualify; validation, consistency and configuration
// errors always fail the same way.
func Retryable(err error) bool {
	var unavailable *RemoteUnavailableError
	return errors.As(err, &unavailable)
}
