package fsp

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoteValidationError_JoinsAPIErrors(t *testing.T) {
	err := &RemoteValidationError{Errors: []APIError{
		{Code: "NOT_FOUND", Description: "Customer data could not be validated", Field: "lastName"},
		{Code: "INVALID", Description: "Postal code malformed", Field: "postalCode"},
	}}
	assert.Equal(t,
		"NOT_FOUND: Customer data could not be validated Field: lastName\nINVALID: Postal code malformed Field: postalCode",
		err.Error())

	empty := &RemoteValidationError{}
	assert.Equal(t, "provider rejected request", empty.Error())
}

func TestRemoteUnavailableError_Message(t *testing.T) {
	assert.Equal(t, "provider unavailable: status 503",
		(&RemoteUnavailableError{StatusCode: 503}).Error())
	assert.Equal(t, "provider unavailable: connection refused",
		(&RemoteUnavailableError{Err: errors.New("connection refused")}).Error())
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&RemoteUnavailableError{StatusCode: 503}))
	assert.True(t, Retryable(fmt.Errorf("LOAD BALANCE ERROR: %w", &RemoteUnavailableError{StatusCode: 502})),
		"wrapped transport failures stay retryable")

	assert.False(t, Retryable(&RemoteValidationError{}))
	assert.False(t, Retryable(&LocalConsistencyError{Message: "duplicate voucher"}))
	assert.False(t, Retryable(&ConfigurationError{Message: "missing credentials"}))
	assert.False(t, Retryable(errors.New("plain")))
	assert.False(t, Retryable(nil))
}
