package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPrompt is returned before any request is sent.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
	// ErrEmptyResponse is returned when the model answers with no content.
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrTruncatedResponse is returned when the content ends in "...".
	ErrTruncatedResponse = errors.New("response appears to be truncated")
)

// StatusError is a non-2xx answer from a provider API.
type StatusError struct {
	Provider   Provider
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API request failed with status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// BackendError is returned once every retry of a generation call has failed.
type BackendError struct {
	Provider Provider
	Attempts int
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("generation backend exhausted: %s failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsBackendError reports whether err carries a BackendError.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
