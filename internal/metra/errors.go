package metra

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownEndpoint       = errors.New("unknown metra endpoint")
	ErrUnexpectedContentType = errors.New("unexpected content type")
	ErrMissingCredentials    = errors.New("metra api credentials not configured")
)

// FetchError reports a failed request to one feed endpoint. StatusCode is 0
// when no response was received.
type FetchError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("metra %s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("metra %s: status %d", e.Endpoint, e.StatusCode)
	default:
		return fmt.Sprintf("metra %s: %v", e.Endpoint, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }
