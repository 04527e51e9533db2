package cta

import (
	"errors"
	"fmt"
)

var (
	ErrMissingParam  = errors.New("missing required parameter")
	ErrInvalidMapID  = errors.New("invalid station map id")
	ErrMissingAPIKey = errors.New("cta api key not configured")
	ErrNotJSON       = errors.New("response is not json")
)

// FetchError reports a failed call to a CTA tracker API.
type FetchError struct {
	Call       string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		if e.Err != nil {
			return fmt.Sprintf("cta %s: status %d: %v", e.Call, e.StatusCode, e.Err)
		}
		return fmt.Sprintf("cta %s: status %d", e.Call, e.StatusCode)
	}
	return fmt.Sprintf("cta %s: %v", e.Call, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
