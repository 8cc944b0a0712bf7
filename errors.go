package phototag

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request or input failed validation.
	ErrValidation = errors.New("validation error")

	// ErrNoResult indicates the upload stream ended without a terminal record.
	ErrNoResult = errors.New("no result received")

	// ErrStreamingUnsupported indicates the response carried no readable body.
	ErrStreamingUnsupported = errors.New("streaming not supported by transport")
)

// HTTPError is returned when the upload endpoint rejects a request before
// streaming begins.
type HTTPError struct {
	StatusCode int
	Message    string // server-supplied message, or a generic one
	Body       []byte // raw response body, possibly empty
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
