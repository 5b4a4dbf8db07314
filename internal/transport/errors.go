package transport

import (
	"fmt"

	"codeberg.org/mutker/thermopoll/internal/errors"
)

const (
	ErrRequestFailed    = errors.ErrorCode("transport_request_failed")
	ErrRetriesExhausted = errors.ErrorCode("transport_retries_exhausted")
)

// StatusError reports a non-2xx response after the retry policy has run its
// course (or immediately, for statuses that must not be retried).
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// StatusOf returns the HTTP status carried by err, or 0 when err does not
// wrap a StatusError.
func StatusOf(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	return 0
}
