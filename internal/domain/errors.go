package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData reports a well-formed response that carries no rows. It is an
	// expected outcome, similar to io.EOF, and is not logged as a failure.
	ErrNoData = errors.New("no data for this period")

	// ErrMalformedResponse reports a body that is not JSON or lacks a
	// required path or field.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrFetchFailed reports a network-level failure retrieving a response.
	// Transport errors from the source adapter match it via errors.Is.
	ErrFetchFailed = errors.New("fetch failed")
)

// malformed wraps ErrMalformedResponse with context about what was wrong.
func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
