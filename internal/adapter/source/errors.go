package source

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/couchcryptid/energy-weather-etl/internal/domain"
)

// ErrorType is the category of a failed fetch.
type ErrorType string

const (
	// ErrorTypeNetwork indicates a transport failure (connection refused, DNS, reset).
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeTimeout indicates the request exceeded its deadline.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeRateLimit indicates the local rate limiter wait was aborted.
	ErrorTypeRateLimit ErrorType = "rate_limit"
)

// FetchError is a network-level failure retrieving a source response. It
// matches domain.ErrFetchFailed under errors.Is.
type FetchError struct {
	Type   ErrorType
	Source string
	URL    string
	Cause  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch %s error: %v", e.Source, e.Type, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is domain.ErrFetchFailed.
func (e *FetchError) Is(target error) bool {
	return target == domain.ErrFetchFailed
}

// classifyTransportError maps a client error to a FetchError.
func classifyTransportError(source, url string, err error) *FetchError {
	t := ErrorTypeNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		t = ErrorTypeTimeout
	}
	return &FetchError{Type: t, Source: source, URL: url, Cause: err}
}
