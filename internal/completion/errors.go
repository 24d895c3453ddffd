package completion

import (
	"context"
	"errors"
	"fmt"
)

// APIError is returned when the endpoint answered with a non-2xx status or
// an unusable body. It is never retried.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" && e.StatusCode >= 200 && e.StatusCode < 300 {
		return fmt.Sprintf("API call returned status %d with %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("API call failed with status: %d", e.StatusCode)
}

// ConnectMessage is the user-facing text of a terminal NetworkError.
const ConnectMessage = "Failed to connect to API server. Please check your network connection and try again."

// NetworkError is a transport-level failure. A NetworkError returned from
// Complete is terminal: the retry has already been spent.
type NetworkError struct {
	Err      error
	Attempts int
}

func (e *NetworkError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s (%v)", ConnectMessage, e.Err)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Decision is the outcome of the retry policy for a failed attempt.
type Decision int

const (
	// Fail stops and surfaces the error.
	Fail Decision = iota
	// RetryOnce sends the request again with the fallback configuration.
	RetryOnce
)

// MaxAttempts is the fixed number of requests a single call may send.
const MaxAttempts = 2

// Decide is the retry policy: only a transport failure on the first attempt
// is retried. An attempt that hit the client timeout is a transport failure;
// cancellation is not. Complete separately stops when the caller's own
// context is done.
func Decide(err error, attempt int) Decision {
	if err == nil || attempt >= MaxAttempts {
		return Fail
	}
	if errors.Is(err, context.Canceled) {
		return Fail
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return RetryOnce
	}
	return Fail
}
